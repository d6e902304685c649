// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package testobj

import (
	"errors"

	"github.com/sneller-labs/shadowvm/pyvalue"
	"github.com/sneller-labs/shadowvm/shadow"
)

// Type is a minimal class object: an MRO via bases, a class namespace of
// descriptors, an optional __slots__ layout, and the handful of shape
// flags the shadow resolver branches on.
type Type struct {
	name            string
	bases           []*Type
	members         map[string]shadow.Descriptor
	slots           map[string]int
	splitLayout     bool
	getattrOverride bool
	meta            *Type
	sharedKeys      *KeyTable
	weakrefs        shadow.WeakRefChain
}

// NewType creates a type named name with the given base classes (MRO
// walked depth-first, left to right, matching CPython's common case).
func NewType(name string, bases ...*Type) *Type {
	return &Type{
		name:    name,
		bases:   bases,
		members: make(map[string]shadow.Descriptor),
		slots:   make(map[string]int),
	}
}

func (t *Type) WeakRefs() *shadow.WeakRefChain { return &t.weakrefs }
func (t *Type) Name() string                   { return t.name }

func (t *Type) LookUp(name string) (shadow.Descriptor, bool) {
	if d, ok := t.members[name]; ok {
		return d, true
	}
	for _, b := range t.bases {
		if d, ok := b.LookUp(name); ok {
			return d, true
		}
	}
	return nil, false
}

func (t *Type) SlotOffset(name string) (int, bool) {
	i, ok := t.slots[name]
	return i, ok
}

func (t *Type) HasGetattrOverride() bool { return t.getattrOverride }

func (t *Type) Meta() shadow.Type {
	if t.meta == nil {
		return nil
	}
	return t.meta
}

// SetGetattrOverride marks (or clears) __getattr__/__getattribute__
// customization, which makes every access on instances of t uncacheable.
func (t *Type) SetGetattrOverride(v bool) { t.getattrOverride = v }

// SetMeta sets t's metatype.
func (t *Type) SetMeta(meta *Type) { t.meta = meta }

// SetSplitLayout switches t's instances between the split-dict and
// combined-dict instance layouts. It must be called before any
// instances exist; testobj does not model CPython's lazy "dict
// materializes on first write" fallback.
func (t *Type) SetSplitLayout(v bool) {
	t.splitLayout = v
	if v && t.sharedKeys == nil {
		t.sharedKeys = NewKeyTable()
	}
}

// AddSlot reserves a __slots__ storage index for name and returns it.
func (t *Type) AddSlot(name string) int {
	i := len(t.slots)
	t.slots[name] = i
	return i
}

// SetAttr installs a plain, non-data class attribute (ordinary value or
// unbound method/function).
func (t *Type) SetAttr(name string, v pyvalue.Value) {
	t.members[name] = &plainAttr{v: v}
}

// SetDataAttr installs a data descriptor (get/set pair with priority
// over instance dict entries) — testobj's stand-in for a @property.
func (t *Type) SetDataAttr(name string, get func(shadow.Instance) (pyvalue.Value, error), set func(shadow.Instance, pyvalue.Value) error) {
	t.members[name] = &dataAttr{get: get, set: set}
}

// Modified notifies the shadow package that t's MRO-visible shape
// changed (a member was added, removed, or rebound).
func (t *Type) Modified() {
	shadow.TypeModified(t)
}

// plainAttr is a non-data descriptor: Get returns its stored value
// regardless of instance; Set always fails since it has no backing
// storage of its own (an instance dict entry of the same name, if any,
// always wins instead — see shadow/resolver.go's KindDictDescr handling).
type plainAttr struct {
	v pyvalue.Value
}

func (a *plainAttr) Get(_ shadow.Instance, _ shadow.Type) (pyvalue.Value, error) {
	return a.v, nil
}
func (a *plainAttr) IsData() bool { return false }
func (a *plainAttr) Set(_ shadow.Instance, _ pyvalue.Value) error {
	return errors.New("testobj: plainAttr is not a data descriptor")
}

// dataAttr is a data descriptor backed by caller-supplied accessors.
type dataAttr struct {
	get func(shadow.Instance) (pyvalue.Value, error)
	set func(shadow.Instance, pyvalue.Value) error
}

func (d *dataAttr) Get(instance shadow.Instance, _ shadow.Type) (pyvalue.Value, error) {
	return d.get(instance)
}
func (d *dataAttr) IsData() bool { return true }
func (d *dataAttr) Set(instance shadow.Instance, v pyvalue.Value) error {
	return d.set(instance, v)
}
