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
	"github.com/sneller-labs/shadowvm/pyvalue"
	"github.com/sneller-labs/shadowvm/shadow"
)

// List is a flat, directly-indexable sequence: the test double for the
// shape BINARY_SUBSCR's KindSubscrSequence specializes for.
type List struct {
	typ      *Type
	items    []pyvalue.Value
	weakrefs shadow.WeakRefChain
}

// NewList creates a list of type t over items.
func NewList(t *Type, items ...pyvalue.Value) *List {
	return &List{typ: t, items: items}
}

func (l *List) WeakRefs() *shadow.WeakRefChain { return &l.weakrefs }
func (l *List) TypeOf() shadow.Type            { return l.typ }
func (l *List) Len() int                       { return len(l.items) }

func (l *List) At(i int) (pyvalue.Value, bool) {
	if i < 0 || i >= len(l.items) {
		return pyvalue.Value(0), false
	}
	return l.items[i], true
}

// GetItem implements the generic subscript fallback: a negative index
// counts from the end, matching Python's sequence indexing.
func (l *List) GetItem(key pyvalue.Value) (pyvalue.Value, bool) {
	if !key.IsInt() {
		return pyvalue.Value(0), false
	}
	i := int(key.AsInt())
	if i < 0 {
		i += len(l.items)
	}
	return l.At(i)
}

// Append grows the list in place. It does not bump any version tag:
// KindSubscrSequence's fast path re-checks Len() on every access rather
// than caching the length, so a grown/shrunk list is always visible on
// the next LoadSubscr.
func (l *List) Append(v pyvalue.Value) {
	l.items = append(l.items, v)
}

// Mapping is a dict-like container keyed by an immediate-int PyValue,
// the test double for the shape BINARY_SUBSCR's KindSubscrMapping
// specializes for.
type Mapping struct {
	typ      *Type
	version  uint64
	m        map[pyvalue.Value]pyvalue.Value
	weakrefs shadow.WeakRefChain
}

// NewMapping creates an empty mapping of type t.
func NewMapping(t *Type) *Mapping {
	return &Mapping{typ: t, m: make(map[pyvalue.Value]pyvalue.Value)}
}

func (m *Mapping) WeakRefs() *shadow.WeakRefChain { return &m.weakrefs }
func (m *Mapping) TypeOf() shadow.Type            { return m.typ }
func (m *Mapping) Version() uint64                { return m.version }

func (m *Mapping) GetItem(key pyvalue.Value) (pyvalue.Value, bool) {
	v, ok := m.m[key]
	return v, ok
}

// Set inserts or rebinds key, bumping the version tag so any
// KindSubscrMapping entry built before this call revalidates on its
// next visit rather than trusting a stale map snapshot.
func (m *Mapping) Set(key, v pyvalue.Value) {
	m.m[key] = v
	m.version++
}

// Delete removes key, bumping the version tag even if key was absent.
func (m *Mapping) Delete(key pyvalue.Value) {
	delete(m.m, key)
	m.version++
}
