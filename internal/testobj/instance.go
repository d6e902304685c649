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

// Instance is a minimal object: a type pointer plus whichever storage
// its type calls for — a combined dict, a split dict sharing the type's
// current KeyTable, or a fixed __slots__ array.
type Instance struct {
	typ     *Type
	dict    *Dict
	split   *SplitDict
	slots   []pyvalue.Value
	present []bool

	weakrefs shadow.WeakRefChain
}

// NewInstance creates an instance of t using whatever storage t calls
// for: a __slots__ array if t has slots, a split dict sharing t's
// current shared shape if t uses the split layout, or a fresh combined
// dict otherwise.
func NewInstance(t *Type) *Instance {
	o := &Instance{typ: t}
	switch {
	case len(t.slots) > 0:
		o.slots = make([]pyvalue.Value, len(t.slots))
		o.present = make([]bool, len(t.slots))
	case t.splitLayout:
		o.split = NewSplitDict(t.sharedKeys)
	default:
		o.dict = NewDict()
	}
	return o
}

func (o *Instance) WeakRefs() *shadow.WeakRefChain { return &o.weakrefs }
func (o *Instance) TypeOf() shadow.Type            { return o.typ }

func (o *Instance) Dict() (shadow.MutableDict, bool) {
	if o.dict == nil {
		return nil, false
	}
	return o.dict, true
}

func (o *Instance) Split() (shadow.SplitDict, bool) {
	if o.split == nil {
		return nil, false
	}
	return o.split, true
}

func (o *Instance) Slot(i int) (pyvalue.Value, bool) {
	if i < 0 || i >= len(o.slots) || !o.present[i] {
		return pyvalue.Value(0), false
	}
	return o.slots[i], true
}

func (o *Instance) SetSlot(i int, v pyvalue.Value) {
	o.slots[i] = v
	o.present[i] = true
}

// Reclass changes o's type in place, the test-side equivalent of
// reassigning __class__. It deliberately does not call shadow
// invalidation: the fast paths' own owner.TypeOf() re-check already
// catches this on the next access (see shadow/invalidate.go,
// InstanceReclassed).
func (o *Instance) Reclass(t *Type) {
	o.typ = t
}
