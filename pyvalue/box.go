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

package pyvalue

import (
	"unsafe"

	"github.com/sneller-labs/shadowvm/object"
)

// Unbox converts a boxed small-integer object into its immediate form.
// Any other object is returned unchanged as an object Value. Unbox never
// allocates and never bumps the reference count: it is an ownership
// handoff from the caller's heap reference to the returned Value (which,
// for the int case, owns nothing and must not be DecRef'd).
func Unbox(p *object.SmallInt) Value {
	if p == nil {
		return Null
	}
	if InIntRange(p.Value) {
		return FromInt(p.Value)
	}
	return FromObject(unsafe.Pointer(p))
}

// Box converts an immediate integer back into a heap object, allocating
// through alloc. An object Value is returned unchanged (reference count
// not bumped — Box never bumps counts on pass-through, matching Unbox).
//
// Unlike the original (which treats allocation failure as fatal), Box
// here propagates the allocator's error: Go has no equivalent of
// Py_FatalError() that a library can reach for, so letting the caller
// decide how to react to exhaustion is the more idiomatic shape.
func Box(v Value, alloc object.Allocator) (unsafe.Pointer, error) {
	if v.IsObject() {
		return v.AsObject(), nil
	}
	boxed, err := alloc.NewSmallInt(v.AsInt())
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(boxed), nil
}

// BoxInPlace is the in-place variant of Box: it stores the resulting heap
// object back into *slot. A slot that already holds an object Value is
// left as it is, with no reference count touched.
func BoxInPlace(slot *Value, alloc object.Allocator) error {
	if slot.IsObject() {
		return nil
	}
	p, err := Box(*slot, alloc)
	if err != nil {
		return err
	}
	*slot = FromObject(p)
	return nil
}

// Clear atomically sets *slot to Null, decrementing the previous value's
// reference count if it held a (non-null) heap reference.
func Clear(slot *Value) {
	prev := *slot
	*slot = Null
	if prev.IsObject() && !prev.IsNull() {
		decRefObject(prev.AsObject())
	}
}

// IncRef bumps v's reference count. It is a no-op for immediate integers
// and for Null; it forwards to the heap object's Header otherwise.
func IncRef(v Value) {
	if v.IsObject() && !v.IsNull() {
		(*object.Header)(v.AsObject()).IncRef()
	}
}

// DecRef decrements v's reference count. It is a no-op for immediate
// integers and for Null; it forwards to the heap object's Header
// otherwise.
func DecRef(v Value) {
	if v.IsObject() && !v.IsNull() {
		decRefObject(v.AsObject())
	}
}

func decRefObject(p unsafe.Pointer) {
	(*object.Header)(p).DecRef()
}
