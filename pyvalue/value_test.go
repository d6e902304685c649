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
	"errors"
	"testing"
	"unsafe"

	"github.com/sneller-labs/shadowvm/object"
)

func TestIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 42, MinInt, MaxInt, MinInt + 1, MaxInt - 1}
	for _, i := range cases {
		v := FromInt(i)
		if !v.IsInt() {
			t.Fatalf("FromInt(%d): IsInt false", i)
		}
		if v.IsObject() {
			t.Fatalf("FromInt(%d): IsObject true", i)
		}
		if got := v.AsInt(); got != i {
			t.Fatalf("FromInt(%d): AsInt = %d", i, got)
		}
	}
}

func TestEncode42(t *testing.T) {
	v := FromInt(42)
	if v != 0x151 {
		t.Fatalf("FromInt(42) = 0x%x, want 0x151", uint64(v))
	}
	if v.AsInt() != 42 {
		t.Fatalf("AsInt = %d, want 42", v.AsInt())
	}
	if !v.IsInt() || v.IsObject() {
		t.Fatalf("tag bits wrong for FromInt(42)")
	}
}

func TestFromIntOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range FromInt")
		}
	}()
	FromInt(MaxInt + 1)
}

func TestObjectRoundTrip(t *testing.T) {
	x := object.SmallInt{Value: 7}
	p := unsafe.Pointer(&x)
	v := FromObject(p)
	if !v.IsObject() {
		t.Fatal("IsObject false for heap pointer")
	}
	if v.AsObject() != p {
		t.Fatalf("AsObject round trip mismatch")
	}
}

func TestNull(t *testing.T) {
	v := FromObject(nil)
	if v != Null {
		t.Fatalf("FromObject(nil) != Null")
	}
	if !v.IsNull() {
		t.Fatal("IsNull false for Null")
	}
	if !v.IsObject() {
		t.Fatal("Null must also report IsObject (tag 0)")
	}
}

type fakeAlloc struct {
	fail bool
}

func (f *fakeAlloc) NewSmallInt(v int64) (*object.SmallInt, error) {
	if f.fail {
		return nil, errors.New("out of memory")
	}
	return &object.SmallInt{Value: v}, nil
}

func TestBoxUnboxRoundTrip(t *testing.T) {
	alloc := &fakeAlloc{}
	boxed, err := alloc.NewSmallInt(42)
	if err != nil {
		t.Fatal(err)
	}
	unboxed := Unbox(boxed)
	if !unboxed.IsInt() || unboxed.AsInt() != 42 {
		t.Fatalf("Unbox produced %v", unboxed)
	}

	rebp, err := Box(unboxed, alloc)
	if err != nil {
		t.Fatal(err)
	}
	reboxed := (*object.SmallInt)(rebp)
	if reboxed.Value != 42 {
		t.Fatalf("Box(Unbox(o)) numeric value = %d, want 42", reboxed.Value)
	}
}

func TestBoxPassesThroughObjects(t *testing.T) {
	x := object.SmallInt{Value: 99}
	v := FromObject(unsafe.Pointer(&x))
	p, err := Box(v, &fakeAlloc{})
	if err != nil {
		t.Fatal(err)
	}
	if p != unsafe.Pointer(&x) {
		t.Fatal("Box must pass object Values through unchanged")
	}
}

func TestBoxAllocationFailure(t *testing.T) {
	_, err := Box(FromInt(1), &fakeAlloc{fail: true})
	if err == nil {
		t.Fatal("expected allocation error to propagate")
	}
}

func TestClearDecrefsObject(t *testing.T) {
	x := &object.SmallInt{Value: 1}
	x.IncRef()
	v := FromObject(unsafe.Pointer(x))
	Clear(&v)
	if !v.IsNull() {
		t.Fatal("Clear must leave Null behind")
	}
	if x.RefCount != 0 {
		t.Fatalf("Clear must decref the previous object, refcount = %d", x.RefCount)
	}
}

func TestIncDecRefNoopOnInt(t *testing.T) {
	v := FromInt(5)
	// must not panic or touch any memory
	IncRef(v)
	DecRef(v)
}
