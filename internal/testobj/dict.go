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
	"unsafe"

	"github.com/sneller-labs/shadowvm/pyvalue"
	"github.com/sneller-labs/shadowvm/shadow"
)

// Dict is a combined (non-split) name-keyed namespace: one map per
// instance or module, versioned on every mutation.
type Dict struct {
	version uint64
	m       map[string]pyvalue.Value
}

// NewDict returns an empty combined dict.
func NewDict() *Dict {
	return &Dict{m: make(map[string]pyvalue.Value)}
}

func (d *Dict) Version() uint64 { return d.version }

func (d *Dict) Get(name string) (pyvalue.Value, bool) {
	v, ok := d.m[name]
	return v, ok
}

// dictVersion is the version-tag source shared by every Dict, so a tag
// is never reused across dicts and the max of two dicts' tags changes
// whenever either one mutates (what GlobalsEntry's merged version needs).
var dictVersion uint64

func (d *Dict) Set(name string, v pyvalue.Value) {
	d.m[name] = v
	dictVersion++
	d.version = dictVersion
}

// Delete removes name, bumping the version tag even if name was absent
// (matching CPython's dict mutation accounting: a failed delete still
// touches the dict).
func (d *Dict) Delete(name string) {
	delete(d.m, name)
	dictVersion++
	d.version = dictVersion
}

// KeyTable is the shared shape descriptor behind a split dict. Its
// identity is its own address: two KeyTable values are "the same shape"
// exactly when they are the same allocation, mirroring how CPython
// compares dk pointers rather than structural equality.
type KeyTable struct {
	order []string
}

// NewKeyTable returns an empty shared shape.
func NewKeyTable() *KeyTable {
	return &KeyTable{}
}

func (k *KeyTable) Identity() uintptr { return uintptr(unsafe.Pointer(k)) }
func (k *KeyTable) NEntries() int     { return len(k.order) }

func (k *KeyTable) SplitIndex(name string) (int, bool) {
	for i, n := range k.order {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// grown returns a new KeyTable with name appended, leaving k untouched:
// growing a split dict's shape always allocates a fresh shared shape in
// CPython rather than mutating the old one in place, which is exactly
// the property the shadow package's poisoned-keys fast path relies on.
func (k *KeyTable) grown(name string) *KeyTable {
	next := &KeyTable{order: append(append([]string(nil), k.order...), name)}
	return next
}

// SplitDict is an instance dict sharing a KeyTable with other instances
// of the same shape, storing only a flat values array of its own.
type SplitDict struct {
	keys    *KeyTable
	values  []pyvalue.Value
	present []bool
}

// NewSplitDict creates a split dict over the given shared shape.
func NewSplitDict(keys *KeyTable) *SplitDict {
	return &SplitDict{
		keys:    keys,
		values:  make([]pyvalue.Value, len(keys.order)),
		present: make([]bool, len(keys.order)),
	}
}

func (s *SplitDict) Keys() shadow.KeyTable { return s.keys }

func (s *SplitDict) Get(i int) (pyvalue.Value, bool) {
	if i < 0 || i >= len(s.values) || !s.present[i] {
		return pyvalue.Value(0), false
	}
	return s.values[i], true
}

func (s *SplitDict) Set(i int, v pyvalue.Value) {
	s.values[i] = v
	s.present[i] = true
}

// AddAttr grows this instance's own split dict to a new shape containing
// name, diverging from whatever shape it previously shared. This is the
// only way a SplitDict's KeyTable identity changes in this test model,
// matching CPython: assigning a never-before-seen attribute on a
// split-dict instance forks (or extends) the shape.
func (s *SplitDict) AddAttr(name string, v pyvalue.Value) {
	if idx, ok := s.keys.SplitIndex(name); ok {
		s.Set(idx, v)
		return
	}
	s.keys = s.keys.grown(name)
	s.values = append(s.values, v)
	s.present = append(s.present, true)
}
