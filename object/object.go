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

// Package object defines the narrow slice of the heap-object contract that
// pyvalue and shadow are allowed to assume about an otherwise external
// object model: every heap value starts with a reference count, and small
// integers can be boxed through a pluggable allocator. It is deliberately
// not a general object system — the bytecode compiler, garbage collector,
// and descriptor protocol live outside this module.
package object

import "sync/atomic"

// Header is embedded as the first field of every heap object this module
// allocates or references. Its position matters: pyvalue's IncRef,
// DecRef and Clear reinterpret a tagged Value's bits as *Header and rely on
// RefCount being at offset zero.
type Header struct {
	RefCount int64
}

// IncRef atomically increments h's reference count.
func (h *Header) IncRef() {
	atomic.AddInt64(&h.RefCount, 1)
}

// DecRef atomically decrements h's reference count and reports whether it
// reached zero. Callers that get true are responsible for finalizing the
// object; this package does not do so itself since it has no notion of a
// per-kind destructor.
func (h *Header) DecRef() bool {
	return atomic.AddInt64(&h.RefCount, -1) == 0
}

// SmallInt is the boxed heap form of an immediate integer, produced by
// pyvalue.Box when it has to materialize a heap object for a tagged int.
type SmallInt struct {
	Header
	Value int64
}

// Allocator creates boxed heap objects on behalf of pyvalue.Box. It is
// pluggable because this module has no heap of its own: the bytecode
// compiler's object model supplies the real one.
type Allocator interface {
	NewSmallInt(v int64) (*SmallInt, error)
}
