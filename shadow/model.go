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

package shadow

import "github.com/sneller-labs/shadowvm/pyvalue"

// Value is the tagged word every cache entry stores and returns.
type Value = pyvalue.Value

// Target is anything a cache anchor can attach its lifetime to: a type or
// a module. The object model owns the backing storage; this package only
// ever reads WeakRefs() to find (or install) its own Anchor.
type Target interface {
	WeakRefs() *WeakRefChain
}

// weakRef is the narrow interface an Anchor implements so it can sit on a
// Target's WeakRefChain without the chain needing to know about caches.
type weakRef interface {
	// Finalize runs when the owning Target goes away. It must not panic
	// and must not retain a pointer back to the Target.
	Finalize()
}

// WeakRefChain is embedded (or held by pointer) in a Target implementation
// and records the set of observers watching that target's lifetime. It
// plays the role of PyWeakReference's doubly-linked list, simplified to a
// slice since this module never needs to unlink a single arbitrary entry
// from the middle of a long chain — only append-one, find-one, and
// finalize-all.
type WeakRefChain struct {
	refs []weakRef
}

func (c *WeakRefChain) append(r weakRef) {
	c.refs = append(c.refs, r)
}

// Finalize notifies every observer that the owning Target is gone. Object
// models call this from their own teardown path.
func (c *WeakRefChain) Finalize() {
	for _, r := range c.refs {
		r.Finalize()
	}
	c.refs = nil
}

// Dict is a read-only name-keyed namespace with a monotonic version tag
// that increments on every mutation (insert, delete, or rebind). Modules,
// globals, and builtins all implement Dict; version tags are how the
// globals cache (globals.go) detects staleness without rescanning.
type Dict interface {
	Version() uint64
	Get(name string) (Value, bool)
}

// MutableDict additionally supports Set, used by store-attr fast paths
// and by test harnesses driving mutation scenarios.
type MutableDict interface {
	Dict
	Set(name string, v Value)
}

// KeyTable identifies the shared key layout backing a split dictionary.
// Two instances of the same shape return the same Identity(); Identity
// changes the moment a key is added to (or removed from) that shape.
type KeyTable interface {
	Identity() uintptr
	NEntries() int
	SplitIndex(name string) (int, bool)
}

// SplitDict is an instance dictionary that shares its KeyTable across
// every instance of the same shape and stores only a flat values array
// per instance (CPython's "split" dict layout).
type SplitDict interface {
	Keys() KeyTable
	Get(i int) (Value, bool)
	Set(i int, v Value)
}

// Descriptor is anything found while walking a type's MRO that can
// customize attribute access: a plain class attribute, a method, or a
// data descriptor (property-like get/set pair).
type Descriptor interface {
	// Get implements descr_get. instance is nil for a class-level load.
	Get(instance Instance, ownerType Type) (Value, error)
	// IsData reports whether Set is meaningful. A data descriptor takes
	// priority over an instance dict entry of the same name; a
	// non-data descriptor (e.g. a plain function/method) does not.
	IsData() bool
	// Set implements descr_set. Only called when IsData() is true.
	Set(instance Instance, v Value) error
}

// Type is the minimal type-object contract the resolver and fast paths
// need: identity for the monomorphic hit check, MRO-ordered descriptor
// lookup, and __slots__ layout.
type Type interface {
	Target
	Name() string
	// LookUp resolves name along the MRO (mirrors CPython's
	// _PyType_Lookup). ok is false if no class in the MRO defines name.
	LookUp(name string) (d Descriptor, ok bool)
	// SlotOffset resolves a __slots__ member name to its storage slot.
	// ok is false if name is not a slot on this type.
	SlotOffset(name string) (slot int, ok bool)
	// HasGetattrOverride reports whether the type customizes attribute
	// lookup (a __getattr__/__getattribute__ override). Such types are
	// always uncacheable.
	HasGetattrOverride() bool
	// Meta returns the type's own metatype, or nil for ordinary types.
	Meta() Type
}

// Instance is any attribute-access target that is not itself a Type or a
// Module.
type Instance interface {
	Target
	TypeOf() Type
	// Dict returns the instance's combined (non-split) dict, if any.
	Dict() (MutableDict, bool)
	// Split returns the instance's split dict, if its type uses the
	// split-dict layout.
	Split() (SplitDict, bool)
	// Slot reads a __slots__ member at the offset SlotOffset resolved.
	Slot(slot int) (Value, bool)
	// SetSlot writes a __slots__ member.
	SetSlot(slot int, v Value)
}

// Module is a namespace keyed by a MutableDict with a monotonic version
// tag.
type Module interface {
	Target
	Dict() MutableDict
}

// Subscriptable is the narrow contract a BINARY_SUBSCR owner must meet:
// TypeOf for the monomorphic hit check, plus the generic __getitem__
// fallback every subscriptable object supports regardless of shape.
type Subscriptable interface {
	Target
	TypeOf() Type
	// GetItem implements the generic subscript fallback. ok is false on
	// a missing key/out-of-range index (an IndexError/KeyError stand-in).
	GetItem(key Value) (Value, bool)
}

// SequenceSubscript is implemented by list-like owners whose elements
// live in a flat, directly-indexable array, the shape CPython's
// BINARY_SUBSCR_LIST specializes for.
type SequenceSubscript interface {
	Subscriptable
	// Len reports the current element count so the fast path can
	// bounds-check without a full GetItem call.
	Len() int
	// At reads element i directly, bypassing GetItem.
	At(i int) (Value, bool)
}

// MappingSubscript is implemented by dict-like owners whose key lookup
// can be revalidated with a monotonic version tag instead of rehashing
// the key on every access.
type MappingSubscript interface {
	Subscriptable
	Version() uint64
}
