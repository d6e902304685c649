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

// Kind enumerates the attribute-access specializations a bytecode site
// can be rewritten into, mirroring the catalog in Cinder's
// pycore_shadowcode.h (_PyShadow_InstanceAttrEntry / LoadMethodCache
// variants). Each one trades a different set of preconditions for a
// different fast path.
type Kind uint8

const (
	// KindDictNoDescr: owner has a combined instance dict, and name
	// resolves purely from that dict (no class-level descriptor
	// involved).
	KindDictNoDescr Kind = iota
	// KindDictDescr: owner has a combined instance dict, but name is
	// also defined as a descriptor on the type; a data descriptor wins
	// over the dict entry, otherwise the dict entry wins if present and
	// the descriptor is the fallback.
	KindDictDescr
	// KindNoDictDescr: owner has no instance dict at all (neither
	// combined nor split, e.g. a __slots__ class) and name resolves
	// through a descriptor on its type.
	KindNoDictDescr
	// KindSlot: name is a __slots__ member; access goes straight to a
	// fixed storage slot with no dict or descriptor lookup at all.
	KindSlot
	// KindSplitDict: owner's type uses the split-dict instance layout
	// and name resolves purely from the split values array.
	KindSplitDict
	// KindSplitDictDescr: split-dict layout, but name is also a
	// descriptor on the type (same priority rules as KindDictDescr).
	KindSplitDictDescr
	// KindDictMethod: a LOAD_METHOD site where name resolves to a
	// plain function/method found on the type's MRO, with the owner
	// instance supplying self (combined-dict layout).
	KindDictMethod
	// KindSplitDictMethod: KindDictMethod's split-dict counterpart.
	KindSplitDictMethod
	// KindNoDictMethod: KindDictMethod for an owner type with no
	// instance dict at all (pure __slots__ class).
	KindNoDictMethod
	// KindType: owner of the access is itself a type object (a
	// class-level load, e.g. C.attr rather than instance.attr).
	KindType
	// KindModule: owner of the access is a module.
	KindModule
	// KindSubscrSequence: owner of a BINARY_SUBSCR site is a flat,
	// directly-indexable sequence and the key is an in-range integer.
	KindSubscrSequence
	// KindSubscrMapping: owner of a BINARY_SUBSCR site is a dict-like
	// mapping whose key lookup revalidates against a version tag.
	KindSubscrMapping
)

func (k Kind) String() string {
	switch k {
	case KindDictNoDescr:
		return "dict-no-descr"
	case KindDictDescr:
		return "dict-descr"
	case KindNoDictDescr:
		return "no-dict-descr"
	case KindSlot:
		return "slot"
	case KindSplitDict:
		return "split-dict"
	case KindSplitDictDescr:
		return "split-dict-descr"
	case KindDictMethod:
		return "dict-method"
	case KindSplitDictMethod:
		return "split-dict-method"
	case KindNoDictMethod:
		return "no-dict-method"
	case KindType:
		return "type"
	case KindModule:
		return "module"
	case KindSubscrSequence:
		return "subscr-sequence"
	case KindSubscrMapping:
		return "subscr-mapping"
	default:
		return "unknown"
	}
}

// CastType tags which subscript shape a BINARY_SUBSCR site last
// specialized for. It mirrors the cast-type cache the shadow code
// table keeps alongside its field-cache array: once a site has
// committed to treating its owner as a sequence or a mapping, the
// cast is cheap to recheck on every visit without re-deriving it from
// the InstanceEntry/SubscrEntry bookkeeping.
type CastType uint8

const (
	CastUnknown CastType = iota
	CastSequence
	CastMapping
)

func (c CastType) String() string {
	switch c {
	case CastSequence:
		return "sequence"
	case CastMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// FieldKind tags the storage representation behind a field-cache
// entry's slot index, so a typed-attribute opcode knows whether the
// slot holds an immediate PyValue int or a boxed object reference
// without re-decoding the tag on every access.
type FieldKind uint8

const (
	FieldObject FieldKind = iota
	FieldInt
)

func (k FieldKind) String() string {
	switch k {
	case FieldInt:
		return "int"
	default:
		return "object"
	}
}

// FieldCache is one entry in a Table's field-cache array: the
// __slots__ storage index a typed-attribute (KindSlot) opcode resolved
// to at a site, plus a representation tag. Table.install records every
// KindSlot site as FieldObject; it does not inspect the stored value,
// so FieldInt is never produced by this package.
type FieldCache struct {
	Offset int
	Kind   FieldKind
}

// SubscrEntry is the specialization record for a BINARY_SUBSCR site.
type SubscrEntry struct {
	Kind Kind

	cachedType          Type
	cast                CastType
	typeInvalidateCount uint64
	typeNameHash        uint64

	// mappingVersion is the Version() observed at last fill. Only used
	// by KindSubscrMapping.
	mappingVersion uint64
}

// InstanceEntry is the specialization record for every Kind whose owner
// is an Instance (all but KindType and KindModule). Only the fields a
// given Kind actually uses are populated; see fastpath.go for the exact
// per-kind contract.
type InstanceEntry struct {
	Kind Kind
	Name string

	// cachedType is the owner type this entry was specialized for. The
	// hit check for every instance Kind starts with cachedType ==
	// owner.TypeOf().
	cachedType Type

	// descr is the cached MRO lookup result for *Descr and *Method
	// kinds; nil for KindDictNoDescr/KindSlot/KindSplitDict.
	descr Descriptor

	// slot is the resolved __slots__ storage index for KindSlot.
	slot int

	// splitIndex/keysIdentity/nEntries/poisoned implement the
	// split-dict shape cache, including the "poisoned keys" confirmed-
	// absent optimization.
	splitIndex   int
	keysIdentity uintptr
	nEntries     int
	poisoned     bool

	// typeInvalidateCount is the Anchor.InvalidateCount observed on
	// cachedType the last time this entry was validated.
	typeInvalidateCount uint64

	// typeNameHash is NameHash(cachedType.Name()), set by Table.install.
	// The bounded polymorphic array's lookup compares this first,
	// before the type identity itself, as a cheap pre-check ahead of
	// the full scan.
	typeNameHash uint64
}

// TypeEntry is the specialization record for KindType: the owner of the
// access is itself a type object, so the "cached type" and "owner" are
// the same kind of thing and the hit check compares cached identity
// against the type being accessed directly, rather than against the
// owner's metatype.
type TypeEntry struct {
	Name                string
	cachedType          Type
	descr               Descriptor
	typeInvalidateCount uint64
}

// ModuleEntry is the specialization record for KindModule.
type ModuleEntry struct {
	Name string

	cachedModule Module
	version      uint64
	value        Value
}

// GlobalsEntry is the specialization record used by the LOAD_GLOBAL
// shadow op: it resolves against a two-dict chain (globals, then
// builtins) and caches the merged version it last observed.
type GlobalsEntry struct {
	Name string

	globals      Dict
	builtins     Dict
	version      uint64 // max(globals.Version(), builtins.Version()) at last resolution
	value        Value
	fromBuiltins bool
}
