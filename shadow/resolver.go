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

// This file classifies a bytecode site the first time it is visited (or
// any time a cached entry reports Miss): it inspects the owner's shape
// and produces a fresh, populated entry plus the resolved value, the way
// Cinder's _PyShadow_InitCache walks the owner once to decide which
// _PyShadow_InstanceAttrEntry variant to install.

// ClassifyAttr resolves name against owner from scratch and returns a
// freshly populated InstanceEntry ready to be installed at a bytecode
// site, along with the resolved value. A nil entry with ErrUncacheable
// means the site can never be specialized and must always take the
// generic path.
func ClassifyAttr(owner Instance, name string) (*InstanceEntry, Value, error) {
	t := owner.TypeOf()
	if t.HasGetattrOverride() {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}

	anchor := GetAnchor(t)

	if slot, ok := t.SlotOffset(name); ok {
		v, found := owner.Slot(slot)
		if !found {
			return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
		}
		e := &InstanceEntry{
			Kind:                KindSlot,
			Name:                name,
			cachedType:          t,
			slot:                slot,
			typeInvalidateCount: anchor.InvalidateCount,
		}
		return e, v, nil
	}

	descr, hasDescr := anchor.lookupDescr(t, name)
	var dataDescr bool
	if hasDescr {
		dataDescr = descr.IsData()
	}

	if split, ok := owner.Split(); ok {
		e := &InstanceEntry{
			Name:                name,
			cachedType:          t,
			typeInvalidateCount: anchor.InvalidateCount,
		}
		if hasDescr {
			e.Kind = KindSplitDictDescr
			e.descr = descr
		} else {
			e.Kind = KindSplitDict
		}
		if dataDescr {
			v, err := descr.Get(owner, t)
			return e, v, err
		}
		rv, found := e.rebuildSplitCache(split)
		if found {
			return e, rv, nil
		}
		if hasDescr {
			v, err := descr.Get(owner, t)
			return e, v, err
		}
		// No descriptor fallback either: the attribute genuinely does
		// not exist on this shape. Still return e so the caller can
		// install it — the poisoned keysIdentity rebuildSplitCache
		// just recorded turns the next lookup on this exact shape into
		// a confirmed negative hit instead of a rescan.
		return e, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}

	if dict, ok := owner.Dict(); ok {
		e := &InstanceEntry{
			Name:                name,
			cachedType:          t,
			typeInvalidateCount: anchor.InvalidateCount,
		}
		if hasDescr {
			e.Kind = KindDictDescr
			e.descr = descr
		} else {
			e.Kind = KindDictNoDescr
		}
		if dataDescr {
			v, err := descr.Get(owner, t)
			return e, v, err
		}
		if v, found := dict.Get(name); found {
			return e, v, nil
		}
		if hasDescr {
			v, err := descr.Get(owner, t)
			return e, v, err
		}
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}

	if !hasDescr {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}
	e := &InstanceEntry{
		Kind:                KindNoDictDescr,
		Name:                name,
		cachedType:          t,
		descr:               descr,
		typeInvalidateCount: anchor.InvalidateCount,
	}
	v, err := descr.Get(owner, t)
	return e, v, err
}

// ClassifyMethod is ClassifyAttr's LOAD_METHOD counterpart: it only ever
// succeeds for names resolved through the MRO (non-data descriptors,
// typically plain functions), since a dict- or slot-shadowed name is not
// a "method shape" worth the split LOAD_METHOD/CALL_METHOD protocol.
func ClassifyMethod(owner Instance, name string) (*InstanceEntry, Value, error) {
	t := owner.TypeOf()
	if t.HasGetattrOverride() {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}
	anchor := GetAnchor(t)
	descr, hasDescr := anchor.lookupDescr(t, name)
	if !hasDescr || descr.IsData() {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}

	if split, ok := owner.Split(); ok {
		e := &InstanceEntry{
			Kind:                KindSplitDictMethod,
			Name:                name,
			cachedType:          t,
			descr:               descr,
			typeInvalidateCount: anchor.InvalidateCount,
		}
		if v, found := e.rebuildSplitCache(split); found {
			return e, v, nil
		}
		v, err := descr.Get(owner, t)
		return e, v, err
	}

	if dict, ok := owner.Dict(); ok {
		if v, found := dict.Get(name); found {
			e := &InstanceEntry{
				Kind:                KindDictMethod,
				Name:                name,
				cachedType:          t,
				descr:               descr,
				typeInvalidateCount: anchor.InvalidateCount,
			}
			return e, v, nil
		}
		e := &InstanceEntry{
			Kind:                KindDictMethod,
			Name:                name,
			cachedType:          t,
			descr:               descr,
			typeInvalidateCount: anchor.InvalidateCount,
		}
		v, err := descr.Get(owner, t)
		return e, v, err
	}

	e := &InstanceEntry{
		Kind:                KindNoDictMethod,
		Name:                name,
		cachedType:          t,
		descr:               descr,
		typeInvalidateCount: anchor.InvalidateCount,
	}
	v, err := descr.Get(owner, t)
	return e, v, err
}

// ClassifyTypeAttr resolves a class-level load (owner is itself a Type).
func ClassifyTypeAttr(owner Type, name string) (*TypeEntry, Value, error) {
	if owner.HasGetattrOverride() {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}
	anchor := GetAnchor(owner)
	descr, ok := anchor.lookupDescr(owner, name)
	if !ok {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}
	e := &TypeEntry{
		Name:                name,
		cachedType:          owner,
		descr:               descr,
		typeInvalidateCount: anchor.InvalidateCount,
	}
	v, err := descr.Get(nil, owner)
	return e, v, err
}

// ClassifyModuleAttr resolves a module-attribute load.
func ClassifyModuleAttr(owner Module, name string) (*ModuleEntry, Value, error) {
	dict := owner.Dict()
	v, ok := dict.Get(name)
	if !ok {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
	}
	e := &ModuleEntry{
		Name:         name,
		cachedModule: owner,
		version:      dict.Version(),
		value:        v,
	}
	return e, v, nil
}
