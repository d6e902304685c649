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

// This file implements the four-operation contract (LoadAttr, LoadMethod,
// StoreAttr, Invalidate) for every instance Kind, plus the split-dict
// shape cache shared by KindSplitDict/KindSplitDictDescr/
// KindSplitDictMethod. Every entry point here assumes the entry has
// already been classified once by resolver.go; a Miss return means the
// caller (table.go) must re-run classification from scratch.

func (e *InstanceEntry) typeMatches(owner Instance) bool {
	return e.cachedType != nil && e.cachedType == owner.TypeOf()
}

func (e *InstanceEntry) typeStale() bool {
	a := FindAnchor(e.cachedType)
	return a == nil || a.InvalidateCount != e.typeInvalidateCount
}

// LoadAttr resolves a LOAD_ATTR site against the cached specialization.
func (e *InstanceEntry) LoadAttr(owner Instance) (Value, Result, error) {
	if !e.typeMatches(owner) || e.typeStale() {
		return Value(0), Miss, nil
	}
	switch e.Kind {
	case KindDictNoDescr:
		return e.loadDictNoDescr(owner)
	case KindDictDescr:
		return e.loadDictDescr(owner)
	case KindNoDictDescr:
		v, err := e.descr.Get(owner, e.cachedType)
		return v, Hit, err
	case KindSlot:
		v, ok := owner.Slot(e.slot)
		if !ok {
			return Value(0), Miss, nil
		}
		return v, Hit, nil
	case KindSplitDict:
		return e.loadSplitDict(owner, false)
	case KindSplitDictDescr:
		return e.loadSplitDict(owner, true)
	default:
		return Value(0), Miss, nil
	}
}

func (e *InstanceEntry) loadDictNoDescr(owner Instance) (Value, Result, error) {
	dict, ok := owner.Dict()
	if !ok {
		return Value(0), Miss, nil
	}
	v, found := dict.Get(e.Name)
	if !found {
		return Value(0), Miss, nil
	}
	return v, Hit, nil
}

func (e *InstanceEntry) loadDictDescr(owner Instance) (Value, Result, error) {
	// A data descriptor takes priority over any instance dict entry of
	// the same name (the descriptor protocol's override rule); a
	// non-data descriptor is only a fallback for when the dict lacks
	// the name.
	if e.descr != nil && e.descr.IsData() {
		v, err := e.descr.Get(owner, e.cachedType)
		if err != nil {
			return Value(0), Miss, err
		}
		return v, Hit, nil
	}
	dict, ok := owner.Dict()
	if ok {
		if v, found := dict.Get(e.Name); found {
			return v, Hit, nil
		}
	}
	if e.descr == nil {
		return Value(0), Miss, nil
	}
	v, err := e.descr.Get(owner, e.cachedType)
	if err != nil {
		return Value(0), Miss, err
	}
	return v, Hit, nil
}

// loadSplitDict resolves KindSplitDict/KindSplitDictDescr. withDescr
// distinguishes whether a fallback Descriptor exists for a confirmed
// negative split-dict hit.
func (e *InstanceEntry) loadSplitDict(owner Instance, withDescr bool) (Value, Result, error) {
	if withDescr && e.descr != nil && e.descr.IsData() {
		v, err := e.descr.Get(owner, e.cachedType)
		if err != nil {
			return Value(0), Miss, err
		}
		return v, Hit, nil
	}
	split, ok := owner.Split()
	if !ok {
		return Value(0), Miss, nil
	}
	v, found, needsRebuild := e.trySplitDictLookup(split)
	if !needsRebuild {
		if found {
			return v, Hit, nil
		}
		if withDescr && e.descr != nil {
			dv, err := e.descr.Get(owner, e.cachedType)
			return dv, Hit, err
		}
		// Confirmed negative hit: the poisoned keysIdentity check
		// already established the attribute is absent from this exact
		// shape, so report a (fast) Hit carrying an attribute-absent
		// error rather than signaling Miss, which would make the
		// caller rescan for no reason.
		return Value(0), Hit, &Err{Kind: ErrUncacheable, Name: e.Name}
	}
	// Shape changed: rebuild the split-offset cache in place, one
	// rescan, then resolve against the fresh shape.
	rv, rfound := e.rebuildSplitCache(split)
	if rfound {
		return rv, SlightMiss, nil
	}
	if withDescr && e.descr != nil {
		dv, err := e.descr.Get(owner, e.cachedType)
		return dv, SlightMiss, err
	}
	return Value(0), SlightMiss, nil
}

// trySplitDictLookup implements the exact three-way branch from
// Cinder's _PyShadow_TrySplitDictLookup: a true hit when the live
// KeyTable identity matches the cached one, a confirmed negative hit
// when the cached identity was recorded as poisoned and the shape
// hasn't grown since, and "needs rebuild" otherwise.
func (e *InstanceEntry) trySplitDictLookup(split SplitDict) (v Value, found bool, needsRebuild bool) {
	keys := split.Keys()
	id := keys.Identity()
	if !e.poisoned && id == e.keysIdentity {
		v, found = split.Get(e.splitIndex)
		return v, found, false
	}
	if e.poisoned && id == e.keysIdentity && keys.NEntries() == e.nEntries {
		return Value(0), false, false
	}
	return Value(0), false, true
}

func (e *InstanceEntry) rebuildSplitCache(split SplitDict) (Value, bool) {
	keys := split.Keys()
	id := keys.Identity()
	idx, ok := keys.SplitIndex(e.Name)
	if !ok {
		e.poisoned = true
		e.keysIdentity = id
		e.nEntries = keys.NEntries()
		return Value(0), false
	}
	e.poisoned = false
	e.keysIdentity = id
	e.splitIndex = idx
	v, found := split.Get(idx)
	return v, found
}

// LoadMethod resolves a LOAD_METHOD site. It returns the unbound
// function/method Value; the caller (interpreter loop) is responsible
// for binding it to owner before invocation, matching the split
// LOAD_METHOD/CALL_METHOD protocol CPython 3.7+ uses to avoid
// allocating a bound method object on every call.
func (e *InstanceEntry) LoadMethod(owner Instance) (Value, Result, error) {
	if !e.typeMatches(owner) || e.typeStale() {
		return Value(0), Miss, nil
	}
	switch e.Kind {
	case KindDictMethod:
		if dict, ok := owner.Dict(); ok {
			if v, found := dict.Get(e.Name); found {
				// An instance dict entry shadows the method: not
				// actually a method-shaped call, fall back.
				return v, Hit, nil
			}
		}
		mv, err := e.descr.Get(owner, e.cachedType)
		return mv, Hit, err
	case KindSplitDictMethod:
		split, ok := owner.Split()
		if !ok {
			return Value(0), Miss, nil
		}
		v, found, needsRebuild := e.trySplitDictLookup(split)
		if needsRebuild {
			rv, rfound := e.rebuildSplitCache(split)
			if rfound {
				return rv, SlightMiss, nil
			}
			mv, err := e.descr.Get(owner, e.cachedType)
			return mv, SlightMiss, err
		}
		if found {
			return v, Hit, nil
		}
		mv, err := e.descr.Get(owner, e.cachedType)
		return mv, Hit, err
	case KindNoDictMethod:
		mv, err := e.descr.Get(owner, e.cachedType)
		return mv, Hit, err
	default:
		return Value(0), Miss, nil
	}
}

// StoreAttr resolves a STORE_ATTR site. Slot and dict-backed kinds write
// directly; a data descriptor's Set takes priority per the descriptor
// protocol, and a *Method kind is never store-cacheable since
// LOAD_METHOD only ever reads.
func (e *InstanceEntry) StoreAttr(owner Instance, v Value) (Result, error) {
	if !e.typeMatches(owner) || e.typeStale() {
		return Miss, nil
	}
	switch e.Kind {
	case KindSlot:
		owner.SetSlot(e.slot, v)
		return Hit, nil
	case KindDictNoDescr:
		dict, ok := owner.Dict()
		if !ok {
			return Miss, nil
		}
		dict.Set(e.Name, v)
		return Hit, nil
	case KindDictDescr:
		if e.descr != nil && e.descr.IsData() {
			if err := e.descr.Set(owner, v); err != nil {
				return Miss, err
			}
			return Hit, nil
		}
		dict, ok := owner.Dict()
		if !ok {
			return Miss, nil
		}
		dict.Set(e.Name, v)
		return Hit, nil
	case KindNoDictDescr:
		if e.descr == nil || !e.descr.IsData() {
			return Miss, nil
		}
		if err := e.descr.Set(owner, v); err != nil {
			return Miss, err
		}
		return Hit, nil
	case KindSplitDict, KindSplitDictDescr:
		split, ok := owner.Split()
		if !ok {
			return Miss, nil
		}
		_, _, needsRebuild := e.trySplitDictLookup(split)
		if needsRebuild {
			e.rebuildSplitCache(split)
		}
		if e.poisoned {
			if e.Kind == KindSplitDictDescr && e.descr != nil && e.descr.IsData() {
				if err := e.descr.Set(owner, v); err != nil {
					return Miss, err
				}
				return SlightMiss, nil
			}
			return Miss, nil
		}
		split.Set(e.splitIndex, v)
		if needsRebuild {
			return SlightMiss, nil
		}
		return Hit, nil
	default:
		return Miss, nil
	}
}

// Invalidate detaches the entry from whatever shape/type it specialized
// for, forcing the next access to reclassify from scratch.
func (e *InstanceEntry) Invalidate() {
	e.cachedType = nil
	e.descr = nil
	e.poisoned = false
	e.keysIdentity = 0
	e.splitIndex = 0
	e.nEntries = 0
}

// --- KindType ---

func (e *TypeEntry) LoadAttr(owner Type) (Value, Result, error) {
	if e.cachedType == nil || e.cachedType != owner {
		return Value(0), Miss, nil
	}
	a := FindAnchor(e.cachedType)
	if a == nil || a.InvalidateCount != e.typeInvalidateCount {
		return Value(0), Miss, nil
	}
	if e.descr == nil {
		return Value(0), Miss, nil
	}
	v, err := e.descr.Get(nil, owner)
	return v, Hit, err
}

func (e *TypeEntry) Invalidate() {
	e.cachedType = nil
	e.descr = nil
}

// --- KindModule ---

func (e *ModuleEntry) LoadAttr(owner Module) (Value, Result, error) {
	if e.cachedModule == nil || e.cachedModule != owner {
		return Value(0), Miss, nil
	}
	dict := owner.Dict()
	if dict.Version() != e.version {
		return Value(0), Miss, nil
	}
	return e.value, Hit, nil
}

func (e *ModuleEntry) Invalidate() {
	e.cachedModule = nil
}
