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

// This file is BINARY_SUBSCR's counterpart to resolver.go/fastpath.go:
// it classifies a subscript site from scratch (ClassifySubscr) and
// implements the per-kind fast path (SubscrEntry.LoadSubscr).

// ClassifySubscr resolves owner[key] from scratch. A nil entry with a
// nil error means the generic GetItem fallback resolved the value but
// owner's shape offers nothing to specialize (it implements neither
// SequenceSubscript nor MappingSubscript). Nothing is installed and the
// site is not marked uncacheable, so the next visit classifies again.
func ClassifySubscr(owner Subscriptable, key Value) (*SubscrEntry, Value, error) {
	t := owner.TypeOf()
	anchor := GetAnchor(t)

	if seq, ok := owner.(SequenceSubscript); ok {
		if !key.IsInt() {
			return nil, Value(0), &Err{Kind: ErrUncacheable, Name: "__getitem__"}
		}
		idx := int(key.AsInt())
		v, found := seq.At(idx)
		if !found {
			return nil, Value(0), &Err{Kind: ErrUncacheable, Name: "__getitem__"}
		}
		e := &SubscrEntry{
			Kind:                KindSubscrSequence,
			cachedType:          t,
			cast:                CastSequence,
			typeInvalidateCount: anchor.InvalidateCount,
		}
		return e, v, nil
	}

	if m, ok := owner.(MappingSubscript); ok {
		v, found := m.GetItem(key)
		if !found {
			return nil, Value(0), &Err{Kind: ErrUncacheable, Name: "__getitem__"}
		}
		e := &SubscrEntry{
			Kind:                KindSubscrMapping,
			cachedType:          t,
			cast:                CastMapping,
			typeInvalidateCount: anchor.InvalidateCount,
			mappingVersion:      m.Version(),
		}
		return e, v, nil
	}

	v, found := owner.GetItem(key)
	if !found {
		return nil, Value(0), &Err{Kind: ErrUncacheable, Name: "__getitem__"}
	}
	return nil, v, nil
}

func (e *SubscrEntry) typeMatches(owner Subscriptable) bool {
	return e.cachedType != nil && e.cachedType == owner.TypeOf()
}

func (e *SubscrEntry) typeStale() bool {
	a := FindAnchor(e.cachedType)
	return a == nil || a.InvalidateCount != e.typeInvalidateCount
}

// LoadSubscr resolves a BINARY_SUBSCR site against the cached
// specialization.
func (e *SubscrEntry) LoadSubscr(owner Subscriptable, key Value) (Value, Result, error) {
	if !e.typeMatches(owner) || e.typeStale() {
		return Value(0), Miss, nil
	}
	switch e.Kind {
	case KindSubscrSequence:
		seq, ok := owner.(SequenceSubscript)
		if !ok || !key.IsInt() {
			return Value(0), Miss, nil
		}
		idx := int(key.AsInt())
		if idx < 0 || idx >= seq.Len() {
			return Value(0), Hit, &Err{Kind: ErrUncacheable, Name: "__getitem__"}
		}
		v, found := seq.At(idx)
		if !found {
			return Value(0), Hit, &Err{Kind: ErrUncacheable, Name: "__getitem__"}
		}
		return v, Hit, nil
	case KindSubscrMapping:
		m, ok := owner.(MappingSubscript)
		if !ok {
			return Value(0), Miss, nil
		}
		if m.Version() != e.mappingVersion {
			return Value(0), Miss, nil
		}
		v, found := m.GetItem(key)
		if !found {
			return Value(0), Hit, &Err{Kind: ErrUncacheable, Name: "__getitem__"}
		}
		return v, Hit, nil
	default:
		return Value(0), Miss, nil
	}
}

// Invalidate detaches the entry from whatever type it specialized for.
func (e *SubscrEntry) Invalidate() {
	e.cachedType = nil
	e.mappingVersion = 0
}
