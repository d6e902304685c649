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

// This file is the object model's half of the invalidation protocol:
// the handful of entry points a mutable type or module namespace must
// call after changing shape, so that every cache entry naming it
// notices on its next visit rather than serving a stale value forever.
//
// None of these functions walk live Tables. That is the entire point of
// the Anchor indirection (anchor.go): a site never needs to be told
// directly that its cached type changed, because every LoadAttr/
// LoadMethod/StoreAttr call already compares its recorded
// InvalidateCount against the target's Anchor before trusting the
// cache (fastpath.go, typeStale).

// TypeModified must be called whenever t's MRO-visible shape changes: a
// method is added, removed, or rebound on t (or on a base class t
// inherits from), or t switches between split-dict and combined-dict
// instance layout. It has no effect if t has never been cached (no
// Anchor installed yet), since there is nothing to invalidate.
func TypeModified(t Type) {
	if a := FindAnchor(t); a != nil {
		a.bump()
	}
}

// ModuleModified must be called whenever a module's dict rebinds,
// inserts, or deletes a name. In practice this is subsumed by the
// module dict's own Version() bump (ModuleEntry.LoadAttr compares versions
// directly) but is provided for symmetry with TypeModified and for
// object models that want a single invalidation entry point regardless
// of target kind.
func ModuleModified(m Module) {
	if a := FindAnchor(m); a != nil {
		a.bump()
	}
}

// InstanceReclassed must be called when an instance's __class__ is
// reassigned (a legal but rare mutation): any site that specialized for
// the instance's old type must not be trusted just because the
// instance's identity and dict happen to be unchanged. Since this
// module's fast paths always re-check owner.TypeOf() against the
// entry's cached type on every visit, no action is actually required
// here — the hit check already fails the moment TypeOf() differs. The
// function exists so callers have one consistent name to call instead
// of relying on that implementation detail.
func InstanceReclassed(Instance) {}
