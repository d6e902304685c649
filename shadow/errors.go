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

import (
	"errors"
	"strconv"
)

// Result classifies the outcome of a fast-path attempt. The three-way
// split (rather than a plain hit/miss bool) exists because a "slight
// miss" — the cached shape is stale but the attribute is still resolved
// without falling all the way back to the generic interpreter path — is
// common enough on split-dict shapes to be worth reporting separately in
// OpcodeStats.
type Result uint8

const (
	// Hit means the cached specialization resolved the access without
	// touching anything but the owner's storage.
	Hit Result = iota
	// SlightMiss means the cached split-dict shape had to be rebuilt in
	// place but the access still completed without falling back to a
	// from-scratch resolution. Table.StoreAttr also reports it for a
	// store that reclassified the site and wrote in the same call.
	SlightMiss
	// Miss means the site must be reclassified from scratch.
	Miss
)

func (r Result) String() string {
	switch r {
	case Hit:
		return "hit"
	case SlightMiss:
		return "slight-miss"
	case Miss:
		return "miss"
	default:
		return "unknown"
	}
}

// ErrKind distinguishes the small set of error conditions this package
// raises itself, as opposed to errors returned by the object model
// (Descriptor.Get/Set, Allocator, etc.) which pass through unchanged.
type ErrKind uint8

const (
	// ErrUncacheable means the site can never be specialized: the
	// owner's type overrides attribute lookup, or the access shape has
	// no corresponding Kind. It is also the error reported when the
	// name, key, or index being loaded is absent.
	ErrUncacheable ErrKind = iota
	// ErrPolymorphicFull means a site's polymorphic cache already holds
	// its maximum number of type-keyed entries and a new shape was
	// observed at it.
	ErrPolymorphicFull
	// ErrBadShadowState means a caller broke the Table's contract:
	// LoadAttr was given an owner that is not an Instance, Type, or
	// Module, or a patched instruction pointed past the rewritten code
	// array.
	ErrBadShadowState
)

func (k ErrKind) String() string {
	switch k {
	case ErrUncacheable:
		return "uncacheable"
	case ErrPolymorphicFull:
		return "polymorphic cache full"
	case ErrBadShadowState:
		return "bad shadow state"
	default:
		return "unknown"
	}
}

// Err wraps an ErrKind with the bytecode-site-specific detail that
// produced it, formatted the way vm.bcerr reports opcode decode errors.
type Err struct {
	Kind ErrKind
	Site int    // bytecode offset, -1 if not applicable
	Name string // attribute/global name involved, if any
}

func (e *Err) Error() string {
	if e.Name == "" {
		return e.Kind.String()
	}
	if e.Site < 0 {
		return e.Kind.String() + ": " + e.Name
	}
	return e.Kind.String() + ": " + e.Name + " (site " + strconv.Itoa(e.Site) + ")"
}

// Is makes errors.Is match any *Err with the same Kind, e.g.
// errors.Is(err, &Err{Kind: ErrPolymorphicFull}), mirroring how vm.bcerr
// compares against op sentinels.
func (e *Err) Is(target error) bool {
	var other *Err
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}
