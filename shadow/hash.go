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
	"hash/fnv"

	"golang.org/x/sys/cpu"

	"github.com/dchest/siphash"
)

// nameHashKey0/nameHashKey1 are the fixed SipHash key behind NameHash,
// which pre-checks polymorphic cache entries (table.go) and is printed
// beside each name in the stats report (stats.go).
const (
	nameHashKey0 = 0x646f64676520656c
	nameHashKey1 = 0x6c617a7920636174
)

// wideHashPath records whether the CPU offers the SSE4.2/AES-NI
// extensions dchest/siphash's assembly kernel requires. The two sides
// of this branch produce different digests for the same input
// (SipHash-2-4 versus FNV-1a); that is harmless because NameHash is
// never compared across machines with different CPU levels, only
// within one process's own Table. On a CPU lacking those extensions
// the SipHash reference path costs noticeably more per byte than a
// short FNV-1a pass, so the fallback is worth taking rather than
// paying for scalar SipHash unconditionally.
var wideHashPath = cpu.X86.HasSSE42 && cpu.X86.HasAES

// NameHash returns a 64-bit digest of an attribute/global name, used to
// pre-check a polymorphic cache entry's type ahead of the full identity
// compare and printed beside each name in Stats.Report.
func NameHash(name string) uint64 {
	if wideHashPath {
		return siphash.Hash(nameHashKey0, nameHashKey1, []byte(name))
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}
