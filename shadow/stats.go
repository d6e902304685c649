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
	"bytes"
	"fmt"
	"sort"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/maps"
)

// OpcodeStats tallies fast-path outcomes across an entire Table's
// lifetime, mirroring the original interpreter's INLINE_CACHE_PROFILE
// counters.
type OpcodeStats struct {
	Hits         int64
	SlightMisses int64
	Misses       int64
	Uncacheable  int64
	Entries      int64
}

// Stats is a Table's statistics collector: overall OpcodeStats plus a
// per-name-per-outcome breakdown (TypeStats, despite the name, keys by
// attribute/global name rather than by type — it answers "which names
// are thrashing" rather than "which types are thrashing", which is the
// more actionable question once PolymorphicCacheSize is already known).
type Stats struct {
	Opcode    OpcodeStats
	TypeStats map[string]map[string]int64
}

func newStats() *Stats {
	return &Stats{TypeStats: make(map[string]map[string]int64)}
}

func (s *Stats) record(name string, r Result) {
	switch r {
	case Hit:
		s.Opcode.Hits++
	case SlightMiss:
		s.Opcode.SlightMisses++
	case Miss:
		s.Opcode.Misses++
		s.Opcode.Entries++
	}
	s.bump(name, r.String())
}

func (s *Stats) recordUncacheable(name string) {
	s.Opcode.Uncacheable++
	s.bump(name, "uncacheable")
}

func (s *Stats) bump(name, outcome string) {
	m, ok := s.TypeStats[name]
	if !ok {
		m = make(map[string]int64)
		s.TypeStats[name] = m
	}
	m[outcome]++
}

// Report renders a deterministic, human-readable summary suitable for a
// CLI to print (cmd/shadowdemo).
func (s *Stats) Report() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "hits=%d slight-misses=%d misses=%d uncacheable=%d entries=%d\n",
		s.Opcode.Hits, s.Opcode.SlightMisses, s.Opcode.Misses, s.Opcode.Uncacheable, s.Opcode.Entries)
	names := maps.Keys(s.TypeStats)
	sort.Strings(names)
	for _, name := range names {
		outcomes := s.TypeStats[name]
		keys := maps.Keys(outcomes)
		sort.Strings(keys)
		fmt.Fprintf(&buf, "  %s (hash=%x):", name, NameHash(name))
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%d", k, outcomes[k])
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// Dump gzip-compresses the report and prefixes it with a BLAKE2b-256
// fingerprint, so a dump can be archived and deduplicated by content
// alongside a crash report or perf capture without decompressing it.
func (s *Stats) Dump() ([]byte, error) {
	report := []byte(s.Report())
	sum := blake2b.Sum256(report)

	var buf bytes.Buffer
	buf.Write(sum[:])

	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(report); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
