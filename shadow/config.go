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
	"os"

	"sigs.k8s.io/yaml"
)

// Config tunes the handful of knobs the shadowcode subsystem exposes
// without recompiling: how wide a polymorphic cache is allowed to grow
// and whether per-opcode statistics are collected at all (they cost a
// counter increment per fast-path hit, so production deployments that
// don't need OpcodeStats can turn them off).
type Config struct {
	// PolymorphicCacheSize bounds how many distinct type shapes a
	// single bytecode site can specialize for before it falls back to
	// the generic path.
	PolymorphicCacheSize int `json:"polymorphicCacheSize"`
	// CollectStats enables OpcodeStats/TypeStats bookkeeping.
	CollectStats bool `json:"collectStats"`
	// MaxFieldCaches is loaded and defaulted like the other fields, but
	// Table does not consult it: its field and cast-type caches hold one
	// entry per site with no bound.
	MaxFieldCaches int `json:"maxFieldCaches"`
}

// DefaultConfig returns the tuning CPython's Cinder fork shipped with:
// four-wide polymorphic caches, stats off by default.
func DefaultConfig() Config {
	return Config{
		PolymorphicCacheSize: 4,
		CollectStats:         false,
		MaxFieldCaches:       4,
	}
}

// LoadConfig reads a YAML-encoded Config from path, defaulting any zero
// field left unset in the file to DefaultConfig's value. A missing file
// is not an error: it simply yields DefaultConfig(), matching how
// db.Sync treats an absent tenant config (db/sync.go) as "use defaults".
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return cfg, err
	}
	if fromFile.PolymorphicCacheSize > 0 {
		cfg.PolymorphicCacheSize = fromFile.PolymorphicCacheSize
	}
	if fromFile.MaxFieldCaches > 0 {
		cfg.MaxFieldCaches = fromFile.MaxFieldCaches
	}
	cfg.CollectStats = fromFile.CollectStats
	return cfg, nil
}
