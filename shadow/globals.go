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

// ClassifyGlobal resolves a LOAD_GLOBAL site against the two-dict chain
// (module globals, then builtins), caching the merged version tag so a
// single comparison on the next visit tells us whether either dict
// changed.
func ClassifyGlobal(globals, builtins Dict, name string) (*GlobalsEntry, Value, error) {
	if v, ok := globals.Get(name); ok {
		return &GlobalsEntry{
			Name:     name,
			globals:  globals,
			builtins: builtins,
			version:  mergedVersion(globals, builtins),
			value:    v,
		}, v, nil
	}
	if builtins != nil {
		if v, ok := builtins.Get(name); ok {
			return &GlobalsEntry{
				Name:         name,
				globals:      globals,
				builtins:     builtins,
				version:      mergedVersion(globals, builtins),
				value:        v,
				fromBuiltins: true,
			}, v, nil
		}
	}
	return nil, Value(0), &Err{Kind: ErrUncacheable, Name: name}
}

func mergedVersion(globals, builtins Dict) uint64 {
	v := globals.Version()
	if builtins != nil {
		if bv := builtins.Version(); bv > v {
			v = bv
		}
	}
	return v
}

// Load resolves a GlobalsEntry against the live dict chain. A Miss means
// the caller must re-run ClassifyGlobal.
func (e *GlobalsEntry) Load() (Value, Result, error) {
	if e.globals == nil {
		return Value(0), Miss, nil
	}
	if mergedVersion(e.globals, e.builtins) != e.version {
		return Value(0), Miss, nil
	}
	return e.value, Hit, nil
}

// Invalidate detaches the entry so the next Load reports Miss.
func (e *GlobalsEntry) Invalidate() {
	e.globals = nil
	e.builtins = nil
}
