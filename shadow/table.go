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
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// site is the per-bytecode-offset cache slot. A site only ever holds
// entries for the one kind of access actually compiled at that offset:
// mono/poly for instance attribute/method sites, typeEntry for
// class-level loads, moduleEntry for module attribute loads, and
// globalsEntry for LOAD_GLOBAL. uncacheable latches once a site's
// polymorphic cache overflows and stays set until InvalidateSite (or
// ClearCache) resets the site.
type site struct {
	name        string
	isMethod    bool
	mono        *InstanceEntry
	poly        []*InstanceEntry
	typeEntry   *TypeEntry
	moduleEntry *ModuleEntry
	globals     *GlobalsEntry
	subscr      *SubscrEntry
	uncacheable bool
}

// Table is the per-function shadow-code side table: one Table backs one
// compiled function's bytecode, keyed by site (bytecode offset). It
// plays the role of Cinder's _PyShadowCode plus the opcode-rewriting
// step that patches the interpreter's instruction stream in place.
type Table struct {
	ID  uuid.UUID
	cfg Config

	sites map[int]*site
	stats *Stats

	// bytecode is the rewritten instruction stream this Table shadows.
	// PatchByteCode is the only thing that ever mutates it once
	// InitCache has copied the original code in.
	bytecode []byte

	// fieldCache is the slot-index/representation record a KindSlot
	// site resolved to, keyed by bytecode site id, mirroring Cinder's
	// _PyShadowCode.field_caches array.
	fieldCache map[int]FieldCache

	// castCache records the last CastType a BINARY_SUBSCR site
	// committed to, keyed by site id, mirroring
	// _PyShadowCode.cast_cache.
	castCache map[int]CastType
}

// InitCache builds a Table over a copy of code, ready to have sites
// patched into it as they specialize. It plays the role of Cinder's
// _PyShadow_InitCache: the Table owns its own copy of the instruction
// stream from this point on, so callers are free to mutate the
// original slice afterward.
func InitCache(code []byte, cfg Config) *Table {
	t := NewTable(cfg)
	t.bytecode = append([]byte(nil), code...)
	return t
}

// NewTable creates an empty Table for one compiled function.
func NewTable(cfg Config) *Table {
	t := &Table{
		ID:         uuid.New(),
		cfg:        cfg,
		sites:      make(map[int]*site),
		fieldCache: make(map[int]FieldCache),
		castCache:  make(map[int]CastType),
	}
	if cfg.CollectStats {
		t.stats = newStats()
	}
	return t
}

// ByteCode returns the Table's current rewritten instruction stream, or
// nil if it was built with NewTable rather than InitCache.
func (t *Table) ByteCode() []byte {
	return t.bytecode
}

// PatchByteCode overwrites the two bytes at offset with a specialized
// opcode/argument pair, the Go counterpart of Cinder's
// _PyShadow_PatchByteCode poking next_instr in place. It is an
// ErrBadShadowState for offset to fall outside the rewritten stream.
func (t *Table) PatchByteCode(offset int, op, arg byte) error {
	if offset < 0 || offset+1 >= len(t.bytecode) {
		return &Err{Kind: ErrBadShadowState, Site: offset}
	}
	t.bytecode[offset] = op
	t.bytecode[offset+1] = arg
	return nil
}

// GetGlobal returns the GlobalsEntry installed at a LOAD_GLOBAL site,
// if any.
func (t *Table) GetGlobal(id int) (*GlobalsEntry, bool) {
	s, ok := t.sites[id]
	if !ok || s.globals == nil {
		return nil, false
	}
	return s.globals, true
}

// GetInstanceAttr returns the monomorphic InstanceEntry installed at a
// LOAD_ATTR/LOAD_METHOD/STORE_ATTR site, if any. A site that has been
// promoted to polymorphic has no single entry to return here; use
// GetPolymorphicAttr instead.
func (t *Table) GetInstanceAttr(id int) (*InstanceEntry, bool) {
	s, ok := t.sites[id]
	if !ok || s.mono == nil {
		return nil, false
	}
	return s.mono, true
}

// GetModuleAttr returns the ModuleEntry installed at a module-attribute
// load site, if any.
func (t *Table) GetModuleAttr(id int) (*ModuleEntry, bool) {
	s, ok := t.sites[id]
	if !ok || s.moduleEntry == nil {
		return nil, false
	}
	return s.moduleEntry, true
}

// GetPolymorphicAttr returns the bounded array of type-keyed entries a
// promoted site holds, if any.
func (t *Table) GetPolymorphicAttr(id int) ([]*InstanceEntry, bool) {
	s, ok := t.sites[id]
	if !ok || len(s.poly) == 0 {
		return nil, false
	}
	return s.poly, true
}

// GetCastType returns the subscript shape last committed to at a
// BINARY_SUBSCR site, if any.
func (t *Table) GetCastType(id int) (CastType, bool) {
	c, ok := t.castCache[id]
	return c, ok
}

// GetFieldCache returns the slot-index/representation pair resolved
// for a typed-attribute (KindSlot) site, if any.
func (t *Table) GetFieldCache(id int) (FieldCache, bool) {
	f, ok := t.fieldCache[id]
	return f, ok
}

// ClearCache discards every specialization this Table holds, forcing
// every site back to from-scratch classification on its next visit.
// This is the whole-table counterpart to InvalidateSite, used when the
// dispatcher recompiles or discards the function this Table shadows.
func (t *Table) ClearCache() {
	for id := range t.sites {
		t.InvalidateSite(id)
	}
	for id := range t.fieldCache {
		delete(t.fieldCache, id)
	}
	for id := range t.castCache {
		delete(t.castCache, id)
	}
}

func (t *Table) siteFor(id int) *site {
	s, ok := t.sites[id]
	if !ok {
		s = &site{}
		t.sites[id] = s
	}
	return s
}

// Stats returns the Table's OpcodeStats/TypeStats collector, or nil if
// the Table was built with CollectStats disabled.
func (t *Table) Stats() *Stats { return t.stats }

// LoadAttr executes (or specializes) a LOAD_ATTR bytecode site. owner
// must be an Instance, Type, or Module; any other value is an
// ErrBadShadowState.
func (t *Table) LoadAttr(id int, owner Target, name string) (Value, error) {
	switch o := owner.(type) {
	case Type:
		return t.loadTypeAttr(id, o, name)
	case Module:
		return t.loadModuleAttr(id, o, name)
	case Instance:
		return t.loadInstanceAttr(id, o, name)
	default:
		return Value(0), &Err{Kind: ErrBadShadowState, Site: id, Name: name}
	}
}

func (t *Table) loadInstanceAttr(id int, owner Instance, name string) (Value, error) {
	s := t.siteFor(id)
	s.name = name
	if s.uncacheable {
		t.record(name, Miss)
		_, v, err := ClassifyAttr(owner, name)
		return v, err
	}

	if s.mono != nil {
		v, res, err := s.mono.LoadAttr(owner)
		if res != Miss {
			t.record(name, res)
			return v, err
		}
	}
	ownerType := owner.TypeOf()
	ownerHash := NameHash(ownerType.Name())
	if idx := slices.IndexFunc(s.poly, func(e *InstanceEntry) bool {
		return e.typeNameHash == ownerHash && e.cachedType == ownerType && !e.typeStale()
	}); idx >= 0 {
		v, res, err := s.poly[idx].LoadAttr(owner)
		if res != Miss {
			t.record(name, res)
			return v, err
		}
	}

	e, v, err := ClassifyAttr(owner, name)
	if err != nil {
		// A split-dict entry that recorded the name as absent (poisoned
		// keys) is installed anyway, so the next visit on the same
		// shape takes the confirmed-negative path instead of rescanning.
		if e != nil && e.poisoned {
			t.install(id, s, e)
		}
		t.recordUncacheable(name)
		return Value(0), err
	}
	if e != nil {
		if installErr := t.install(id, s, e); installErr != nil {
			t.recordUncacheable(name)
			return v, installErr
		}
	}
	t.record(name, Miss)
	return v, nil
}

// install places a freshly classified entry: first into the monomorphic
// slot if empty, otherwise promotes the existing mono entry (and any
// prior poly entries) into the polymorphic array, bounded at
// cfg.PolymorphicCacheSize. Once the array is full, the site degrades to
// permanently uncacheable rather than thrashing, and install reports
// ErrPolymorphicFull so the caller can tell a successful-but-final
// specialization apart from an ordinary miss. id identifies the
// bytecode site so a KindSlot entry can populate the Table's field
// cache the moment it is installed.
func (t *Table) install(id int, s *site, e *InstanceEntry) error {
	e.typeNameHash = NameHash(e.cachedType.Name())
	if e.Kind == KindSlot {
		t.fieldCache[id] = FieldCache{Offset: e.slot, Kind: FieldObject}
	}
	if s.mono == nil && len(s.poly) == 0 {
		s.mono = e
		return nil
	}
	// A fresh entry for a type the site already holds replaces the old
	// (missed or stale) one rather than taking another slot, so only
	// distinct types count toward the bound.
	if s.mono != nil && s.mono.cachedType == e.cachedType {
		s.mono = e
		return nil
	}
	if i := slices.IndexFunc(s.poly, func(p *InstanceEntry) bool { return p.cachedType == e.cachedType }); i >= 0 {
		s.poly[i] = e
		return nil
	}
	if s.mono != nil {
		s.poly = append(s.poly, s.mono)
		s.mono = nil
	}
	if len(s.poly) >= t.cfg.PolymorphicCacheSize {
		s.uncacheable = true
		s.poly = nil
		return &Err{Kind: ErrPolymorphicFull, Site: id, Name: e.Name}
	}
	s.poly = append(s.poly, e)
	return nil
}

func (t *Table) loadTypeAttr(id int, owner Type, name string) (Value, error) {
	s := t.siteFor(id)
	s.name = name
	if s.typeEntry != nil {
		v, res, err := s.typeEntry.LoadAttr(owner)
		if res != Miss {
			t.record(name, res)
			return v, err
		}
	}
	e, v, err := ClassifyTypeAttr(owner, name)
	if err != nil {
		t.recordUncacheable(name)
		return Value(0), err
	}
	s.typeEntry = e
	t.record(name, Miss)
	return v, nil
}

func (t *Table) loadModuleAttr(id int, owner Module, name string) (Value, error) {
	s := t.siteFor(id)
	s.name = name
	if s.moduleEntry != nil {
		v, res, err := s.moduleEntry.LoadAttr(owner)
		if res != Miss {
			t.record(name, res)
			return v, err
		}
	}
	e, v, err := ClassifyModuleAttr(owner, name)
	if err != nil {
		t.recordUncacheable(name)
		return Value(0), err
	}
	s.moduleEntry = e
	t.record(name, Miss)
	return v, nil
}

// LoadMethod executes (or specializes) a LOAD_METHOD site.
func (t *Table) LoadMethod(id int, owner Instance, name string) (Value, error) {
	s := t.siteFor(id)
	s.name = name
	s.isMethod = true
	if s.uncacheable {
		t.record(name, Miss)
		_, v, err := ClassifyMethod(owner, name)
		return v, err
	}
	if s.mono != nil {
		v, res, err := s.mono.LoadMethod(owner)
		if res != Miss {
			t.record(name, res)
			return v, err
		}
	}
	e, v, err := ClassifyMethod(owner, name)
	if err != nil {
		t.recordUncacheable(name)
		return Value(0), err
	}
	if installErr := t.install(id, s, e); installErr != nil {
		t.recordUncacheable(name)
		return v, installErr
	}
	t.record(name, Miss)
	return v, nil
}

// StoreAttr executes (or specializes) a STORE_ATTR site.
func (t *Table) StoreAttr(id int, owner Instance, name string, v Value) error {
	s := t.siteFor(id)
	s.name = name
	if !s.uncacheable && s.mono != nil {
		res, err := s.mono.StoreAttr(owner, v)
		if res != Miss {
			t.record(name, res)
			return err
		}
	}
	e, _, err := ClassifyAttr(owner, name)
	if err != nil {
		t.recordUncacheable(name)
		return err
	}
	res, err := e.StoreAttr(owner, v)
	if err != nil {
		return err
	}
	if installErr := t.install(id, s, e); installErr != nil {
		t.recordUncacheable(name)
		return installErr
	}
	if res == Miss {
		res = SlightMiss
	}
	t.record(name, res)
	return nil
}

// LoadGlobal executes (or specializes) a LOAD_GLOBAL site.
func (t *Table) LoadGlobal(id int, globals, builtins Dict, name string) (Value, error) {
	s := t.siteFor(id)
	s.name = name
	if s.globals != nil {
		v, res, err := s.globals.Load()
		if res != Miss {
			t.record(name, res)
			return v, err
		}
	}
	e, v, err := ClassifyGlobal(globals, builtins, name)
	if err != nil {
		t.recordUncacheable(name)
		return Value(0), err
	}
	s.globals = e
	t.record(name, Miss)
	return v, nil
}

// LoadSubscr executes (or specializes) a BINARY_SUBSCR site. owner must
// implement Subscriptable; it additionally implements SequenceSubscript
// or MappingSubscript for the fast paths this specializes.
func (t *Table) LoadSubscr(id int, owner Subscriptable, key Value) (Value, error) {
	s := t.siteFor(id)
	if s.uncacheable {
		_, v, err := ClassifySubscr(owner, key)
		t.record("__getitem__", Miss)
		return v, err
	}
	if s.subscr != nil {
		v, res, err := s.subscr.LoadSubscr(owner, key)
		if res != Miss {
			t.record("__getitem__", res)
			return v, err
		}
	}
	e, v, err := ClassifySubscr(owner, key)
	if err != nil {
		t.recordUncacheable("__getitem__")
		return Value(0), err
	}
	if e == nil {
		// Resolved via the generic fallback: nothing to specialize, but
		// not a permanent failure either (e.g. a plain Subscriptable
		// that implements neither SequenceSubscript nor
		// MappingSubscript). Leave the site as-is so a later visit with
		// a differently-shaped owner still gets a chance to specialize.
		t.record("__getitem__", Miss)
		return v, nil
	}
	s.subscr = e
	t.castCache[id] = e.cast
	t.record("__getitem__", Miss)
	return v, nil
}

func (t *Table) record(name string, r Result) {
	if t.stats != nil {
		t.stats.record(name, r)
	}
}

func (t *Table) recordUncacheable(name string) {
	if t.stats != nil {
		t.stats.recordUncacheable(name)
	}
}

// InvalidateSite forces the site at id to reclassify on its next visit,
// regardless of which kind of entry it currently holds. This is used by
// tests and by the demo CLI to simulate an out-of-band rewrite; ordinary
// invalidation flows through Anchor.bump/TypeModified/ModuleModified
// instead.
func (t *Table) InvalidateSite(id int) {
	s, ok := t.sites[id]
	if !ok {
		return
	}
	if s.mono != nil {
		s.mono.Invalidate()
	}
	for _, e := range s.poly {
		e.Invalidate()
	}
	s.poly = nil
	s.mono = nil
	if s.typeEntry != nil {
		s.typeEntry.Invalidate()
	}
	if s.moduleEntry != nil {
		s.moduleEntry.Invalidate()
	}
	if s.globals != nil {
		s.globals.Invalidate()
	}
	if s.subscr != nil {
		s.subscr.Invalidate()
		s.subscr = nil
	}
	delete(t.castCache, id)
	delete(t.fieldCache, id)
	s.uncacheable = false
}
