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

package shadow_test

import (
	"errors"
	"testing"

	"github.com/sneller-labs/shadowvm/internal/testobj"
	"github.com/sneller-labs/shadowvm/pyvalue"
	"github.com/sneller-labs/shadowvm/shadow"
)

func cfg() shadow.Config {
	return shadow.DefaultConfig()
}

func TestDictNoDescrHitAfterMiss(t *testing.T) {
	typ := testobj.NewType("Point")
	inst := testobj.NewInstance(typ)
	id, _ := inst.Dict()
	id.Set("x", pyvalue.FromInt(3))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadAttr(1, inst, "x")
	if err != nil || v.AsInt() != 3 {
		t.Fatalf("first load: v=%v err=%v", v, err)
	}
	// second visit should be a cache hit against the same site.
	v2, err := tbl.LoadAttr(1, inst, "x")
	if err != nil || v2.AsInt() != 3 {
		t.Fatalf("second load: v=%v err=%v", v2, err)
	}
}

func TestDataDescriptorBeatsInstanceDict(t *testing.T) {
	typ := testobj.NewType("Prop")
	backing := pyvalue.FromInt(0)
	typ.SetDataAttr("x",
		func(shadow.Instance) (pyvalue.Value, error) { return backing, nil },
		func(_ shadow.Instance, v pyvalue.Value) error { backing = v; return nil },
	)
	inst := testobj.NewInstance(typ)
	id, _ := inst.Dict()
	id.Set("x", pyvalue.FromInt(99)) // shadowed dict entry, must lose to the data descriptor

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadAttr(1, inst, "x")
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInt() != 0 {
		t.Fatalf("data descriptor should win over dict entry, got %v", v)
	}

	if err := tbl.StoreAttr(2, inst, "x", pyvalue.FromInt(7)); err != nil {
		t.Fatal(err)
	}
	if backing.AsInt() != 7 {
		t.Fatalf("store must route through the data descriptor, backing=%v", backing)
	}
}

func TestSlotAccess(t *testing.T) {
	typ := testobj.NewType("Vec")
	xSlot := typ.AddSlot("x")
	inst := testobj.NewInstance(typ)
	inst.SetSlot(xSlot, pyvalue.FromInt(11))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadAttr(1, inst, "x")
	if err != nil || v.AsInt() != 11 {
		t.Fatalf("slot load: v=%v err=%v", v, err)
	}
	if err := tbl.StoreAttr(1, inst, "x", pyvalue.FromInt(12)); err != nil {
		t.Fatal(err)
	}
	got, _ := inst.Slot(xSlot)
	if got.AsInt() != 12 {
		t.Fatalf("slot store did not take effect, got %v", got)
	}
}

func TestSplitDictPoisonedKeysNegativeHit(t *testing.T) {
	typ := testobj.NewType("Shape")
	typ.SetSplitLayout(true)
	inst := testobj.NewInstance(typ)

	tbl := shadow.NewTable(cfg())
	_, err1 := tbl.LoadAttr(1, inst, "missing")
	if err1 == nil {
		t.Fatal("expected an attribute-absent error on first lookup")
	}
	// Second lookup for the same name on the same (unchanged) shape
	// must hit the poisoned-keys negative-hit path rather than
	// rescanning: same error, no panic, no mutation of the instance.
	_, err2 := tbl.LoadAttr(1, inst, "missing")
	if err2 == nil {
		t.Fatal("expected the confirmed-negative path to still report the attribute as absent")
	}
}

func TestSplitDictRebuildOnShapeGrowth(t *testing.T) {
	typ := testobj.NewType("Shape")
	typ.SetSplitLayout(true)
	inst := testobj.NewInstance(typ)
	sd, _ := inst.Split()
	split := sd.(*testobj.SplitDict)
	split.AddAttr("x", pyvalue.FromInt(5))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadAttr(1, inst, "x")
	if err != nil || v.AsInt() != 5 {
		t.Fatalf("initial split load: v=%v err=%v", v, err)
	}
	// Hit again with no shape change.
	v2, err := tbl.LoadAttr(1, inst, "x")
	if err != nil || v2.AsInt() != 5 {
		t.Fatalf("second split load: v=%v err=%v", v2, err)
	}

	// Grow the instance's own shape: identity changes, forcing a
	// rebuild (slight miss) rather than a stale hit.
	split.AddAttr("y", pyvalue.FromInt(9))
	split.AddAttr("x", pyvalue.FromInt(6)) // x already exists in the grown shape: rebinds it in place

	v3, err := tbl.LoadAttr(1, inst, "x")
	if err != nil || v3.AsInt() != 6 {
		t.Fatalf("post-growth split load: v=%v err=%v", v3, err)
	}
}

func TestMethodLoadDoesNotRequireInstanceDictEntry(t *testing.T) {
	typ := testobj.NewType("Greeter")
	typ.SetAttr("greet", pyvalue.FromInt(42)) // stand-in for a function object
	inst := testobj.NewInstance(typ)

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadMethod(1, inst, "greet")
	if err != nil || v.AsInt() != 42 {
		t.Fatalf("method load: v=%v err=%v", v, err)
	}
	v2, err := tbl.LoadMethod(1, inst, "greet")
	if err != nil || v2.AsInt() != 42 {
		t.Fatalf("method load (cached): v=%v err=%v", v2, err)
	}
}

func TestModuleAttrInvalidatesOnRebind(t *testing.T) {
	mod := testobj.NewModule()
	mod.Dict().Set("VERSION", pyvalue.FromInt(1))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadAttr(1, mod, "VERSION")
	if err != nil || v.AsInt() != 1 {
		t.Fatalf("module load: v=%v err=%v", v, err)
	}

	mod.Dict().Set("VERSION", pyvalue.FromInt(2))
	v2, err := tbl.LoadAttr(1, mod, "VERSION")
	if err != nil || v2.AsInt() != 2 {
		t.Fatalf("module load after rebind: v=%v err=%v", v2, err)
	}
}

func TestGlobalFallsBackToBuiltins(t *testing.T) {
	globals := testobj.NewDict()
	builtins := testobj.NewDict()
	builtins.Set("len", pyvalue.FromInt(7))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadGlobal(1, globals, builtins, "len")
	if err != nil || v.AsInt() != 7 {
		t.Fatalf("global via builtins: v=%v err=%v", v, err)
	}

	globals.Set("len", pyvalue.FromInt(99))
	v2, err := tbl.LoadGlobal(1, globals, builtins, "len")
	if err != nil || v2.AsInt() != 99 {
		t.Fatalf("global after shadowing builtins: v=%v err=%v", v2, err)
	}
}

func TestTypeLevelAttrInvalidatesOnModification(t *testing.T) {
	typ := testobj.NewType("C")
	typ.SetAttr("N", pyvalue.FromInt(1))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadAttr(1, typ, "N")
	if err != nil || v.AsInt() != 1 {
		t.Fatalf("class attr load: v=%v err=%v", v, err)
	}

	typ.SetAttr("N", pyvalue.FromInt(2))
	typ.Modified()

	v2, err := tbl.LoadAttr(1, typ, "N")
	if err != nil || v2.AsInt() != 2 {
		t.Fatalf("class attr load after modification: v=%v err=%v", v2, err)
	}
}

func TestPolymorphicSiteDegradesAfterBound(t *testing.T) {
	c := cfg()
	c.PolymorphicCacheSize = 2
	tbl := shadow.NewTable(c)

	mk := func(name string, val int64) *testobj.Instance {
		typ := testobj.NewType(name)
		inst := testobj.NewInstance(typ)
		d, _ := inst.Dict()
		d.Set("v", pyvalue.FromInt(val))
		return inst
	}
	a, b, c2, d := mk("A", 1), mk("B", 2), mk("C", 3), mk("D", 4)

	for _, step := range []struct {
		inst    *testobj.Instance
		want    int64
		wantErr bool
	}{{a, 1, false}, {b, 2, false}, {c2, 3, true}} {
		v, err := tbl.LoadAttr(1, step.inst, "v")
		if step.wantErr {
			// The third distinct type exceeds PolymorphicCacheSize=2
			// (A and B fill both poly slots): the site degrades to uncacheable,
			// reported as ErrPolymorphicFull, but the value it resolved
			// on this very call is still the correct one.
			if !errors.Is(err, &shadow.Err{Kind: shadow.ErrPolymorphicFull}) {
				t.Fatalf("load for %v: expected ErrPolymorphicFull, got %v", step.inst, err)
			}
		} else if err != nil {
			t.Fatalf("load for %v: %v", step.inst, err)
		}
		if v.AsInt() != step.want {
			t.Fatalf("load for shape want %d got %d", step.want, v.AsInt())
		}
	}
	// A fourth, previously-unseen type still resolves correctly: the
	// site is permanently uncacheable now but ClassifyAttr still runs
	// from scratch on every visit.
	v, err := tbl.LoadAttr(1, d, "v")
	if err != nil || v.AsInt() != 4 {
		t.Fatalf("post-degradation load: v=%v err=%v", v, err)
	}
}

func TestInstanceReclassInvalidatesCache(t *testing.T) {
	t1 := testobj.NewType("Old")
	t1.SetAttr("kind", pyvalue.FromInt(1))
	t2 := testobj.NewType("New")
	t2.SetAttr("kind", pyvalue.FromInt(2))

	inst := testobj.NewInstance(t1)
	d, _ := inst.Dict()
	_ = d

	tbl := shadow.NewTable(cfg())
	// "kind" only resolves via the class (non-data descriptor), dict is
	// empty, so this exercises KindNoDictDescr... actually t1 has a
	// combined dict (no slots, not split), so this is KindDictDescr.
	v, err := tbl.LoadAttr(1, inst, "kind")
	if err != nil || v.AsInt() != 1 {
		t.Fatalf("load before reclass: v=%v err=%v", v, err)
	}

	inst.Reclass(t2)
	v2, err := tbl.LoadAttr(1, inst, "kind")
	if err != nil || v2.AsInt() != 2 {
		t.Fatalf("load after reclass: v=%v err=%v", v2, err)
	}
}

func TestStatsCollection(t *testing.T) {
	c := cfg()
	c.CollectStats = true
	tbl := shadow.NewTable(c)
	typ := testobj.NewType("S")
	inst := testobj.NewInstance(typ)
	d, _ := inst.Dict()
	d.Set("a", pyvalue.FromInt(1))

	if _, err := tbl.LoadAttr(1, inst, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.LoadAttr(1, inst, "a"); err != nil {
		t.Fatal(err)
	}
	stats := tbl.Stats()
	if stats == nil {
		t.Fatal("expected stats to be collected")
	}
	if stats.Opcode.Hits == 0 {
		t.Fatalf("expected at least one recorded hit, got %+v", stats.Opcode)
	}
	if report := stats.Report(); report == "" {
		t.Fatal("expected a non-empty report")
	}
	dump, err := stats.Dump()
	if err != nil {
		t.Fatal(err)
	}
	if len(dump) == 0 {
		t.Fatal("expected a non-empty dump")
	}
}

func TestGetattrOverrideIsUncacheable(t *testing.T) {
	typ := testobj.NewType("Dynamic")
	typ.SetGetattrOverride(true)
	inst := testobj.NewInstance(typ)

	tbl := shadow.NewTable(cfg())
	_, err := tbl.LoadAttr(1, inst, "anything")
	if err == nil {
		t.Fatal("expected ErrUncacheable for a __getattr__ override")
	}
}

func TestInvalidateSiteForcesReclassification(t *testing.T) {
	typ := testobj.NewType("R")
	inst := testobj.NewInstance(typ)
	d, _ := inst.Dict()
	d.Set("v", pyvalue.FromInt(1))

	tbl := shadow.NewTable(cfg())
	if _, err := tbl.LoadAttr(1, inst, "v"); err != nil {
		t.Fatal(err)
	}
	tbl.InvalidateSite(1)
	d.Set("v", pyvalue.FromInt(2))
	v, err := tbl.LoadAttr(1, inst, "v")
	if err != nil || v.AsInt() != 2 {
		t.Fatalf("load after InvalidateSite: v=%v err=%v", v, err)
	}
}

func TestSubscrSequenceFastPathAndInvalidation(t *testing.T) {
	typ := testobj.NewType("List")
	list := testobj.NewList(typ, pyvalue.FromInt(10), pyvalue.FromInt(20), pyvalue.FromInt(30))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadSubscr(1, list, pyvalue.FromInt(1))
	if err != nil || v.AsInt() != 20 {
		t.Fatalf("first subscript load: v=%v err=%v", v, err)
	}
	// Second visit should hit the installed SubscrEntry rather than
	// reclassifying.
	v2, err := tbl.LoadSubscr(1, list, pyvalue.FromInt(2))
	if err != nil || v2.AsInt() != 30 {
		t.Fatalf("second subscript load: v=%v err=%v", v2, err)
	}
	if cast, ok := tbl.GetCastType(1); !ok || cast != shadow.CastSequence {
		t.Fatalf("expected CastSequence recorded at site 1, got %v ok=%v", cast, ok)
	}

	// Growing the list must not stale the site: Len() is re-checked on
	// every visit rather than cached.
	list.Append(pyvalue.FromInt(40))
	v3, err := tbl.LoadSubscr(1, list, pyvalue.FromInt(3))
	if err != nil || v3.AsInt() != 40 {
		t.Fatalf("subscript load after append: v=%v err=%v", v3, err)
	}

	// Out-of-range index on an otherwise-matching owner is a cache hit
	// carrying an error, not a silent Miss.
	if _, err := tbl.LoadSubscr(1, list, pyvalue.FromInt(99)); err == nil {
		t.Fatal("expected an error for an out-of-range index")
	}
}

func TestSubscrMappingRevalidatesOnVersionBump(t *testing.T) {
	typ := testobj.NewType("Dict")
	m := testobj.NewMapping(typ)
	m.Set(pyvalue.FromInt(1), pyvalue.FromInt(100))

	tbl := shadow.NewTable(cfg())
	v, err := tbl.LoadSubscr(1, m, pyvalue.FromInt(1))
	if err != nil || v.AsInt() != 100 {
		t.Fatalf("first mapping load: v=%v err=%v", v, err)
	}
	if cast, ok := tbl.GetCastType(1); !ok || cast != shadow.CastMapping {
		t.Fatalf("expected CastMapping recorded at site 1, got %v ok=%v", cast, ok)
	}

	m.Set(pyvalue.FromInt(1), pyvalue.FromInt(200))
	v2, err := tbl.LoadSubscr(1, m, pyvalue.FromInt(1))
	if err != nil || v2.AsInt() != 200 {
		t.Fatalf("mapping load after version bump: v=%v err=%v", v2, err)
	}
}

func TestFieldCachePopulatedOnSlotAccess(t *testing.T) {
	typ := testobj.NewType("Vec")
	xSlot := typ.AddSlot("x")
	inst := testobj.NewInstance(typ)
	inst.SetSlot(xSlot, pyvalue.FromInt(5))

	tbl := shadow.NewTable(cfg())
	if _, err := tbl.LoadAttr(1, inst, "x"); err != nil {
		t.Fatal(err)
	}
	fc, ok := tbl.GetFieldCache(1)
	if !ok {
		t.Fatal("expected a field cache entry after a KindSlot load")
	}
	if fc.Offset != xSlot {
		t.Fatalf("field cache offset = %d, want %d", fc.Offset, xSlot)
	}
}

func TestInitCachePatchByteCodeAndClearCache(t *testing.T) {
	code := []byte{0x01, 0x00, 0x02, 0x05}
	tbl := shadow.InitCache(code, cfg())

	if err := tbl.PatchByteCode(0, 0x99, 0x01); err != nil {
		t.Fatal(err)
	}
	patched := tbl.ByteCode()
	if patched[0] != 0x99 || patched[1] != 0x01 {
		t.Fatalf("unexpected patched bytecode: %v", patched)
	}
	// The original slice must not have been mutated in place.
	if code[0] != 0x01 {
		t.Fatalf("InitCache must copy the input, original mutated: %v", code)
	}
	if err := tbl.PatchByteCode(10, 0, 0); err == nil {
		t.Fatal("expected an error patching past the end of the bytecode")
	}

	typ := testobj.NewType("T")
	inst := testobj.NewInstance(typ)
	d, _ := inst.Dict()
	d.Set("a", pyvalue.FromInt(1))
	if _, err := tbl.LoadAttr(1, inst, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := tbl.GetInstanceAttr(1); !ok {
		t.Fatal("expected an installed InstanceEntry before ClearCache")
	}
	tbl.ClearCache()
	if _, ok := tbl.GetInstanceAttr(1); ok {
		t.Fatal("expected ClearCache to remove the installed InstanceEntry")
	}
}

func TestAnchorL2MemoizesLookup(t *testing.T) {
	typ := testobj.NewType("Shared")
	typ.SetAttr("greet", pyvalue.FromInt(7))

	a := testobj.NewInstance(typ)
	b := testobj.NewInstance(typ)

	tbl := shadow.NewTable(cfg())
	// Two different instances of the same type, at two different
	// sites, both resolve "greet" through the class; the second lookup
	// must reuse the first's memoized Descriptor via Anchor.l2 rather
	// than re-walking the MRO, though this is only observable as both
	// resolving to the same value.
	v1, err := tbl.LoadAttr(1, a, "greet")
	if err != nil || v1.AsInt() != 7 {
		t.Fatalf("first instance load: v=%v err=%v", v1, err)
	}
	v2, err := tbl.LoadAttr(2, b, "greet")
	if err != nil || v2.AsInt() != 7 {
		t.Fatalf("second instance load: v=%v err=%v", v2, err)
	}

	typ.SetAttr("greet", pyvalue.FromInt(9))
	typ.Modified()
	v3, err := tbl.LoadAttr(1, a, "greet")
	if err != nil || v3.AsInt() != 9 {
		t.Fatalf("load after Modified must observe the new value: v=%v err=%v", v3, err)
	}
}
