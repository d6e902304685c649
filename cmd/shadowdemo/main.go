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

// Command shadowdemo assembles a toy object graph, drives a handful of
// attribute/method/global accesses through a shadow.Table, and prints
// the resulting inline-cache statistics. It exists to exercise the
// shadow package end to end outside of its test suite, the way
// cmd/sneller exercises the query engine outside of vm's own tests.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sneller-labs/shadowvm/internal/testobj"
	"github.com/sneller-labs/shadowvm/pyvalue"
	"github.com/sneller-labs/shadowvm/shadow"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a shadowcode YAML config (optional)")
		iterations = flag.Int("n", 5, "number of times to re-run the access pattern")
		dumpStats  = flag.Bool("dump", false, "write a compressed stats dump to stdout instead of the text report")
	)
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("shadowdemo: ")

	cfg := shadow.DefaultConfig()
	if *configPath != "" {
		loaded, err := shadow.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	cfg.CollectStats = true

	tbl := shadow.NewTable(cfg)
	if err := run(tbl, *iterations); err != nil {
		log.Fatalf("run: %v", err)
	}

	stats := tbl.Stats()
	if *dumpStats {
		dump, err := stats.Dump()
		if err != nil {
			log.Fatalf("dump: %v", err)
		}
		if _, err := os.Stdout.Write(dump); err != nil {
			log.Fatalf("write: %v", err)
		}
		return
	}
	fmt.Print(stats.Report())
}

// run builds a small class hierarchy and module, then exercises a
// LOAD_ATTR site, a LOAD_METHOD site, a LOAD_GLOBAL site, and a
// BINARY_SUBSCR site repeatedly against a shared shadow.Table so its
// cache actually warms up.
func run(tbl *shadow.Table, iterations int) error {
	point := testobj.NewType("Point")
	point.SetAttr("describe", pyvalue.FromInt(1)) // stand-in for a function object
	xSlot := point.AddSlot("coords")

	origin := testobj.NewInstance(point)
	origin.SetSlot(xSlot, pyvalue.FromInt(0))

	module := testobj.NewModule()
	module.Dict().Set("PI", pyvalue.FromInt(3))
	builtins := testobj.NewModule()
	builtins.Dict().Set("len", pyvalue.FromInt(0))

	coordsType := testobj.NewType("Coords")
	coords := testobj.NewList(coordsType, pyvalue.FromInt(0), pyvalue.FromInt(0))

	for i := 0; i < iterations; i++ {
		if _, err := tbl.LoadAttr(1, origin, "coords"); err != nil {
			return fmt.Errorf("LOAD_ATTR coords: %w", err)
		}
		if _, err := tbl.LoadMethod(2, origin, "describe"); err != nil {
			return fmt.Errorf("LOAD_METHOD describe: %w", err)
		}
		if _, err := tbl.LoadGlobal(3, module.Dict(), builtins.Dict(), "PI"); err != nil {
			return fmt.Errorf("LOAD_GLOBAL PI: %w", err)
		}
		if _, err := tbl.LoadSubscr(4, coords, pyvalue.FromInt(0)); err != nil {
			return fmt.Errorf("BINARY_SUBSCR coords[0]: %w", err)
		}
	}
	if fc, ok := tbl.GetFieldCache(1); ok {
		log.Printf("field cache at site 1: offset=%d kind=%s", fc.Offset, fc.Kind)
	}
	if cast, ok := tbl.GetCastType(4); ok {
		log.Printf("cast type at site 4: %s", cast)
	}
	return nil
}
