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

// Package shadow implements the shadow-code inline-cache subsystem: a
// per-function side table of specialization records that memoizes the
// attribute-load, attribute-store, method-lookup, global-name, and
// subscript resolution path most recently observed at each bytecode site.
//
// The package assumes single-threaded bytecode execution (one goroutine
// drives a given Table at a time): hit paths, misses, and opcode patching
// run without locks. Callers that multiplex a Table across goroutines must
// serialize access themselves.
package shadow
