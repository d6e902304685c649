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

// Package testobj is a minimal stand-in object model implementing the
// interfaces shadow.Type/Instance/Module/Dict/SplitDict expect: just
// enough of a class/instance/module system to drive the shadow package's
// fast paths, miss paths, and invalidation protocol from tests without
// pulling in a real bytecode compiler.
package testobj
