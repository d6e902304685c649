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

package testobj

import "github.com/sneller-labs/shadowvm/shadow"

// Module is a namespace backed by a combined Dict.
type Module struct {
	dict     *Dict
	weakrefs shadow.WeakRefChain
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{dict: NewDict()}
}

func (m *Module) WeakRefs() *shadow.WeakRefChain { return &m.weakrefs }
func (m *Module) Dict() shadow.MutableDict       { return m.dict }
