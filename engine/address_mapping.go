package engine

import (
	"iter"
	"sort"
)

// AddressMapping is the two-level indexed store from (sheet, col, row) to
// vertex identity (C1). It is a non-owning lookup: the DependencyGraph owns
// the vertices themselves (spec §3 "Ownership"). Adapted from the teacher's
// chunked per-worksheet `Chunk` storage in worksheet.go, generalized here
// into a sheet-agnostic sparse map of vertex ids rather than an embedded
// cell payload — simpler than the teacher's 256x256 struct-of-arrays
// chunking, trading some constant-factor throughput for a representation
// that is easy to keep correct under arbitrary row/column shifts.
type AddressMapping struct {
	sheets map[uint32]map[uint32]map[uint32]VertexID // sheet -> col -> row -> vertex id
}

func NewAddressMapping() *AddressMapping {
	return &AddressMapping{sheets: make(map[uint32]map[uint32]map[uint32]VertexID)}
}

func (m *AddressMapping) column(sheet, col uint32, create bool) map[uint32]VertexID {
	cols, ok := m.sheets[sheet]
	if !ok {
		if !create {
			return nil
		}
		cols = make(map[uint32]map[uint32]VertexID)
		m.sheets[sheet] = cols
	}
	rows, ok := cols[col]
	if !ok {
		if !create {
			return nil
		}
		rows = make(map[uint32]VertexID)
		cols[col] = rows
	}
	return rows
}

func (m *AddressMapping) Get(addr CellAddress) (VertexID, bool) {
	rows := m.column(addr.SheetID, addr.Col, false)
	if rows == nil {
		return InvalidVertexID, false
	}
	id, ok := rows[addr.Row]
	return id, ok
}

func (m *AddressMapping) Has(addr CellAddress) bool {
	_, ok := m.Get(addr)
	return ok
}

func (m *AddressMapping) Set(addr CellAddress, id VertexID) {
	m.column(addr.SheetID, addr.Col, true)[addr.Row] = id
}

func (m *AddressMapping) Remove(addr CellAddress) {
	rows := m.column(addr.SheetID, addr.Col, false)
	if rows == nil {
		return
	}
	delete(rows, addr.Row)
}

// RemoveSheet drops every entry belonging to a sheet, e.g. when the sheet
// itself is removed.
func (m *AddressMapping) RemoveSheet(sheet uint32) {
	delete(m.sheets, sheet)
}

// All iterates every (address, vertex id) pair on a sheet. Order is
// unspecified.
func (m *AddressMapping) All(sheet uint32) iter.Seq2[CellAddress, VertexID] {
	return func(yield func(CellAddress, VertexID) bool) {
		for col, rows := range m.sheets[sheet] {
			for row, id := range rows {
				if !yield(CellAddress{SheetID: sheet, Col: col, Row: row}, id) {
					return
				}
			}
		}
	}
}

// InRowBand returns every occupied address on sheet whose row lies in
// [rowStart, rowEnd] (inclusive), used by structural transforms to find
// cells that a row removal would orphan.
func (m *AddressMapping) InRowBand(sheet, rowStart, rowEnd uint32) []CellAddress {
	var out []CellAddress
	for addr := range m.All(sheet) {
		if addr.Row >= rowStart && addr.Row <= rowEnd {
			out = append(out, addr)
		}
	}
	return out
}

// InColumnBand mirrors InRowBand on the column axis.
func (m *AddressMapping) InColumnBand(sheet, colStart, colEnd uint32) []CellAddress {
	var out []CellAddress
	for addr := range m.All(sheet) {
		if addr.Col >= colStart && addr.Col <= colEnd {
			out = append(out, addr)
		}
	}
	return out
}

// ShiftRows moves every occupied address with row >= rowStart by delta rows.
// delta may be negative (row removal); callers must first relocate/remove
// any address that would land below rowStart. Applied highest-row-first
// when delta > 0 and lowest-row-first when delta < 0, so shifting in place
// never clobbers an address before it has been read.
func (m *AddressMapping) ShiftRows(sheet uint32, rowStart uint32, delta int64) {
	if delta == 0 {
		return
	}
	affected := m.InRowBand(sheet, rowStart, ^uint32(0))
	sort.Slice(affected, func(i, j int) bool { return affected[i].Row < affected[j].Row })
	if delta > 0 {
		for i := len(affected) - 1; i >= 0; i-- {
			m.moveRow(sheet, affected[i], delta)
		}
	} else {
		for _, addr := range affected {
			m.moveRow(sheet, addr, delta)
		}
	}
}

func (m *AddressMapping) moveRow(sheet uint32, addr CellAddress, delta int64) {
	id, ok := m.Get(addr)
	if !ok {
		return
	}
	m.Remove(addr)
	newRow := int64(addr.Row) + delta
	if newRow < 0 {
		panicInvariant("AddressMapping.ShiftRows", "row shift underflowed below zero")
	}
	m.Set(CellAddress{SheetID: sheet, Col: addr.Col, Row: uint32(newRow)}, id)
}

// ShiftColumns mirrors ShiftRows on the column axis.
func (m *AddressMapping) ShiftColumns(sheet uint32, colStart uint32, delta int64) {
	if delta == 0 {
		return
	}
	affected := m.InColumnBand(sheet, colStart, ^uint32(0))
	sort.Slice(affected, func(i, j int) bool { return affected[i].Col < affected[j].Col })
	if delta > 0 {
		for i := len(affected) - 1; i >= 0; i-- {
			m.moveColumn(sheet, affected[i], delta)
		}
	} else {
		for _, addr := range affected {
			m.moveColumn(sheet, addr, delta)
		}
	}
}

func (m *AddressMapping) moveColumn(sheet uint32, addr CellAddress, delta int64) {
	id, ok := m.Get(addr)
	if !ok {
		return
	}
	m.Remove(addr)
	newCol := int64(addr.Col) + delta
	if newCol < 0 {
		panicInvariant("AddressMapping.ShiftColumns", "column shift underflowed below zero")
	}
	m.Set(CellAddress{SheetID: sheet, Col: uint32(newCol), Row: addr.Row}, id)
}
