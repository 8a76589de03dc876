package engine

// Structural transforms (C8): addRows/removeRows/addColumns/removeColumns
// and moveCells. Each runs eagerly against the live graph (spec §4.3's
// "eager" transform path, as opposed to the lazily-applied ones queued by
// LazyTransformService in lazy_transform.go): shift the address mapping,
// shift every range/matrix vertex's rectangle, shift named ranges, and
// mark every structurally-sensitive consumer dirty so ROW()/COLUMN()-style
// formulas recompute even though their operand addresses didn't move.

// addRows inserts count empty rows before row `at` on sheet.
func (g *DependencyGraph) addRows(sheet, at, count uint32) error {
	if count == 0 {
		return nil
	}
	if g.matrices.SplitByRowInsertion(sheet, at) {
		return ErrMatrixSplit
	}
	g.shiftRows(sheet, at, int64(count))
	g.lazyTransforms.Enqueue(transformAddRows, sheet, at, count)
	g.markStructureSensitiveDirty(sheet)
	return nil
}

// removeRows deletes rows [at, at+count-1] on sheet. Matrices fully inside
// the band are deleted outright; a matrix only partially inside it is
// rejected (matrix non-split invariant).
func (g *DependencyGraph) removeRows(sheet, at, count uint32) error {
	if count == 0 {
		return nil
	}
	end := at + count - 1
	if g.matrices.SplitByRowRemoval(sheet, at, end) {
		return ErrMatrixSplit
	}
	for _, span := range g.matrices.MatricesFullyInRowBand(sheet, at, end) {
		g.deleteMatrixVertex(span)
	}
	for _, addr := range g.addresses.InRowBand(sheet, at, end) {
		_ = g.setCellEmpty(addr)
		g.addresses.Remove(addr)
	}
	g.shiftRows(sheet, end+1, -int64(count))
	g.lazyTransforms.Enqueue(transformRemoveRows, sheet, at, count)
	g.markStructureSensitiveDirty(sheet)
	return nil
}

// addColumns mirrors addRows on the column axis.
func (g *DependencyGraph) addColumns(sheet, at, count uint32) error {
	if count == 0 {
		return nil
	}
	if g.matrices.SplitByColumnInsertion(sheet, at) {
		return ErrMatrixSplit
	}
	g.shiftColumns(sheet, at, int64(count))
	g.lazyTransforms.Enqueue(transformAddColumns, sheet, at, count)
	g.markStructureSensitiveDirty(sheet)
	return nil
}

// removeColumns mirrors removeRows on the column axis.
func (g *DependencyGraph) removeColumns(sheet, at, count uint32) error {
	if count == 0 {
		return nil
	}
	end := at + count - 1
	if g.matrices.SplitByColumnRemoval(sheet, at, end) {
		return ErrMatrixSplit
	}
	for _, span := range g.matrices.MatricesFullyInColumnBand(sheet, at, end) {
		g.deleteMatrixVertex(span)
	}
	for _, addr := range g.addresses.InColumnBand(sheet, at, end) {
		_ = g.setCellEmpty(addr)
		g.addresses.Remove(addr)
	}
	g.shiftColumns(sheet, end+1, -int64(count))
	g.lazyTransforms.Enqueue(transformRemoveColumns, sheet, at, count)
	g.markStructureSensitiveDirty(sheet)
	return nil
}

// moveCells relocates every cell in src to a rectangle of the same shape
// anchored at dst, on the same sheet. Source cells left outside the
// destination rectangle become empty.
func (g *DependencyGraph) moveCells(sheet uint32, src RangeAddress, dst CellAddress) error {
	rowDelta := int64(dst.Row) - int64(src.StartRow)
	colDelta := int64(dst.Col) - int64(src.StartCol)

	type move struct {
		from, to CellAddress
		id       VertexID
	}
	var moves []move
	for row := src.StartRow; row <= src.EndRow; row++ {
		for col := src.StartCol; col <= src.EndCol; col++ {
			from := CellAddress{SheetID: sheet, Row: row, Col: col}
			id, ok := g.addresses.Get(from)
			if !ok {
				continue
			}
			to := CellAddress{SheetID: sheet, Row: uint32(int64(row) + rowDelta), Col: uint32(int64(col) + colDelta)}
			moves = append(moves, move{from: from, to: to, id: id})
		}
	}
	for _, mv := range moves {
		g.addresses.Remove(mv.from)
	}
	for _, mv := range moves {
		g.addresses.Set(mv.to, mv.id)
		if v := g.vertices[mv.id]; v != nil {
			v.Address = mv.to
		}
		g.markDirty(mv.id)
		g.markConsumersDirty(mv.id)
	}
	return nil
}

// deleteMatrixVertex removes a matrix's vertex, edges, and every address it
// occupied.
func (g *DependencyGraph) deleteMatrixVertex(span RangeAddress) {
	id, ok := g.matrices.At(CellAddress{SheetID: span.SheetID, Col: span.StartCol, Row: span.StartRow})
	if !ok {
		return
	}
	g.clearEdgesFrom(id)
	g.unmarkVolatile(id)
	g.matrices.Remove(span)
	for row := span.StartRow; row <= span.EndRow; row++ {
		for col := span.StartCol; col <= span.EndCol; col++ {
			g.addresses.Remove(CellAddress{SheetID: span.SheetID, Col: col, Row: row})
		}
	}
	delete(g.vertices, id)
}

func (g *DependencyGraph) shiftRows(sheet, at uint32, delta int64) {
	g.addresses.ShiftRows(sheet, at, delta)
	g.named.ShiftRows(sheet, at, delta)
	for _, id := range g.cellVerticesOnOrAfterRow(sheet, at) {
		g.vertices[id].Address.Row = uint32(int64(g.vertices[id].Address.Row) + delta)
	}
	for _, id := range g.rangeAndMatrixVerticesOnOrAfterRow(sheet, at) {
		v := g.vertices[id]
		old := v.Range
		v.Range.StartRow = uint32(int64(v.Range.StartRow) + delta)
		v.Range.EndRow = uint32(int64(v.Range.EndRow) + delta)
		if v.Kind == VertexKindMatrix {
			g.matrices.RemoveAndReAdd(old, v.Range, id)
			v.Address.Row = v.Range.StartRow
		} else {
			g.ranges.RemoveAndReAdd(old, v.Range, id)
		}
	}
}

func (g *DependencyGraph) shiftColumns(sheet, at uint32, delta int64) {
	g.addresses.ShiftColumns(sheet, at, delta)
	g.named.ShiftColumns(sheet, at, delta)
	for _, id := range g.cellVerticesOnOrAfterColumn(sheet, at) {
		g.vertices[id].Address.Col = uint32(int64(g.vertices[id].Address.Col) + delta)
	}
	for _, id := range g.rangeAndMatrixVerticesOnOrAfterColumn(sheet, at) {
		v := g.vertices[id]
		old := v.Range
		v.Range.StartCol = uint32(int64(v.Range.StartCol) + delta)
		v.Range.EndCol = uint32(int64(v.Range.EndCol) + delta)
		if v.Kind == VertexKindMatrix {
			g.matrices.RemoveAndReAdd(old, v.Range, id)
			v.Address.Col = v.Range.StartCol
		} else {
			g.ranges.RemoveAndReAdd(old, v.Range, id)
		}
	}
}

// cellVerticesOnOrAfterRow returns every Empty/Value/Formula vertex whose
// Address sits on or after row `at`, so shiftRows can keep Vertex.Address in
// step with the AddressMapping entry it already relocated. Range/Matrix
// vertices are handled separately, via their Range rectangle.
func (g *DependencyGraph) cellVerticesOnOrAfterRow(sheet, at uint32) []VertexID {
	var out []VertexID
	for id, v := range g.vertices {
		if (v.Kind == VertexKindEmpty || v.Kind == VertexKindValue || v.Kind == VertexKindFormula) && v.Address.SheetID == sheet && v.Address.Row >= at {
			out = append(out, id)
		}
	}
	return out
}

// cellVerticesOnOrAfterColumn mirrors cellVerticesOnOrAfterRow on the column axis.
func (g *DependencyGraph) cellVerticesOnOrAfterColumn(sheet, at uint32) []VertexID {
	var out []VertexID
	for id, v := range g.vertices {
		if (v.Kind == VertexKindEmpty || v.Kind == VertexKindValue || v.Kind == VertexKindFormula) && v.Address.SheetID == sheet && v.Address.Col >= at {
			out = append(out, id)
		}
	}
	return out
}

func (g *DependencyGraph) rangeAndMatrixVerticesOnOrAfterRow(sheet, at uint32) []VertexID {
	var out []VertexID
	for id, v := range g.vertices {
		if (v.Kind == VertexKindRange || v.Kind == VertexKindMatrix) && v.Range.SheetID == sheet && v.Range.StartRow >= at {
			out = append(out, id)
		}
	}
	return out
}

func (g *DependencyGraph) rangeAndMatrixVerticesOnOrAfterColumn(sheet, at uint32) []VertexID {
	var out []VertexID
	for id, v := range g.vertices {
		if (v.Kind == VertexKindRange || v.Kind == VertexKindMatrix) && v.Range.SheetID == sheet && v.Range.StartCol >= at {
			out = append(out, id)
		}
	}
	return out
}

// markStructureSensitiveDirty marks every formula vertex on sheet whose
// parse result used a structure-sensitive function (ROW, COLUMN, OFFSET,
// INDEX, ...) dirty, since their recomputed result can change even when
// none of their operand addresses moved (spec §4.1's StructureSensitive
// flag feeding directly into structural-transform handling).
func (g *DependencyGraph) markStructureSensitiveDirty(sheet uint32) {
	for id, v := range g.vertices {
		if v.Kind != VertexKindFormula && v.Kind != VertexKindMatrix {
			continue
		}
		if v.Address.SheetID != sheet {
			continue
		}
		if v.Formula != nil && v.Formula.StructureSensitive {
			g.markDirty(id)
		}
	}
}
