package engine

// Numeric matrix coalescing and splitting (spec §9): a Matrix vertex can
// carry either an array-formula AST or a dense numeric payload with no AST
// at all. The two obey the same rectangle invariants in MatrixMapping, but
// only the dense-payload kind supports writing straight into one of its
// member cells; every other write (string, formula, or into an
// array-formula matrix) must split the matrix back into independent
// per-cell vertices first. The matrix's former consumers then have their
// producer edges re-derived from their own Dependencies lists
// (rewireFormerConsumers) rather than patched by hand.

// matrixVertexAt returns the Matrix vertex covering addr, if any.
func (g *DependencyGraph) matrixVertexAt(addr CellAddress) (*Vertex, bool) {
	v, ok := g.vertexAt(addr)
	if !ok || v.Kind != VertexKindMatrix {
		return nil, false
	}
	return v, true
}

// updateNumericMatrixCell overwrites one cell of a dense numeric matrix in
// place, without touching any other member's value or identity.
func (g *DependencyGraph) updateNumericMatrixCell(v *Vertex, addr CellAddress, num float64) {
	rows, cols := int(v.Range.Rows()), int(v.Range.Cols())
	matrix, ok := v.Cached.Value.([][]Primitive)
	if !ok {
		matrix = make([][]Primitive, rows)
		var fill Primitive
		if v.HasCached {
			fill = v.Cached.Value
		}
		for r := range matrix {
			matrix[r] = make([]Primitive, cols)
			for c := range matrix[r] {
				matrix[r][c] = fill
			}
		}
	}
	matrix[int(addr.Row)-int(v.Range.StartRow)][int(addr.Col)-int(v.Range.StartCol)] = num
	v.Cached = CellValue{Type: CellValueTypeMatrix, Value: matrix}
	v.HasCached = true
}

// splitMatrixVertex converts a Matrix vertex back into independent per-cell
// vertices, one per address in its rectangle, each carrying the value the
// matrix currently reports for that cell. Used both for a non-numeric write
// into a coalesced numeric matrix and for any write at all into an
// array-formula matrix, which has no in-place update path.
func (g *DependencyGraph) splitMatrixVertex(v *Vertex) {
	span := v.Range
	consumers := g.snapshotConsumers(v.ID)

	values := make(map[CellAddress]Primitive, int(span.Rows())*int(span.Cols()))
	for row := span.StartRow; row <= span.EndRow; row++ {
		for col := span.StartCol; col <= span.EndCol; col++ {
			addr := CellAddress{SheetID: span.SheetID, Col: col, Row: row}
			values[addr] = g.matrixCellAt(v, addr)
		}
	}

	g.clearEdgesFrom(v.ID)
	g.unmarkVolatile(v.ID)
	g.matrices.Remove(span)
	for addr := range values {
		g.addresses.Remove(addr)
	}
	delete(g.vertices, v.ID)

	for addr, value := range values {
		id := g.allocateID()
		cell := &Vertex{ID: id, Address: addr}
		if value == nil {
			cell.Kind = VertexKindEmpty
		} else {
			cell.Kind = VertexKindValue
			cell.Literal = value
			cell.Cached = valueToCellValue(value)
			cell.HasCached = true
		}
		g.vertices[id] = cell
		g.addresses.Set(addr, id)
		g.rewireRangesContaining(addr)
		g.markDirty(id)
	}

	g.rewireFormerConsumers(consumers, []VertexID{v.ID})
}

// coalesceIntoMatrix replaces every numeric Value vertex inside span with
// one shared Matrix vertex carrying their values as a dense payload,
// rewiring whatever depended on the individual cells to the new shared id.
func (g *DependencyGraph) coalesceIntoMatrix(span RangeAddress) {
	rows, cols := int(span.Rows()), int(span.Cols())
	matrix := make([][]Primitive, rows)
	consumers := make(map[VertexID]*Vertex)
	var removed []VertexID
	for r := 0; r < rows; r++ {
		matrix[r] = make([]Primitive, cols)
		for c := 0; c < cols; c++ {
			addr := CellAddress{SheetID: span.SheetID, Row: span.StartRow + uint32(r), Col: span.StartCol + uint32(c)}
			id, ok := g.addresses.Get(addr)
			if !ok {
				continue
			}
			v := g.vertices[id]
			matrix[r][c] = v.Literal
			for consumerID, consumer := range g.snapshotConsumers(id) {
				consumers[consumerID] = consumer
			}
			g.clearEdgesFrom(id)
			g.unmarkVolatile(id)
			g.addresses.Remove(addr)
			delete(g.vertices, id)
			removed = append(removed, id)
		}
	}

	id := g.allocateID()
	anchor := CellAddress{SheetID: span.SheetID, Col: span.StartCol, Row: span.StartRow}
	mv := &Vertex{ID: id, Kind: VertexKindMatrix, Range: span, Address: anchor, Cached: CellValue{Type: CellValueTypeMatrix, Value: matrix}, HasCached: true}
	g.vertices[id] = mv
	_ = g.matrices.Add(span, id)
	for row := span.StartRow; row <= span.EndRow; row++ {
		for col := span.StartCol; col <= span.EndCol; col++ {
			addr := CellAddress{SheetID: span.SheetID, Col: col, Row: row}
			g.addresses.Set(addr, id)
			g.rewireRangesContaining(addr)
		}
	}

	g.rewireFormerConsumers(consumers, removed)
	g.markDirty(id)
}

// snapshotConsumers captures the current consumer set of id as (id, vertex)
// pairs before id is deleted, so its dependents can be re-derived afterward.
func (g *DependencyGraph) snapshotConsumers(id VertexID) map[VertexID]*Vertex {
	out := make(map[VertexID]*Vertex, len(g.consumers[id]))
	for consumerID := range g.consumers[id] {
		out[consumerID] = g.vertices[consumerID]
	}
	return out
}

// removeProducerEdge drops the single edge recording that consumer depends
// on producer, used to scrub a stale edge left pointing at an id that no
// longer exists in g.vertices.
func (g *DependencyGraph) removeProducerEdge(consumer, producer VertexID) {
	if _, ok := g.producers[consumer]; ok {
		delete(g.producers[consumer], producer)
		if len(g.producers[consumer]) == 0 {
			delete(g.producers, consumer)
		}
	}
	if _, ok := g.consumers[producer]; ok {
		delete(g.consumers[producer], consumer)
		if len(g.consumers[producer]) == 0 {
			delete(g.consumers, producer)
		}
	}
}

// rewireFormerConsumers re-derives producer edges for every vertex that
// depended on one of removedIDs. A Formula vertex rebuilds its edges wholesale
// from its own Dependencies list (processCellDependencies already clears
// stale producers before adding fresh ones); a Range vertex only ever gains
// edges, so its stale edges to removedIDs are scrubbed explicitly first.
func (g *DependencyGraph) rewireFormerConsumers(consumers map[VertexID]*Vertex, removedIDs []VertexID) {
	for id, v := range consumers {
		if v == nil {
			continue
		}
		switch v.Kind {
		case VertexKindFormula:
			if v.Formula != nil {
				g.processCellDependencies(id, v.Formula.Dependencies)
			}
		case VertexKindRange:
			for _, removedID := range removedIDs {
				g.removeProducerEdge(id, removedID)
			}
			g.wireRangeToMembers(v)
		}
		g.markDirty(id)
		g.markConsumersDirty(id)
	}
}

// isNumericCell reports whether addr holds a plain Value vertex carrying a
// float64 (a matrix candidate cell; formulas and strings never coalesce).
func (g *DependencyGraph) isNumericCell(addr CellAddress) bool {
	v, ok := g.vertexAt(addr)
	if !ok || v.Kind != VertexKindValue {
		return false
	}
	_, isNum := v.Literal.(float64)
	return isNum
}

// numericBlockAround grows the maximal axis-aligned rectangle of numeric
// cells containing addr: first the contiguous numeric run along addr's own
// row, then every adjacent row above and below whose cells are numeric
// across that same column span.
func (g *DependencyGraph) numericBlockAround(addr CellAddress) (RangeAddress, bool) {
	if !g.isNumericCell(addr) {
		return RangeAddress{}, false
	}
	startCol, endCol := addr.Col, addr.Col
	for startCol > 0 && g.isNumericCell(CellAddress{SheetID: addr.SheetID, Row: addr.Row, Col: startCol - 1}) {
		startCol--
	}
	for g.isNumericCell(CellAddress{SheetID: addr.SheetID, Row: addr.Row, Col: endCol + 1}) {
		endCol++
	}

	rowIsNumeric := func(row uint32) bool {
		for col := startCol; col <= endCol; col++ {
			if !g.isNumericCell(CellAddress{SheetID: addr.SheetID, Row: row, Col: col}) {
				return false
			}
		}
		return true
	}

	startRow, endRow := addr.Row, addr.Row
	for startRow > 0 && rowIsNumeric(startRow-1) {
		startRow--
	}
	for rowIsNumeric(endRow + 1) {
		endRow++
	}

	return RangeAddress{SheetID: addr.SheetID, StartRow: startRow, EndRow: endRow, StartCol: startCol, EndCol: endCol}, true
}

// maybeCoalesceNumericMatrix looks for a maximal rectangle of adjacent
// numeric cells containing addr and, once both of its dimensions meet
// MatrixDetectionThreshold, replaces its member cells with one Matrix
// vertex carrying a dense numeric payload (spec §9's numeric matrix
// coalescing; a no-op unless MatrixDetection is on, including when an
// operator has called Engine.DisableNumericMatrices).
func (g *DependencyGraph) maybeCoalesceNumericMatrix(addr CellAddress) {
	if !g.config.MatrixDetection {
		return
	}
	threshold := g.config.MatrixDetectionThreshold
	if threshold < 1 {
		threshold = 1
	}
	span, ok := g.numericBlockAround(addr)
	if !ok {
		return
	}
	if int(span.Rows()) < threshold || int(span.Cols()) < threshold {
		return
	}
	if _, overlap := g.matrices.Intersecting(span); overlap {
		return
	}
	g.coalesceIntoMatrix(span)
}
