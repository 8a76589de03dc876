package engine

import "golang.org/x/exp/maps"

// DependencyGraph is the engine's central structure (C6): a single vertex
// arena shared by cells, ranges, and matrices, plus the edge sets, dirty
// set, and volatile set layered over it. It owns every other mapping
// (address, range, matrix, sheet, named range) because every operation the
// engine exposes eventually needs to touch more than one of them in the
// same transaction — adding a row, for instance, shifts the address
// mapping, the matrix index, and the named-range table together. Adapted
// from the teacher's graph.go, generalized from its per-cell
// CellAddress-keyed DependencyNode map into a VertexID-keyed arena so range
// and matrix vertices can sit in the same structure instead of the
// teacher's parallel rangeObservers table.
type DependencyGraph struct {
	vertices map[VertexID]*Vertex
	nextID   VertexID

	addresses *AddressMapping
	ranges    *RangeMapping
	matrices  *MatrixMapping
	sheets    *SheetMapping
	named     *NamedRangeTable
	templates *templateCache
	functions FunctionLibrary
	config    Configuration

	producers map[VertexID]map[VertexID]struct{} // v -> vertices v depends on
	consumers map[VertexID]map[VertexID]struct{} // v -> vertices that depend on v

	dirty    map[VertexID]struct{}
	volatile map[VertexID]struct{}
	changed  map[VertexID]struct{} // recently changed since last clear (spec §4.3 "recently changed")

	lazyTransforms *LazyTransformService
}

func NewDependencyGraph(config Configuration, functions FunctionLibrary) *DependencyGraph {
	g := &DependencyGraph{
		vertices:  make(map[VertexID]*Vertex),
		nextID:    1,
		addresses: NewAddressMapping(),
		ranges:    NewRangeMapping(),
		matrices:  NewMatrixMapping(),
		sheets:    NewSheetMapping(),
		named:     NewNamedRangeTable(),
		templates: newTemplateCache(config.ParserCacheSize),
		functions: functions,
		config:    config,
		producers: make(map[VertexID]map[VertexID]struct{}),
		consumers: make(map[VertexID]map[VertexID]struct{}),
		dirty:     make(map[VertexID]struct{}),
		volatile:  make(map[VertexID]struct{}),
		changed:   make(map[VertexID]struct{}),
	}
	g.lazyTransforms = NewLazyTransformService(g)
	return g
}

func (g *DependencyGraph) allocateID() VertexID {
	id := g.nextID
	g.nextID++
	return id
}

// getOrCreateCellVertex returns the vertex at addr, creating an Empty one
// if none exists yet.
func (g *DependencyGraph) getOrCreateCellVertex(addr CellAddress) *Vertex {
	if id, ok := g.addresses.Get(addr); ok {
		return g.vertices[id]
	}
	id := g.allocateID()
	v := &Vertex{ID: id, Kind: VertexKindEmpty, Address: addr}
	g.vertices[id] = v
	g.addresses.Set(addr, id)
	return v
}

func (g *DependencyGraph) vertexAt(addr CellAddress) (*Vertex, bool) {
	id, ok := g.addresses.Get(addr)
	if !ok {
		return nil, false
	}
	return g.vertices[id], true
}

// getOrCreateRangeVertex interns a range vertex for span, sharing it across
// every formula that references the identical rectangle (spec §3).
func (g *DependencyGraph) getOrCreateRangeVertex(span RangeAddress) *Vertex {
	if id, ok := g.ranges.Get(span); ok {
		return g.vertices[id]
	}
	id := g.allocateID()
	v := &Vertex{ID: id, Kind: VertexKindRange, Range: span}
	g.vertices[id] = v
	g.ranges.Intern(span, id)
	return v
}

// addEdge records that consumer depends on producer.
func (g *DependencyGraph) addEdge(consumer, producer VertexID) {
	if g.producers[consumer] == nil {
		g.producers[consumer] = make(map[VertexID]struct{})
	}
	g.producers[consumer][producer] = struct{}{}
	if g.consumers[producer] == nil {
		g.consumers[producer] = make(map[VertexID]struct{})
	}
	g.consumers[producer][consumer] = struct{}{}
}

// clearEdgesFrom removes every producer edge belonging to consumer, used
// before re-wiring a cell's dependencies when its formula changes.
func (g *DependencyGraph) clearEdgesFrom(consumer VertexID) {
	for producer := range g.producers[consumer] {
		delete(g.consumers[producer], consumer)
		if len(g.consumers[producer]) == 0 {
			delete(g.consumers, producer)
			g.maybeEvictRangeVertex(producer)
		}
	}
	delete(g.producers, consumer)
}

// maybeEvictRangeVertex drops a range/matrix vertex that no longer has any
// consumers and was never given a sheet cell of its own (range vertices are
// synthetic; matrix vertices own real cell addresses and are never evicted
// this way).
func (g *DependencyGraph) maybeEvictRangeVertex(id VertexID) {
	v, ok := g.vertices[id]
	if !ok || v.Kind != VertexKindRange {
		return
	}
	for member := range g.producers[id] {
		delete(g.consumers[member], id)
		if len(g.consumers[member]) == 0 {
			delete(g.consumers, member)
		}
	}
	delete(g.producers, id)
	g.ranges.Remove(v.Range)
	delete(g.vertices, id)
}

func (g *DependencyGraph) markDirty(id VertexID) {
	g.dirty[id] = struct{}{}
	g.changed[id] = struct{}{}
}

func (g *DependencyGraph) markConsumersDirty(id VertexID) {
	for consumer := range g.consumers[id] {
		if _, already := g.dirty[consumer]; already {
			continue
		}
		g.markDirty(consumer)
		g.markConsumersDirty(consumer)
	}
}

// dirtySeeds returns a snapshot of the dirty set. Cell writes mark the
// written vertex and, through markConsumersDirty, every transitive consumer;
// structural operations mark only the structure-sensitive formulas, and the
// evaluator expands the closure from whatever seeds it finds here.
func (g *DependencyGraph) dirtySeeds() []VertexID {
	return maps.Keys(g.dirty)
}

func (g *DependencyGraph) clearDirty(id VertexID) {
	delete(g.dirty, id)
}

// clearRecentlyChangedVertices empties the changed set. Calling it on an
// already-empty set is a no-op, not an error (decided open question: the
// operation is idempotent).
func (g *DependencyGraph) clearRecentlyChangedVertices() {
	g.changed = make(map[VertexID]struct{})
}

func (g *DependencyGraph) recentlyChangedVertices() []VertexID {
	return maps.Keys(g.changed)
}

func (g *DependencyGraph) markVolatile(id VertexID) {
	g.volatile[id] = struct{}{}
}

func (g *DependencyGraph) unmarkVolatile(id VertexID) {
	delete(g.volatile, id)
}

func (g *DependencyGraph) isVolatile(id VertexID) bool {
	_, ok := g.volatile[id]
	return ok
}

// markAllVolatileDirty seeds the dirty set with every volatile vertex,
// called before a full recalculation pass (spec §4.3 volatile semantics).
func (g *DependencyGraph) markAllVolatileDirty() {
	for id := range g.volatile {
		g.markDirty(id)
	}
}

// resolveWorksheet adapts SheetMapping.Fetch to the parser's callback shape.
func (g *DependencyGraph) resolveWorksheet(name string) (uint32, bool) {
	return g.sheets.Fetch(name)
}

// processCellDependencies wires producer/consumer edges for a freshly
// (re)parsed formula vertex: clears whatever the vertex depended on before,
// then adds one edge per dependency descriptor, creating range vertices and
// resolving named ranges along the way (spec §4.1's dependency extraction
// feeding directly into §4.3's graph).
func (g *DependencyGraph) processCellDependencies(id VertexID, deps []Dependency) {
	g.clearEdgesFrom(id)
	for _, dep := range deps {
		switch dep.Kind {
		case DependencyCell:
			producer := g.getOrCreateCellVertex(dep.Cell)
			g.addEdge(id, producer.ID)
		case DependencyRange:
			producer := g.getOrCreateRangeVertex(dep.Range)
			g.addEdge(id, producer.ID)
			g.wireRangeToMembers(producer)
		case DependencyNamedRange:
			span, err := g.named.Resolve(dep.Name, g.vertices[id].Address)
			if err != nil {
				continue
			}
			producer := g.getOrCreateRangeVertex(span)
			g.addEdge(id, producer.ID)
			g.wireRangeToMembers(producer)
		}
	}
}

// wireRangeToMembers makes a range vertex depend on every already-present
// cell vertex inside its rectangle, so a change to a member cell propagates
// through the range vertex to the range's own consumers. Empty cells inside
// the rectangle that have no vertex yet need no edge: they contribute
// nothing until a value is set there, at which point setValueToCell creates
// the vertex and must re-wire every range that covers it.
func (g *DependencyGraph) wireRangeToMembers(rangeVertex *Vertex) {
	for addr, id := range g.addresses.All(rangeVertex.Range.SheetID) {
		if rangeVertex.Range.Contains(addr) {
			g.addEdge(rangeVertex.ID, id)
		}
	}
}

// rewireRangesContaining re-wires every existing range vertex on sheet whose
// rectangle contains addr, called after a cell vertex is created or
// recreated at addr so ranges that were interned before the cell existed
// pick up the new member.
func (g *DependencyGraph) rewireRangesContaining(addr CellAddress) {
	cellID, ok := g.addresses.Get(addr)
	if !ok {
		return
	}
	for _, id := range g.ranges.All() {
		v := g.vertices[id]
		if v != nil && v.Kind == VertexKindRange && v.Range.Contains(addr) {
			g.addEdge(id, cellID)
		}
	}
}

// setValueToCell installs a literal value at addr, marking its consumers
// for recalculation. A number written into an existing dense numeric matrix
// updates that one cell in place; any other write into a matrix (a string,
// or into an array-formula matrix) splits it back to per-cell vertices
// first (spec §9).
func (g *DependencyGraph) setValueToCell(addr CellAddress, value Primitive) error {
	if mv, ok := g.matrixVertexAt(addr); ok {
		if num, isNum := value.(float64); isNum && mv.Formula == nil {
			g.updateNumericMatrixCell(mv, addr, num)
			g.markDirty(mv.ID)
			g.markConsumersDirty(mv.ID)
			return nil
		}
		g.splitMatrixVertex(mv)
	}
	v := g.getOrCreateCellVertex(addr)
	g.clearEdgesFrom(v.ID)
	v.Kind = VertexKindValue
	v.Literal = value
	v.Cached = valueToCellValue(value)
	v.HasCached = true
	v.Formula = nil
	g.unmarkVolatile(v.ID)
	g.rewireRangesContaining(addr)
	g.markDirty(v.ID)
	g.markConsumersDirty(v.ID)
	if _, isNum := value.(float64); isNum {
		g.maybeCoalesceNumericMatrix(addr)
	}
	return nil
}

// setFormulaToCell parses text (via the template cache) and installs it as
// addr's formula, rewiring dependency edges from the parse result. A
// formula can never live inside a matrix's shared vertex, so an existing
// matrix at addr splits back to per-cell vertices first.
func (g *DependencyGraph) setFormulaToCell(addr CellAddress, text string) error {
	if mv, ok := g.matrixVertexAt(addr); ok {
		g.splitMatrixVertex(mv)
	}
	parsed := g.parseWithCache(text, addr)
	v := g.getOrCreateCellVertex(addr)
	v.Kind = VertexKindFormula
	v.Formula = parsed
	v.Literal = nil
	v.HasCached = false
	g.rewireRangesContaining(addr)
	g.processCellDependencies(v.ID, parsed.Dependencies)
	if parsed.Volatile {
		g.markVolatile(v.ID)
	} else {
		g.unmarkVolatile(v.ID)
	}
	g.markDirty(v.ID)
	g.markConsumersDirty(v.ID)
	return nil
}

// parseWithCache runs ParseFormula and then consults the template cache (C5)
// with the token-driven hash: a hit reuses the cached AST and only rebuilds
// the dependency list against the new anchor. Every call still tokenizes and
// parses text in full to compute that hash.
func (g *DependencyGraph) parseWithCache(text string, addr CellAddress) *ParseResult {
	probe := ParseFormula(text, addr, g.resolveWorksheet)
	if cached, ok := g.templates.get(probe.Hash); ok {
		return &ParseResult{
			AST:                cached.AST,
			Dependencies:        extractDependencies(cached.AST, addr),
			Hash:               cached.Hash,
			RegexHash:          cached.RegexHash,
			Volatile:           cached.Volatile,
			StructureSensitive: cached.StructureSensitive,
		}
	}
	g.templates.put(probe.Hash, probe)
	return probe
}

// setCellEmpty clears a cell back to empty, dropping its formula/value and
// dependency edges. The operation is idempotent: clearing an already-empty
// cell is a no-op (decided open question, matching clearRecentlyChangedVertices).
// Clearing one cell of a matrix splits it back to per-cell vertices first,
// same as writing a string or formula there.
func (g *DependencyGraph) setCellEmpty(addr CellAddress) error {
	if mv, ok := g.matrixVertexAt(addr); ok {
		g.splitMatrixVertex(mv)
		return g.setCellEmpty(addr)
	}
	v, ok := g.vertexAt(addr)
	if !ok || v.Kind == VertexKindEmpty {
		return nil
	}
	g.clearEdgesFrom(v.ID)
	g.unmarkVolatile(v.ID)
	v.Kind = VertexKindEmpty
	v.Literal = nil
	v.Formula = nil
	v.Cached = CellValue{}
	v.HasCached = false
	g.markDirty(v.ID)
	g.markConsumersDirty(v.ID)
	return nil
}

// addNewMatrixVertex registers span as a matrix, rejecting overlap with an
// existing matrix (spec §3's matrix non-split/non-overlap invariant). Every
// cell inside span is (re)created as a Matrix-kind vertex sharing the same
// id so a formula referencing one member cell resolves to the whole
// matrix's computed value at that offset.
func (g *DependencyGraph) addNewMatrixVertex(span RangeAddress, literal *ParseResult) (VertexID, error) {
	if err := g.matrices.Add(span, InvalidVertexID); err != nil {
		return InvalidVertexID, err
	}
	id := g.allocateID()
	v := &Vertex{ID: id, Kind: VertexKindMatrix, Range: span, Formula: literal, Address: CellAddress{SheetID: span.SheetID, Col: span.StartCol, Row: span.StartRow}}
	g.vertices[id] = v
	g.matrices.Remove(span)
	_ = g.matrices.Add(span, id)
	for row := span.StartRow; row <= span.EndRow; row++ {
		for col := span.StartCol; col <= span.EndCol; col++ {
			g.addresses.Set(CellAddress{SheetID: span.SheetID, Col: col, Row: row}, id)
		}
	}
	if literal != nil {
		g.processCellDependencies(id, literal.Dependencies)
		if literal.Volatile {
			g.markVolatile(id)
		}
	}
	g.markDirty(id)
	g.markConsumersDirty(id)
	return id, nil
}

// getCellValue returns the last-computed value at addr without triggering
// recalculation: spec §6's read surface observes whatever the most recent
// evaluator pass left behind.
func (g *DependencyGraph) getCellValue(addr CellAddress) CellValue {
	v, ok := g.vertexAt(addr)
	if !ok {
		return CellValue{Type: CellValueTypeEmpty}
	}
	switch v.Kind {
	case VertexKindValue, VertexKindFormula:
		if v.HasCached {
			return v.Cached
		}
		return CellValue{Type: CellValueTypeEmpty}
	case VertexKindMatrix:
		return valueToCellValue(g.matrixCellAt(v, addr))
	default:
		return CellValue{Type: CellValueTypeEmpty}
	}
}

// matrixCellAt projects a matrix vertex's cached array result onto the
// single cell at addr, per its offset inside the matrix's rectangle. A
// matrix formula whose result is not (yet, or ever) a two-dimensional
// array broadcasts its scalar to every member cell instead.
func (g *DependencyGraph) matrixCellAt(v *Vertex, addr CellAddress) Primitive {
	if !v.HasCached {
		return nil
	}
	matrix, ok := v.Cached.Value.([][]Primitive)
	if !ok {
		return v.Cached.Value
	}
	rowOffset := int(addr.Row) - int(v.Range.StartRow)
	colOffset := int(addr.Col) - int(v.Range.StartCol)
	if rowOffset < 0 || colOffset < 0 || rowOffset >= len(matrix) {
		return NewSpreadsheetError(ErrorCodeRef, "matrix cell out of range")
	}
	if colOffset >= len(matrix[rowOffset]) {
		return NewSpreadsheetError(ErrorCodeRef, "matrix cell out of range")
	}
	return matrix[rowOffset][colOffset]
}

// rawValueAt returns the raw Primitive behind addr for CellResolver
// consumption (literal, cached formula result, or nil for empty).
func (g *DependencyGraph) rawValueAt(addr CellAddress) Primitive {
	v, ok := g.vertexAt(addr)
	if !ok {
		return nil
	}
	switch v.Kind {
	case VertexKindValue:
		return v.Literal
	case VertexKindFormula:
		if v.HasCached {
			return v.Cached.Value
		}
		return nil
	case VertexKindMatrix:
		return g.matrixCellAt(v, addr)
	default:
		return nil
	}
}

func (g *DependencyGraph) materializeRange(span RangeAddress) Range {
	return newMaterializedRange(span, g.rawValueAt)
}

// forceApplyPostponedTransformations resolves every outstanding lazy
// transform immediately (spec §6).
func (g *DependencyGraph) forceApplyPostponedTransformations() {
	g.lazyTransforms.ForceApplyPostponedTransformations()
}
