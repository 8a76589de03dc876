package engine

import "fmt"

// RangeMapping interns range vertices by their rectangle (C2): two formulas
// that reference the identical range share one vertex, so the dependency
// graph only ever has one producer edge per distinct range rather than one
// per reference to it. Adapted from the teacher's RangeTable, generalized
// from its sheet-only keying to the full (sheet, corners) key this design
// needs since range vertices now live in the same arena as cells.
type RangeMapping struct {
	byRect map[string]VertexID
}

func NewRangeMapping() *RangeMapping {
	return &RangeMapping{byRect: make(map[string]VertexID)}
}

func rangeKey(addr RangeAddress) string {
	return fmt.Sprintf("%d:%d:%d:%d:%d", addr.SheetID, addr.StartCol, addr.StartRow, addr.EndCol, addr.EndRow)
}

// Get returns the existing vertex for addr, if any has been interned.
func (m *RangeMapping) Get(addr RangeAddress) (VertexID, bool) {
	id, ok := m.byRect[rangeKey(addr)]
	return id, ok
}

// Intern records id as the vertex for addr. Callers allocate the vertex id
// first (via the graph's arena) and then register it here.
func (m *RangeMapping) Intern(addr RangeAddress, id VertexID) {
	m.byRect[rangeKey(addr)] = id
}

// Remove drops the interning entry, e.g. once a range vertex is garbage
// collected for lack of remaining consumers.
func (m *RangeMapping) Remove(addr RangeAddress) {
	delete(m.byRect, rangeKey(addr))
}

// All iterates every interned rectangle, unordered.
func (m *RangeMapping) All() map[string]VertexID {
	return m.byRect
}

// RemoveAndReAdd re-keys an interned range from oldAddr to newAddr for the
// same vertex, used by structural transforms after they shift a range
// vertex's rectangle.
func (m *RangeMapping) RemoveAndReAdd(oldAddr, newAddr RangeAddress, id VertexID) {
	m.Remove(oldAddr)
	m.Intern(newAddr, id)
}
