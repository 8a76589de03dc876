package engine

import "strings"

// NamedRangeTable stores workbook-scoped named ranges, layered over the
// shared range-vertex arena: a name is just an interned alias for a
// RangeAddress, so a named range and an ordinary A1-style range reference to
// the same rectangle share the same underlying range vertex (spec §3 — a
// single vertex arena). Adapted from the teacher's standalone
// NamedRangeTable, which instead stored ranges directly rather than
// delegating to RangeMapping.
type NamedRangeTable struct {
	byName map[string]RangeAddress
}

func NewNamedRangeTable() *NamedRangeTable {
	return &NamedRangeTable{byName: make(map[string]RangeAddress)}
}

func normalizeRangeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Define registers name as an alias for span. Returns ErrNamedRangeExists if
// already defined.
func (t *NamedRangeTable) Define(name string, span RangeAddress) error {
	key := normalizeRangeName(name)
	if _, exists := t.byName[key]; exists {
		return ErrNamedRangeExists
	}
	t.byName[key] = span
	return nil
}

// Redefine replaces an existing (or defines a new) named range unconditionally.
func (t *NamedRangeTable) Redefine(name string, span RangeAddress) {
	t.byName[normalizeRangeName(name)] = span
}

// Resolve looks up name, returning ErrUnknownNamedRange if undefined. anchor
// is accepted for symmetry with spec-level relative-named-range semantics,
// which this table does not implement: every named range here is absolute.
func (t *NamedRangeTable) Resolve(name string, anchor CellAddress) (RangeAddress, error) {
	_ = anchor
	span, ok := t.byName[normalizeRangeName(name)]
	if !ok {
		return RangeAddress{}, ErrUnknownNamedRange
	}
	return span, nil
}

// Remove forgets a named range.
func (t *NamedRangeTable) Remove(name string) error {
	key := normalizeRangeName(name)
	if _, ok := t.byName[key]; !ok {
		return ErrUnknownNamedRange
	}
	delete(t.byName, key)
	return nil
}

// Names lists every defined named range, unordered.
func (t *NamedRangeTable) Names() []string {
	out := make([]string, 0, len(t.byName))
	for name := range t.byName {
		out = append(out, name)
	}
	return out
}

// ShiftRows adjusts every named range whose span starts at or after rowStart
// on sheet, mirroring the structural transforms applied to AddressMapping.
func (t *NamedRangeTable) ShiftRows(sheet uint32, rowStart uint32, delta int64) {
	for name, span := range t.byName {
		if span.SheetID != sheet || span.StartRow < rowStart {
			continue
		}
		span.StartRow = uint32(int64(span.StartRow) + delta)
		span.EndRow = uint32(int64(span.EndRow) + delta)
		t.byName[name] = span
	}
}

// ShiftColumns mirrors ShiftRows on the column axis.
func (t *NamedRangeTable) ShiftColumns(sheet uint32, colStart uint32, delta int64) {
	for name, span := range t.byName {
		if span.SheetID != sheet || span.StartCol < colStart {
			continue
		}
		span.StartCol = uint32(int64(span.StartCol) + delta)
		span.EndCol = uint32(int64(span.EndCol) + delta)
		t.byName[name] = span
	}
}
