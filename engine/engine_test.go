package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEngine(t *testing.T, grid [][]string) (*Engine, uint32) {
	t.Helper()
	e, err := NewEngineFromArray(grid, DefaultConfiguration())
	require.NoError(t, err)
	sheet, ok := e.SheetID("Sheet1")
	require.True(t, ok)
	return e, sheet
}

func cellNum(t *testing.T, e *Engine, sheet, col, row uint32) float64 {
	t.Helper()
	v := e.GetCellValue(CellAddress{SheetID: sheet, Col: col, Row: row})
	require.Equal(t, CellValueTypeNumber, v.Type, "value was %+v", v)
	return v.Value.(float64)
}

// Scenario 1 (spec §8): [['42','=A1+2']] -> A1=42, B1=44.
func TestScenarioLiteralAndFormula(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"42", "=A1+2"}})
	assert.Equal(t, 42.0, cellNum(t, e, sheet, 0, 0))
	assert.Equal(t, 44.0, cellNum(t, e, sheet, 1, 0))
}

// Scenario 2: a small grid of sums, then an edit that should only ripple
// through the dependents of the changed cell.
func TestScenarioSumGridAndIncrementalEdit(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{
		{"1", "2", "=A1+B1"},
		{"3", "4", "=A2+B2"},
		{"", "", "=SUM(A1:B2)"},
	})
	assert.Equal(t, 3.0, cellNum(t, e, sheet, 2, 0))
	assert.Equal(t, 7.0, cellNum(t, e, sheet, 2, 1))
	assert.Equal(t, 10.0, cellNum(t, e, sheet, 2, 2))

	require.NoError(t, e.SetCellContent(CellAddress{SheetID: sheet, Col: 0, Row: 0}, "10"))
	assert.Equal(t, 12.0, cellNum(t, e, sheet, 2, 0))
	assert.Equal(t, 19.0, cellNum(t, e, sheet, 2, 2))
	assert.Equal(t, 7.0, cellNum(t, e, sheet, 2, 1), "row 2 does not depend on A1 and must be untouched")
}

// Scenario 3: removing the column a relative reference points at leaves the
// referencing formula resolving to #REF!.
func TestScenarioRemoveColumnDangles(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"=B1", "=C1", "5"}})
	assert.Equal(t, 5.0, cellNum(t, e, sheet, 0, 0))
	assert.Equal(t, 5.0, cellNum(t, e, sheet, 1, 0))

	require.NoError(t, e.RemoveColumns(sheet, 1, 1))
	v := e.GetCellValue(CellAddress{SheetID: sheet, Col: 0, Row: 0})
	require.Equal(t, CellValueTypeError, v.Type)
	assert.Equal(t, ErrorCodeRef, *v.Error)
}

// Scenario 4: inserting a row shifts a SUM's range along with it, and the
// newly-opened cell participates in the sum once populated.
func TestScenarioInsertRowShiftsRange(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"1"}, {"2"}, {"=SUM(A1:A2)"}})
	assert.Equal(t, 3.0, cellNum(t, e, sheet, 0, 2))

	require.NoError(t, e.AddRows(sheet, 1, 1))
	assert.Equal(t, 3.0, cellNum(t, e, sheet, 0, 3))

	require.NoError(t, e.SetCellContent(CellAddress{SheetID: sheet, Col: 0, Row: 1}, "10"))
	assert.Equal(t, 13.0, cellNum(t, e, sheet, 0, 3))
}

// Scenario 5: a structural operation that would split a matrix fails before
// mutating anything.
func TestScenarioMatrixSplitRejected(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{
		{"1", "2", "5", "6"},
		{"3", "4", "7", "8"},
	})
	span := RangeAddress{SheetID: sheet, StartCol: 4, StartRow: 0, EndCol: 5, EndRow: 1}
	require.NoError(t, e.SetMatrixFormula(span, "{=MMULT(A1:B2,C1:D2)}"))

	before := e.GetCellValue(CellAddress{SheetID: sheet, Col: 4, Row: 0})

	err := e.RemoveRows(sheet, 0, 1)
	require.ErrorIs(t, err, ErrMatrixSplit)

	after := e.GetCellValue(CellAddress{SheetID: sheet, Col: 4, Row: 0})
	assert.Equal(t, before, after, "a rejected structural op must leave the engine unchanged")
}

// Scenario 6: a direct A1<->A2 cycle resolves both cells to #CYCLE!.
func TestScenarioCycleDetection(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"=A2"}, {"=A1"}})
	a1 := e.GetCellValue(CellAddress{SheetID: sheet, Col: 0, Row: 0})
	a2 := e.GetCellValue(CellAddress{SheetID: sheet, Col: 0, Row: 1})
	require.Equal(t, CellValueTypeError, a1.Type)
	require.Equal(t, CellValueTypeError, a2.Type)
	assert.Equal(t, ErrorCodeCycle, *a1.Error)
	assert.Equal(t, ErrorCodeCycle, *a2.Error)
}

// Boundary case: a formula referencing its own cell is a 1-vertex cycle.
func TestBoundarySelfReferenceIsCycle(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"=A1+1"}})
	v := e.GetCellValue(CellAddress{SheetID: sheet, Col: 0, Row: 0})
	require.Equal(t, CellValueTypeError, v.Type)
	assert.Equal(t, ErrorCodeCycle, *v.Error)
}

// Boundary case: empty cells participate in arithmetic as zero.
func TestBoundaryEmptyCellArithmetic(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"", "=A1+5"}})
	assert.Equal(t, 5.0, cellNum(t, e, sheet, 1, 0))
}

// Boundary case: inserting at row 0 shifts every existing row down by one.
func TestBoundaryInsertRowAtZero(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"1"}, {"2"}})
	require.NoError(t, e.AddRows(sheet, 0, 1))
	assert.Equal(t, CellValueTypeEmpty, e.GetCellValue(CellAddress{SheetID: sheet, Col: 0, Row: 0}).Type)
	assert.Equal(t, 1.0, cellNum(t, e, sheet, 0, 1))
	assert.Equal(t, 2.0, cellNum(t, e, sheet, 0, 2))
}

// Boundary case: a 1x1 range moved onto itself is a no-op.
func TestBoundaryMoveRangeOntoItself(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{"9"}})
	require.NoError(t, e.MoveCells(sheet, RangeAddress{SheetID: sheet, StartCol: 0, StartRow: 0, EndCol: 0, EndRow: 0}, CellAddress{SheetID: sheet, Col: 0, Row: 0}))
	assert.Equal(t, 9.0, cellNum(t, e, sheet, 0, 0))
}

// Writing a formula into one cell of an array-formula matrix splits the
// matrix back to per-cell vertices instead of corrupting every member cell
// that shares its vertex (spec §9).
func TestMatrixSplitsOnFormulaWriteToMemberCell(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{
		{"1", "2", "5", "6"},
		{"3", "4", "7", "8"},
	})
	span := RangeAddress{SheetID: sheet, StartCol: 4, StartRow: 0, EndCol: 5, EndRow: 1}
	require.NoError(t, e.SetMatrixFormula(span, "{=MMULT(A1:B2,C1:D2)}"))

	other := e.GetCellValue(CellAddress{SheetID: sheet, Col: 5, Row: 1})
	require.Equal(t, CellValueTypeNumber, other.Type)

	require.NoError(t, e.SetCellContent(CellAddress{SheetID: sheet, Col: 4, Row: 0}, "=1+1"))
	assert.Equal(t, 2.0, cellNum(t, e, sheet, 4, 0))
	assert.Equal(t, other, e.GetCellValue(CellAddress{SheetID: sheet, Col: 5, Row: 1}),
		"the untouched matrix member must keep its own value, not follow the edited cell")
}

// Writing a string into one cell of a coalesced numeric matrix splits it,
// but writing a number updates that cell in place and leaves every other
// member untouched.
func TestNumericMatrixInPlaceUpdateAndSplit(t *testing.T) {
	config := DefaultConfiguration()
	config.MatrixDetection = true
	config.MatrixDetectionThreshold = 2
	e, err := NewEngineFromArray([][]string{
		{"1", "2"},
		{"3", "4"},
	}, config)
	require.NoError(t, err)
	sheet, ok := e.SheetID("Sheet1")
	require.True(t, ok)

	require.NoError(t, e.SetCellContent(CellAddress{SheetID: sheet, Col: 0, Row: 0}, "10"))
	assert.Equal(t, 10.0, cellNum(t, e, sheet, 0, 0))
	assert.Equal(t, 2.0, cellNum(t, e, sheet, 1, 0))
	assert.Equal(t, 3.0, cellNum(t, e, sheet, 0, 1))
	assert.Equal(t, 4.0, cellNum(t, e, sheet, 1, 1))

	require.NoError(t, e.SetCellContent(CellAddress{SheetID: sheet, Col: 1, Row: 1}, "hello"))
	v := e.GetCellValue(CellAddress{SheetID: sheet, Col: 1, Row: 1})
	require.Equal(t, CellValueTypeString, v.Type)
	assert.Equal(t, "hello", v.Value)
	assert.Equal(t, 10.0, cellNum(t, e, sheet, 0, 0), "splitting must preserve the other members' values")
	assert.Equal(t, 2.0, cellNum(t, e, sheet, 1, 0))
	assert.Equal(t, 3.0, cellNum(t, e, sheet, 0, 1))
}

// Disabling numeric matrix detection leaves a 2x2 numeric block as plain
// independent cells.
func TestNumericMatrixDetectionDisabledByDefault(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{
		{"1", "2"},
		{"3", "4"},
	})
	require.NoError(t, e.SetCellContent(CellAddress{SheetID: sheet, Col: 0, Row: 0}, "10"))
	assert.Equal(t, 10.0, cellNum(t, e, sheet, 0, 0))
	assert.Equal(t, 4.0, cellNum(t, e, sheet, 1, 1))
}

func TestSetCellContentGrammar(t *testing.T) {
	e, sheet := mustEngine(t, [][]string{{""}})
	addr := CellAddress{SheetID: sheet, Col: 0, Row: 0}

	require.NoError(t, e.SetCellContent(addr, "TRUE"))
	v := e.GetCellValue(addr)
	require.Equal(t, CellValueTypeBoolean, v.Type)
	assert.Equal(t, true, v.Value)

	require.NoError(t, e.SetCellContent(addr, "hello"))
	v = e.GetCellValue(addr)
	require.Equal(t, CellValueTypeString, v.Type)
	assert.Equal(t, "hello", v.Value)

	require.NoError(t, e.SetCellContent(addr, ""))
	assert.Equal(t, CellValueTypeEmpty, e.GetCellValue(addr).Type)
}

func TestForceApplyPostponedTransformationsIsSafeWithNoTransforms(t *testing.T) {
	e, _ := mustEngine(t, [][]string{{"1"}})
	assert.NotPanics(t, func() { e.ForceApplyPostponedTransformations() })
}

func TestClearRecentlyChangedVerticesIdempotentOnEmpty(t *testing.T) {
	e, _ := mustEngine(t, [][]string{{"1"}})
	e.ClearRecentlyChangedVertices()
	assert.NotPanics(t, func() { e.ClearRecentlyChangedVertices() })
}
