package engine

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine is the top-level facade (spec §6): it owns one DependencyGraph and
// Evaluator pair and exposes the public surface a host application drives —
// reading/writing cells, structural edits, and the handful of bookkeeping
// operations (forceApplyPostponedTransformations, disableNumericMatrices)
// layered on top. Every mutating call recalculates before returning, so a
// caller never observes a workbook mid-recompute.
type Engine struct {
	ID     uuid.UUID
	config Configuration
	graph  *DependencyGraph
	eval   *Evaluator
	log    *zap.Logger
}

// NewEngine constructs an empty workbook. A nil logger is replaced with a
// no-op one so the rest of the engine never needs a nil check.
func NewEngine(config Configuration, log *zap.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	graph := NewDependencyGraph(config, NewDefaultFunctionLibrary())
	return &Engine{
		ID:     uuid.New(),
		config: config,
		graph:  graph,
		eval:   NewEvaluator(graph),
		log:    orNop(log),
	}, nil
}

// NewEngineFromSheets seeds a new engine with one sheet per map entry, each
// populated from a row-major grid of cell-content strings (spec §6's
// "construction from a map of sheet name to 2D string array").
func NewEngineFromSheets(sheets map[string][][]string, config Configuration) (*Engine, error) {
	e, err := NewEngine(config, nil)
	if err != nil {
		return nil, err
	}
	for name, grid := range sheets {
		sheetID, err := e.AddSheet(name)
		if err != nil {
			return nil, err
		}
		if err := e.loadGrid(sheetID, grid); err != nil {
			return nil, err
		}
	}
	if err := e.recalculate(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEngineFromArray seeds a new engine with a single default sheet (spec
// §6's "construction from a 2D string array").
func NewEngineFromArray(grid [][]string, config Configuration) (*Engine, error) {
	return NewEngineFromSheets(map[string][][]string{"Sheet1": grid}, config)
}

func (e *Engine) loadGrid(sheet uint32, grid [][]string) error {
	for row, cols := range grid {
		for col, content := range cols {
			if err := e.setContentNoRecalc(CellAddress{SheetID: sheet, Row: uint32(row), Col: uint32(col)}, content); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddSheet registers a new, empty sheet and returns its id.
func (e *Engine) AddSheet(name string) (uint32, error) {
	return e.graph.sheets.Add(name)
}

// RemoveSheet forgets a sheet and every cell it held.
func (e *Engine) RemoveSheet(sheet uint32) error {
	if err := e.graph.sheets.Remove(sheet); err != nil {
		return err
	}
	for addr := range e.graph.addresses.All(sheet) {
		_ = e.graph.setCellEmpty(addr)
	}
	e.graph.addresses.RemoveSheet(sheet)
	return e.recalculate()
}

// SheetID resolves a sheet name to its id.
func (e *Engine) SheetID(name string) (uint32, bool) {
	return e.graph.sheets.Fetch(name)
}

// SetCellContent applies spec §6's content grammar to a single cell:
// "" deletes it, a leading "=" is a formula, a numeric-looking string
// becomes a Number, TRUE/FALSE (case-insensitively) become a Boolean, and
// anything else becomes a String. Recalculates before returning.
func (e *Engine) SetCellContent(addr CellAddress, content string) error {
	if err := e.setContentNoRecalc(addr, content); err != nil {
		return err
	}
	return e.recalculate()
}

func (e *Engine) setContentNoRecalc(addr CellAddress, content string) error {
	switch {
	case content == "":
		return e.graph.setCellEmpty(addr)
	case strings.HasPrefix(content, "="):
		return e.graph.setFormulaToCell(addr, content)
	case strings.EqualFold(content, "TRUE"):
		return e.graph.setValueToCell(addr, true)
	case strings.EqualFold(content, "FALSE"):
		return e.graph.setValueToCell(addr, false)
	default:
		if num, err := strconv.ParseFloat(content, 64); err == nil {
			return e.graph.setValueToCell(addr, num)
		}
		return e.graph.setValueToCell(addr, content)
	}
}

// SetMatrixFormula installs an array/CSE formula ("{=...}" in spec §6's
// grammar) spanning span, anchored at its top-left corner.
func (e *Engine) SetMatrixFormula(span RangeAddress, text string) error {
	text = strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(text), "}"), "{")
	anchor := CellAddress{SheetID: span.SheetID, Col: span.StartCol, Row: span.StartRow}
	parsed := e.graph.parseWithCache(text, anchor)
	if _, err := e.graph.addNewMatrixVertex(span, parsed); err != nil {
		return err
	}
	return e.recalculate()
}

// GetCellValue returns the last-computed value at addr.
func (e *Engine) GetCellValue(addr CellAddress) CellValue {
	return e.graph.getCellValue(addr)
}

// GetValues returns every cell's value on sheet as a dense row-major grid
// sized to the sheet's current dimensions.
func (e *Engine) GetValues(sheet uint32) [][]CellValue {
	rows, cols := e.GetSheetDimensions(sheet)
	grid := make([][]CellValue, rows)
	for r := uint32(0); r < rows; r++ {
		row := make([]CellValue, cols)
		for c := uint32(0); c < cols; c++ {
			row[c] = e.graph.getCellValue(CellAddress{SheetID: sheet, Row: r, Col: c})
		}
		grid[r] = row
	}
	return grid
}

// GetSheetDimensions returns the smallest (rows, cols) bounding box that
// covers every occupied cell on sheet.
func (e *Engine) GetSheetDimensions(sheet uint32) (rows, cols uint32) {
	for addr := range e.graph.addresses.All(sheet) {
		if addr.Row+1 > rows {
			rows = addr.Row + 1
		}
		if addr.Col+1 > cols {
			cols = addr.Col + 1
		}
	}
	return rows, cols
}

// GetSheetsDimensions returns GetSheetDimensions for every sheet, keyed by
// name.
func (e *Engine) GetSheetsDimensions() map[string][2]uint32 {
	out := make(map[string][2]uint32)
	for _, name := range e.graph.sheets.Names() {
		id, _ := e.graph.sheets.Fetch(name)
		rows, cols := e.GetSheetDimensions(id)
		out[name] = [2]uint32{rows, cols}
	}
	return out
}

// AddRows inserts count empty rows before row `at` on sheet, recalculating
// before returning.
func (e *Engine) AddRows(sheet, at, count uint32) error {
	if err := e.graph.addRows(sheet, at, count); err != nil {
		return err
	}
	return e.recalculate()
}

// RemoveRows deletes count rows starting at `at` on sheet.
func (e *Engine) RemoveRows(sheet, at, count uint32) error {
	if err := e.graph.removeRows(sheet, at, count); err != nil {
		return err
	}
	return e.recalculate()
}

// AddColumns mirrors AddRows on the column axis.
func (e *Engine) AddColumns(sheet, at, count uint32) error {
	if err := e.graph.addColumns(sheet, at, count); err != nil {
		return err
	}
	return e.recalculate()
}

// RemoveColumns mirrors RemoveRows on the column axis.
func (e *Engine) RemoveColumns(sheet, at, count uint32) error {
	if err := e.graph.removeColumns(sheet, at, count); err != nil {
		return err
	}
	return e.recalculate()
}

// MoveCells relocates src to a same-shaped rectangle anchored at dst.
func (e *Engine) MoveCells(sheet uint32, src RangeAddress, dst CellAddress) error {
	if err := e.graph.moveCells(sheet, src, dst); err != nil {
		return err
	}
	return e.recalculate()
}

// ForceApplyPostponedTransformations resolves every lazily-queued
// structural rewrite immediately, instead of waiting for affected formulas
// to be evaluated one at a time (spec §6, §4.3's C9 contract).
func (e *Engine) ForceApplyPostponedTransformations() {
	e.graph.forceApplyPostponedTransformations()
}

// DisableNumericMatrices turns off automatic coalescing of adjacent
// numeric blocks into Matrix vertices (spec §6), leaving existing matrices
// untouched but preventing new ones from being inferred.
func (e *Engine) DisableNumericMatrices() {
	e.config.MatrixDetection = false
	e.graph.config.MatrixDetection = false
}

// ClearRecentlyChangedVertices empties the changed-since-last-clear set.
// Idempotent: calling it twice in a row is a no-op the second time.
func (e *Engine) ClearRecentlyChangedVertices() {
	e.graph.clearRecentlyChangedVertices()
}

// recalculate drains the dirty set through the evaluator. Volatile cells
// are reseeded into the dirty set on every call, matching spreadsheet
// engines' convention that NOW()/RAND()-style cells recompute on every
// recalculation pass, not just when something upstream of them changed.
func (e *Engine) recalculate() error {
	e.graph.markAllVolatileDirty()
	seeds := e.graph.dirtySeeds()
	if len(seeds) == 0 {
		return nil
	}
	if err := e.eval.partialRun(seeds); err != nil {
		return errors.Wrap(err, "recalculate")
	}
	return nil
}
