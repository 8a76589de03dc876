package engine

import "iter"

// Range is the read-only view a formula's range/matrix operand sees through
// CellResolver (spec §3, RangeReference AST node). It never exposes the
// underlying graph: only the cached values inside its rectangle, already
// computed in topological order by the time a consumer observes them.
type Range interface {
	Address() RangeAddress
	Dimensions() (rows, cols uint32)
	// Values iterates every cell in the range in row-major order.
	Values() iter.Seq[Primitive]
	// Rows iterates the range one row at a time, each as a left-to-right slice.
	Rows() iter.Seq[[]Primitive]
}

// materializedRange is a Range snapshot taken once at Eval time: the
// teacher's range.go streamed live off the worksheet table on every access,
// but function arguments here are a fixed snapshot of already-evaluated
// values (spec §4.4 forbids a node from observing anything but values), so
// materializing once up front is both simpler and cheaper than re-resolving
// per access.
type materializedRange struct {
	addr RangeAddress
	rows [][]Primitive
}

func newMaterializedRange(addr RangeAddress, lookup func(CellAddress) Primitive) *materializedRange {
	rows := make([][]Primitive, 0, addr.Rows())
	for row := addr.StartRow; row <= addr.EndRow; row++ {
		cols := make([]Primitive, 0, addr.Cols())
		for col := addr.StartCol; col <= addr.EndCol; col++ {
			cols = append(cols, lookup(CellAddress{SheetID: addr.SheetID, Col: col, Row: row}))
		}
		rows = append(rows, cols)
	}
	return &materializedRange{addr: addr, rows: rows}
}

func (r *materializedRange) Address() RangeAddress { return r.addr }

func (r *materializedRange) Dimensions() (uint32, uint32) {
	return r.addr.Rows(), r.addr.Cols()
}

func (r *materializedRange) Values() iter.Seq[Primitive] {
	return func(yield func(Primitive) bool) {
		for _, row := range r.rows {
			for _, v := range row {
				if !yield(v) {
					return
				}
			}
		}
	}
}

func (r *materializedRange) Rows() iter.Seq[[]Primitive] {
	return func(yield func([]Primitive) bool) {
		for _, row := range r.rows {
			if !yield(row) {
				return
			}
		}
	}
}
