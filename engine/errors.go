package engine

import "errors"

// Engine-level faults: misuse of the public surface or invariant violations.
// These are distinct from the cell-value error taxonomy in cell.go, which is
// surfaced as ordinary spreadsheet data, not as a Go error.
var (
	ErrUnknownSheet      = errors.New("engine: unknown sheet")
	ErrSheetExists       = errors.New("engine: sheet already exists")
	ErrInvalidAddress    = errors.New("engine: invalid cell address")
	ErrInvalidRange      = errors.New("engine: invalid range")
	ErrMatrixOverlap     = errors.New("engine: operation would overlap an existing matrix")
	ErrMatrixSplit       = errors.New("engine: structural operation would split a matrix")
	ErrUnknownFunction   = errors.New("engine: unknown function")
	ErrUnknownNamedRange = errors.New("engine: unknown named range")
	ErrNamedRangeExists  = errors.New("engine: named range already defined")
	ErrInvalidConfig     = errors.New("engine: invalid configuration")
)

// InvariantViolation marks a programmer error: a broken internal invariant
// that the engine cannot recover from locally. panicInvariant raises it as a
// panic; no Engine method defers recoverInvariant, so the panic propagates
// out of the engine call to its caller.
type InvariantViolation struct {
	Component string
	Detail    string
}

func (v *InvariantViolation) Error() string {
	return "engine: invariant violation in " + v.Component + ": " + v.Detail
}

func panicInvariant(component, detail string) {
	panic(&InvariantViolation{Component: component, Detail: detail})
}

// recoverInvariant converts a panicking InvariantViolation into an error.
// Any other panic value is re-raised: it is not this layer's job to swallow
// unrelated programmer mistakes (nil maps, index out of range, ...).
func recoverInvariant(errOut *error) {
	if r := recover(); r != nil {
		if iv, ok := r.(*InvariantViolation); ok {
			*errOut = iv
			return
		}
		panic(r)
	}
}
