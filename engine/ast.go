package engine

import (
	"fmt"
	"math"
	"strings"
)

// NodePosition is the source-text span a node was parsed from, kept for
// diagnostics and for reconstructing formula text.
type NodePosition struct {
	Start int
	End   int
}

// CellResolver is the read-only interface the evaluator hands to an AST
// during Eval (spec §4.4: "a read-only cell-resolution interface (address →
// value)"). It is the only way a node may reach outside its own subtree, and
// it is the only re-entrant surface a function-library callback may use
// (spec §5).
type CellResolver interface {
	ResolveCell(addr CellAddress) (Primitive, error)
	ResolveRange(rng RangeAddress) (Range, error)
	ResolveNamedRange(name string, anchor CellAddress) (RangeAddress, error)
	CallFunction(name string, args []Primitive) (Primitive, error)
	CurrentAddress() CellAddress
}

// ASTNode is a node in a parsed formula tree (spec §3's AST node set:
// Number, String, Boolean, Error, CellReference, RangeReference, UnaryOp,
// BinaryOp, FunctionCall, EmptyArg).
type ASTNode interface {
	Eval(r CellResolver) (Primitive, error)
	GetPosition() NodePosition
	ToString() string
}

// StringNode is a string literal.
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(CellResolver) (Primitive, error) { return n.Value, nil }
func (n *StringNode) GetPosition() NodePosition            { return n.Position }
func (n *StringNode) ToString() string {
	return fmt.Sprintf("\"%s\"", strings.ReplaceAll(n.Value, "\"", "\"\""))
}

// NumberNode is a numeric literal.
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(CellResolver) (Primitive, error) { return n.Value, nil }
func (n *NumberNode) GetPosition() NodePosition            { return n.Position }
func (n *NumberNode) ToString() string {
	if n.Value == float64(int64(n.Value)) {
		return fmt.Sprintf("%d", int64(n.Value))
	}
	return fmt.Sprintf("%g", n.Value)
}

// BooleanNode is a boolean literal.
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) Eval(CellResolver) (Primitive, error) { return n.Value, nil }
func (n *BooleanNode) GetPosition() NodePosition            { return n.Position }
func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// ErrorNode is a literal error value baked into the tree — most commonly the
// sole content of a tree that failed to parse (spec §4.1: "lexical or
// grammatical failure yields an AST node of kind Error(parse); it is still
// cached").
type ErrorNode struct {
	Code     ErrorCode
	Message  string
	Position NodePosition
}

func (n *ErrorNode) Eval(CellResolver) (Primitive, error) {
	return NewSpreadsheetError(n.Code, n.Message), nil
}
func (n *ErrorNode) GetPosition() NodePosition { return n.Position }
func (n *ErrorNode) ToString() string          { return ErrorMapper[n.Code] }

// EmptyArgNode represents an omitted function argument, e.g. the second
// argument in SUM(A1,,B1).
type EmptyArgNode struct{ Position NodePosition }

func (n *EmptyArgNode) Eval(CellResolver) (Primitive, error) { return nil, nil }
func (n *EmptyArgNode) GetPosition() NodePosition            { return n.Position }
func (n *EmptyArgNode) ToString() string                     { return "" }

// CellRefNode is a cell reference. Each axis is independently relative or
// absolute (Excel's A1 / $A1 / A$1 / $A$1 forms): when AbsRow/AbsCol is
// false the corresponding Row/Col field is an offset from the anchor cell
// the template is bound to; when true it is an absolute coordinate.
// ParseFormula produces only relative references: the lexer does not accept
// '$', so nothing in the parser sets AbsRow or AbsCol.
// WorksheetID is 0 when the reference did not name a sheet explicitly
// (resolved against the anchor's sheet at eval time).
type CellRefNode struct {
	WorksheetID       uint32
	WorksheetExplicit bool
	Row               int64
	Col               int64
	AbsRow            bool
	AbsCol            bool
	Position          NodePosition
}

func (n *CellRefNode) absolute(anchor CellAddress) (CellAddress, bool) {
	sheet := anchor.SheetID
	if n.WorksheetExplicit {
		sheet = n.WorksheetID
	}
	row := n.Row
	if !n.AbsRow {
		row = int64(anchor.Row) + n.Row
	}
	col := n.Col
	if !n.AbsCol {
		col = int64(anchor.Col) + n.Col
	}
	if row < 0 || col < 0 {
		return CellAddress{}, false
	}
	return CellAddress{SheetID: sheet, Row: uint32(row), Col: uint32(col)}, true
}

func (n *CellRefNode) Eval(r CellResolver) (Primitive, error) {
	addr, ok := n.absolute(r.CurrentAddress())
	if !ok {
		return NewSpreadsheetError(ErrorCodeRef, "invalid cell reference"), nil
	}
	v, err := r.ResolveCell(addr)
	if err != nil {
		if se, ok := err.(*SpreadsheetError); ok {
			return se, nil
		}
		return NewSpreadsheetError(ErrorCodeRef, err.Error()), nil
	}
	return v, nil
}

func (n *CellRefNode) GetPosition() NodePosition { return n.Position }
func (n *CellRefNode) ToString() string {
	axis := func(v int64, abs bool) string {
		if abs {
			return fmt.Sprintf("$%d", v)
		}
		return fmt.Sprintf("%d", v)
	}
	if n.WorksheetExplicit {
		return fmt.Sprintf("WS_REF(%d,%s,%s)", n.WorksheetID, axis(n.Col, n.AbsCol), axis(n.Row, n.AbsRow))
	}
	return fmt.Sprintf("REF(%s,%s)", axis(n.Col, n.AbsCol), axis(n.Row, n.AbsRow))
}

// RangeRefNode is a rectangular range reference; its corners follow the same
// per-axis relative/absolute rule as CellRefNode.
type RangeRefNode struct {
	WorksheetID       uint32
	WorksheetExplicit bool
	Start             CellRefNode
	End               CellRefNode
	Position          NodePosition
}

func (n *RangeRefNode) Eval(r CellResolver) (Primitive, error) {
	anchor := r.CurrentAddress()
	start, ok1 := n.Start.absolute(anchor)
	end, ok2 := n.End.absolute(anchor)
	if !ok1 || !ok2 {
		return NewSpreadsheetError(ErrorCodeRef, "invalid range reference"), nil
	}
	rng := normalizeRange(start, end)
	cr, err := r.ResolveRange(rng)
	if err != nil {
		if se, ok := err.(*SpreadsheetError); ok {
			return se, nil
		}
		return NewSpreadsheetError(ErrorCodeRef, err.Error()), nil
	}
	return cr, nil
}

func (n *RangeRefNode) GetPosition() NodePosition { return n.Position }
func (n *RangeRefNode) ToString() string {
	if n.WorksheetExplicit {
		return fmt.Sprintf("WS_RANGE(%d,%s,%s)", n.WorksheetID, n.Start.ToString(), n.End.ToString())
	}
	return fmt.Sprintf("RANGE(%s,%s)", n.Start.ToString(), n.End.ToString())
}

func normalizeRange(a, b CellAddress) RangeAddress {
	return RangeAddress{
		SheetID:  a.SheetID,
		StartRow: min32(a.Row, b.Row), EndRow: max32(a.Row, b.Row),
		StartCol: min32(a.Col, b.Col), EndCol: max32(a.Col, b.Col),
	}
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// NamedRangeNode references a named range by name, resolved against the
// engine's named-range table at eval time rather than at parse time (names
// may be (re)defined after a formula referencing them is parsed).
type NamedRangeNode struct {
	Name     string
	Position NodePosition
}

func (n *NamedRangeNode) Eval(r CellResolver) (Primitive, error) {
	rng, err := r.ResolveNamedRange(n.Name, r.CurrentAddress())
	if err != nil {
		if se, ok := err.(*SpreadsheetError); ok {
			return se, nil
		}
		return NewSpreadsheetError(ErrorCodeName, err.Error()), nil
	}
	cr, err := r.ResolveRange(rng)
	if err != nil {
		return NewSpreadsheetError(ErrorCodeRef, err.Error()), nil
	}
	return cr, nil
}

func (n *NamedRangeNode) GetPosition() NodePosition { return n.Position }
func (n *NamedRangeNode) ToString() string          { return n.Name }

// BinaryOpNode is a binary operator application.
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func asErrorValue(v Primitive, err error) Primitive {
	if err == nil {
		return v
	}
	if se, ok := err.(*SpreadsheetError); ok {
		return se
	}
	return NewSpreadsheetError(ErrorCodeValue, err.Error())
}

func (n *BinaryOpNode) Eval(r CellResolver) (Primitive, error) {
	leftVal := asErrorValue(n.Left.Eval(r))
	rightVal := asErrorValue(n.Right.Eval(r))

	if e, ok := leftVal.(*SpreadsheetError); ok {
		return e, nil
	}
	if e, ok := rightVal.(*SpreadsheetError); ok {
		return e, nil
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpPower:
		leftNum, leftOk := toNumber(leftVal)
		rightNum, rightOk := toNumber(rightVal)
		if !leftOk || !rightOk {
			return NewSpreadsheetError(ErrorCodeValue, "operator requires numeric values"), nil
		}
		switch n.Op {
		case BinOpAdd:
			return leftNum + rightNum, nil
		case BinOpSubtract:
			return leftNum - rightNum, nil
		case BinOpMultiply:
			return leftNum * rightNum, nil
		case BinOpDivide:
			if rightNum == 0 {
				return NewSpreadsheetError(ErrorCodeDiv0, "division by zero"), nil
			}
			return leftNum / rightNum, nil
		case BinOpPower:
			return math.Pow(leftNum, rightNum), nil
		}
	case BinOpConcat:
		return toString(leftVal) + toString(rightVal), nil
	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		cmp := comparePrimitives(leftVal, rightVal)
		if cmp == -2 && n.Op != BinOpEqual && n.Op != BinOpNotEqual {
			return NewSpreadsheetError(ErrorCodeValue, "cannot compare these values"), nil
		}
		switch n.Op {
		case BinOpEqual:
			return cmp == 0, nil
		case BinOpNotEqual:
			return cmp != 0, nil
		case BinOpLess:
			return cmp < 0, nil
		case BinOpLessEqual:
			return cmp <= 0, nil
		case BinOpGreater:
			return cmp > 0, nil
		case BinOpGreaterEqual:
			return cmp >= 0, nil
		}
	}
	return NewSpreadsheetError(ErrorCodeValue, "unknown operator"), nil
}

func (n *BinaryOpNode) GetPosition() NodePosition { return n.Position }
func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binOpSymbol(n.Op), n.Right.ToString())
}

func binOpSymbol(op BinaryOp) string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	case BinOpModulo:
		return "%"
	case BinOpPower:
		return "^"
	case BinOpConcat:
		return "&"
	case BinOpEqual:
		return "="
	case BinOpNotEqual:
		return "<>"
	case BinOpLess:
		return "<"
	case BinOpLessEqual:
		return "<="
	case BinOpGreater:
		return ">"
	case BinOpGreaterEqual:
		return ">="
	}
	return "?"
}

// UnaryOpNode is a unary operator application (+x, -x, x%).
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(r CellResolver) (Primitive, error) {
	val := asErrorValue(n.Operand.Eval(r))
	if e, ok := val.(*SpreadsheetError); ok {
		return e, nil
	}
	num, ok := toNumber(val)
	if !ok {
		return NewSpreadsheetError(ErrorCodeValue, "operator requires a numeric value"), nil
	}
	switch n.Op {
	case UnaryOpPlus:
		return num, nil
	case UnaryOpMinus:
		return -num, nil
	case UnaryOpPercent:
		return num / 100.0, nil
	}
	return NewSpreadsheetError(ErrorCodeValue, "unknown unary operator"), nil
}

func (n *UnaryOpNode) GetPosition() NodePosition { return n.Position }
func (n *UnaryOpNode) ToString() string {
	if n.Op == UnaryOpPercent {
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
	sign := "+"
	if n.Op == UnaryOpMinus {
		sign = "-"
	}
	return sign + n.Operand.ToString()
}

// FunctionCallNode invokes a named function through the resolver's
// CallFunction seam — the function library is an external collaborator,
// referenced only by this contract (spec §1 Out of scope).
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(r CellResolver) (Primitive, error) {
	args := make([]Primitive, len(n.Args))
	for i, a := range n.Args {
		args[i] = asErrorValue(a.Eval(r))
	}
	result, err := r.CallFunction(n.Name, args)
	if err != nil {
		if se, ok := err.(*SpreadsheetError); ok {
			return se, nil
		}
		return NewSpreadsheetError(ErrorCodeValue, err.Error()), nil
	}
	return result, nil
}

func (n *FunctionCallNode) GetPosition() NodePosition { return n.Position }
func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// comparePrimitives compares two primitive values and returns -1, 0 or 1;
// every pair is comparable, so it never returns -2. nil sorts first, values
// that both convert to numbers compare numerically, two booleans compare
// with false first, and any other pair compares by string form.
func comparePrimitives(left, right Primitive) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}
	if leftNum, ok1 := toNumber(left); ok1 {
		if rightNum, ok2 := toNumber(right); ok2 {
			switch {
			case leftNum < rightNum:
				return -1
			case leftNum > rightNum:
				return 1
			default:
				return 0
			}
		}
	}
	if leftBool, ok1 := left.(bool); ok1 {
		if rightBool, ok2 := right.(bool); ok2 {
			switch {
			case leftBool == rightBool:
				return 0
			case !leftBool && rightBool:
				return -1
			default:
				return 1
			}
		}
	}
	leftStr, rightStr := toString(left), toString(right)
	switch {
	case leftStr < rightStr:
		return -1
	case leftStr > rightStr:
		return 1
	default:
		return 0
	}
}

func toNumber(v Primitive) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

func toString(v Primitive) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return (&NumberNode{Value: t}).ToString()
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return ""
	case *SpreadsheetError:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
