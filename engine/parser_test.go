package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveSheetFixture(name string) (uint32, bool) {
	switch name {
	case "Sheet1":
		return 1, true
	case "Sheet2":
		return 2, true
	default:
		return 0, false
	}
}

func parsesOK(formula string) bool {
	result := ParseFormula(formula, CellAddress{SheetID: 1, Col: 0, Row: 0}, resolveSheetFixture)
	_, isErr := result.AST.(*ErrorNode)
	return !isErr
}

func TestParserAcceptsWellFormedFormulas(t *testing.T) {
	valid := []string{
		"=1+2",
		"=A1",
		"=SUM(A1:A10)",
		"=Sheet2!A1",
		"=Sheet2!A1:B2",
		"=SUM(Sheet2!A1:A10)",
		"=Sheet2!A1+A2",
		"=SUM(B2:A1)",
		"=SUM(A1:A1)",
		`=CONCATENATE("Hello ", "World")`,
		"=IF(A1>0,1,-1)",
		"=-A1%",
	}
	for _, formula := range valid {
		t.Run(formula, func(t *testing.T) {
			assert.True(t, parsesOK(formula), "expected %q to parse", formula)
		})
	}
}

func TestParserRejectsMalformedFormulas(t *testing.T) {
	invalid := []string{
		"=",
		"=SUM(",
		"=A1:",
		`="hello`,
		"=1+",
		"=(1+2",
	}
	for _, formula := range invalid {
		t.Run(formula, func(t *testing.T) {
			assert.False(t, parsesOK(formula), "expected %q to fail", formula)
		})
	}
}

func TestParserExtractsDependenciesInSourceOrder(t *testing.T) {
	result := ParseFormula("=B1+A1", CellAddress{SheetID: 1, Col: 2, Row: 0}, resolveSheetFixture)
	require.Len(t, result.Dependencies, 2)
	assert.Equal(t, DependencyCell, result.Dependencies[0].Kind)
	assert.Equal(t, uint32(1), result.Dependencies[0].Cell.Col) // B1
	assert.Equal(t, uint32(0), result.Dependencies[1].Cell.Col) // A1
}

func TestParserResolvesSheetQualifiedReference(t *testing.T) {
	result := ParseFormula("=Sheet2!A1", CellAddress{SheetID: 1, Col: 0, Row: 0}, resolveSheetFixture)
	require.Len(t, result.Dependencies, 1)
	assert.Equal(t, uint32(2), result.Dependencies[0].Cell.SheetID)
}

func TestParserUnknownSheetPrefixYieldsParseError(t *testing.T) {
	result := ParseFormula("=Nope!A1", CellAddress{SheetID: 1, Col: 0, Row: 0}, resolveSheetFixture)
	errNode, ok := result.AST.(*ErrorNode)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeParse, errNode.Code)
}

func TestParserFlagsVolatileFunctions(t *testing.T) {
	result := ParseFormula("=NOW()+A1", CellAddress{SheetID: 1, Col: 0, Row: 0}, resolveSheetFixture)
	assert.True(t, result.Volatile)
}

func TestParserFlagsStructureSensitiveFunctions(t *testing.T) {
	result := ParseFormula("=OFFSET(A1,1,1)", CellAddress{SheetID: 1, Col: 0, Row: 0}, resolveSheetFixture)
	assert.True(t, result.StructureSensitive)
}
