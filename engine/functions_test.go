package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedRandom struct{ v float64 }

func (r fixedRandom) Float64() float64 { return r.v }

func TestSUMSkipsNonNumericStringsButCountsBooleans(t *testing.T) {
	lib := NewDefaultFunctionLibrary()
	result, err := lib.Call("SUM", 1.0, 2.0, "text", true)
	require.NoError(t, err)
	assert.Equal(t, 4.0, result, "a non-numeric string is skipped but a boolean coerces to 1/0")
}

func TestSUMPropagatesFirstError(t *testing.T) {
	lib := NewDefaultFunctionLibrary()
	_, err := lib.Call("SUM", 1.0, NewSpreadsheetError(ErrorCodeDiv0, ""))
	require.Error(t, err)
	se, ok := err.(*SpreadsheetError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeDiv0, se.ErrorCode)
}

func TestIFBranches(t *testing.T) {
	lib := NewDefaultFunctionLibrary()
	result, err := lib.Call("IF", true, "yes", "no")
	require.NoError(t, err)
	assert.Equal(t, "yes", result)

	result, err = lib.Call("IF", false, "yes", "no")
	require.NoError(t, err)
	assert.Equal(t, "no", result)
}

func TestUnknownFunctionIsNameError(t *testing.T) {
	lib := NewDefaultFunctionLibrary()
	_, err := lib.Call("NOTAREALFUNCTION")
	se, ok := err.(*SpreadsheetError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeName, se.ErrorCode)
}

func TestNOWIsDeterministicUnderFixedClock(t *testing.T) {
	clock := fixedClock{t: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)}
	lib := NewFunctionLibraryWithClock(clock, defaultRandomSource{})
	result, err := lib.Call("NOW")
	require.NoError(t, err)
	assert.Greater(t, result.(float64), 0.0)
}

func TestRANDBETWEENIsDeterministicUnderFixedSource(t *testing.T) {
	lib := NewFunctionLibraryWithClock(wallClock{}, fixedRandom{v: 0})
	result, err := lib.Call("RANDBETWEEN", 5.0, 10.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestRANDBETWEENRejectsInvertedBounds(t *testing.T) {
	lib := NewDefaultFunctionLibrary()
	_, err := lib.Call("RANDBETWEEN", 10.0, 5.0)
	se, ok := err.(*SpreadsheetError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeNum, se.ErrorCode)
}
