package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Clock abstracts wall-clock time so NOW/TODAY are deterministic under test,
// adapted unchanged from the teacher's Clock seam.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// RandomSource abstracts RAND/RANDBETWEEN's entropy source for the same
// reason, adapted from the teacher's RandomGenerator seam.
type RandomSource interface {
	Float64() float64
}

type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 { return rand.Float64() }

// FunctionLibrary is the re-entrant collaborator CellResolver.CallFunction
// delegates to (spec §1/§5 — the function library is out of the graph's own
// scope, reached only through this seam). DefaultFunctionLibrary is the
// built-in set; a host embedding the engine may substitute its own.
type FunctionLibrary interface {
	Call(name string, args ...Primitive) (Primitive, error)
}

// DefaultFunctionLibrary is the built-in function set, grounded on the
// teacher's BuiltInFunctions dispatcher and extended with MMULT for the
// matrix-formula scenario.
type DefaultFunctionLibrary struct {
	clock Clock
	rng   RandomSource
}

func NewDefaultFunctionLibrary() *DefaultFunctionLibrary {
	return &DefaultFunctionLibrary{clock: wallClock{}, rng: defaultRandomSource{}}
}

// NewFunctionLibraryWithClock builds a library with injected time/randomness,
// for deterministic tests of NOW/TODAY/RAND/RANDBETWEEN.
func NewFunctionLibraryWithClock(clock Clock, rng RandomSource) *DefaultFunctionLibrary {
	return &DefaultFunctionLibrary{clock: clock, rng: rng}
}

func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}

func (bf *DefaultFunctionLibrary) Call(name string, args ...Primitive) (Primitive, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(args...)
	case "AVERAGE":
		return bf.AVERAGE(args...)
	case "AVERAGEA":
		return bf.AVERAGEA(args...)
	case "COUNT":
		return bf.COUNT(args...)
	case "COUNTA":
		return bf.COUNTA(args...)
	case "MAX":
		return bf.MAX(args...)
	case "MIN":
		return bf.MIN(args...)
	case "MEDIAN":
		return bf.MEDIAN(args...)
	case "MODE":
		return bf.MODE(args...)
	case "IF":
		return bf.IF(args...)
	case "AND":
		return bf.AND(args...)
	case "OR":
		return bf.OR(args...)
	case "NOT":
		return bf.NOT(args...)
	case "CONCATENATE":
		return bf.CONCATENATE(args...)
	case "LEN":
		return bf.LEN(args...)
	case "UPPER":
		return bf.UPPER(args...)
	case "LOWER":
		return bf.LOWER(args...)
	case "TRIM":
		return bf.TRIM(args...)
	case "ABS":
		return bf.ABS(args...)
	case "ROUND":
		return bf.ROUND(args...)
	case "FLOOR":
		return bf.FLOOR(args...)
	case "CEILING":
		return bf.CEILING(args...)
	case "SQRT":
		return bf.SQRT(args...)
	case "POWER":
		return bf.POWER(args...)
	case "MOD":
		return bf.MOD(args...)
	case "PI":
		return bf.PI(args...)
	case "NOW":
		return bf.NOW(args...)
	case "TODAY":
		return bf.TODAY(args...)
	case "RAND":
		return bf.RAND(args...)
	case "RANDBETWEEN":
		return bf.RANDBETWEEN(args...)
	case "MMULT":
		return bf.MMULT(args...)
	default:
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown function: %s", name))
	}
}

func (bf *DefaultFunctionLibrary) SUM(args ...Primitive) (Primitive, error) {
	sum := 0.0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					sum += num
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			sum += num
		}
	}
	rounded, _ := strconv.ParseFloat(fmt.Sprintf("%.15f", sum), 64)
	return rounded, nil
}

func (bf *DefaultFunctionLibrary) AVERAGE(args ...Primitive) (Primitive, error) {
	sum := 0.0
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if value != nil {
					if num, ok := toNumber(value); ok && !math.IsNaN(num) {
						sum += num
						count++
					}
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			sum += num
			count++
		}
	}
	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "division by zero")
	}
	return sum / float64(count), nil
}

func (bf *DefaultFunctionLibrary) AVERAGEA(args ...Primitive) (Primitive, error) {
	sum := 0.0
	count := 0
	process := func(value Primitive) error {
		if value == nil {
			return nil
		}
		if err := checkForError(value); err != nil {
			return err
		}
		switch v := value.(type) {
		case float64:
			sum += v
			count++
		case bool:
			if v {
				sum += 1
			}
			count++
		case string:
			count++
		}
		return nil
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := process(value); err != nil {
					return nil, err
				}
			}
		} else if err := process(arg); err != nil {
			return nil, err
		}
	}
	if count == 0 {
		return nil, NewSpreadsheetError(ErrorCodeRef, "AVERAGEA has no values")
	}
	return sum / float64(count), nil
}

func (bf *DefaultFunctionLibrary) COUNT(args ...Primitive) (Primitive, error) {
	shouldCount := func(value Primitive) bool {
		_, ok := value.(float64)
		return ok
	}
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if _, isErr := value.(*SpreadsheetError); !isErr && shouldCount(value) {
					count++
				}
			}
		} else if shouldCount(arg) {
			count++
		}
	}
	return float64(count), nil
}

func (bf *DefaultFunctionLibrary) COUNTA(args ...Primitive) (Primitive, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if value != nil {
					count++
				}
			}
		} else {
			count++
		}
	}
	return float64(count), nil
}

func (bf *DefaultFunctionLibrary) MAX(args ...Primitive) (Primitive, error) {
	best := math.Inf(-1)
	has := false
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					if num > best {
						best = num
					}
					has = true
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			if num > best {
				best = num
			}
			has = true
		}
	}
	if has {
		return best, nil
	}
	return 0.0, nil
}

func (bf *DefaultFunctionLibrary) MIN(args ...Primitive) (Primitive, error) {
	best := math.Inf(1)
	has := false
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					if num < best {
						best = num
					}
					has = true
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			if num < best {
				best = num
			}
			has = true
		}
	}
	if has {
		return best, nil
	}
	return 0.0, nil
}

func (bf *DefaultFunctionLibrary) MEDIAN(args ...Primitive) (Primitive, error) {
	var values []float64
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					values = append(values, num)
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			values = append(values, num)
		}
	}
	if len(values) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MEDIAN has no numeric values")
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2, nil
	}
	return values[mid], nil
}

func (bf *DefaultFunctionLibrary) MODE(args ...Primitive) (Primitive, error) {
	freq := make(map[float64]int)
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := checkForError(value); err != nil {
					return nil, err
				}
				if num, ok := toNumber(value); ok && !math.IsNaN(num) {
					freq[num]++
				}
			}
		} else if num, ok := toNumber(arg); ok && !math.IsNaN(num) {
			freq[num]++
		}
	}
	if len(freq) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "MODE has no numeric values")
	}
	maxFreq := 0
	for _, f := range freq {
		if f > maxFreq {
			maxFreq = f
		}
	}
	var modes []float64
	for v, f := range freq {
		if f == maxFreq {
			modes = append(modes, v)
		}
	}
	if maxFreq == 1 && len(modes) == len(freq) {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MODE: no value appears more than once")
	}
	sort.Float64s(modes)
	return modes[0], nil
}

func (bf *DefaultFunctionLibrary) IF(args ...Primitive) (Primitive, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IF requires 2 or 3 arguments")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	if isTruthy(args[0]) {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func (bf *DefaultFunctionLibrary) AND(args ...Primitive) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if !isTruthy(arg) {
			return false, nil
		}
	}
	return true, nil
}

func (bf *DefaultFunctionLibrary) OR(args ...Primitive) (Primitive, error) {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		if isTruthy(arg) {
			return true, nil
		}
	}
	return false, nil
}

func (bf *DefaultFunctionLibrary) NOT(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}

func (bf *DefaultFunctionLibrary) CONCATENATE(args ...Primitive) (Primitive, error) {
	var b strings.Builder
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		b.WriteString(toString(arg))
	}
	return b.String(), nil
}

func (bf *DefaultFunctionLibrary) LEN(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LEN requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return float64(len(toString(args[0]))), nil
}

func (bf *DefaultFunctionLibrary) UPPER(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "UPPER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToUpper(toString(args[0])), nil
}

func (bf *DefaultFunctionLibrary) LOWER(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "LOWER requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.ToLower(toString(args[0])), nil
}

func (bf *DefaultFunctionLibrary) TRIM(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TRIM requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return strings.TrimSpace(toString(args[0])), nil
}

func (bf *DefaultFunctionLibrary) ABS(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ABS requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ABS requires a numeric argument")
	}
	return math.Abs(num), nil
}

func (bf *DefaultFunctionLibrary) ROUND(args ...Primitive) (Primitive, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "ROUND requires 1 or 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric first argument")
	}
	places := 0.0
	if len(args) == 2 {
		places, ok = toNumber(args[1])
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, "ROUND requires a numeric second argument")
		}
	}
	multiplier := math.Pow(10, places)
	return math.Round(num*multiplier) / multiplier, nil
}

func (bf *DefaultFunctionLibrary) FLOOR(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "FLOOR requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "FLOOR requires a numeric argument")
	}
	return math.Floor(num), nil
}

func (bf *DefaultFunctionLibrary) CEILING(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "CEILING requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "CEILING requires a numeric argument")
	}
	return math.Ceil(num), nil
}

func (bf *DefaultFunctionLibrary) SQRT(args ...Primitive) (Primitive, error) {
	if len(args) != 1 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "SQRT requires exactly 1 argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	num, ok := toNumber(args[0])
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "SQRT requires a numeric argument")
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num), nil
}

func (bf *DefaultFunctionLibrary) POWER(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "POWER requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	base, ok1 := toNumber(args[0])
	exp, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "POWER requires numeric arguments")
	}
	return math.Pow(base, exp), nil
}

func (bf *DefaultFunctionLibrary) MOD(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MOD requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	dividend, ok1 := toNumber(args[0])
	divisor, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MOD requires numeric arguments")
	}
	if divisor == 0 {
		return nil, NewSpreadsheetError(ErrorCodeDiv0, "division by zero")
	}
	return math.Mod(dividend, divisor), nil
}

func (bf *DefaultFunctionLibrary) PI(args ...Primitive) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PI takes no arguments")
	}
	return math.Pi, nil
}

// excelEpochMS and msPerDay follow the teacher's Excel-serial-date
// convention for NOW/TODAY.
const (
	excelEpochMS = -2209075200000
	msPerDay     = 86400000
)

func (bf *DefaultFunctionLibrary) NOW(args ...Primitive) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "NOW takes no arguments")
	}
	now := bf.clock.Now()
	diffMs := float64(now.UnixMilli() - excelEpochMS)
	return diffMs / msPerDay, nil
}

func (bf *DefaultFunctionLibrary) TODAY(args ...Primitive) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "TODAY takes no arguments")
	}
	now := bf.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	diffMs := float64(midnight.UnixMilli() - excelEpochMS)
	return math.Floor(diffMs / msPerDay), nil
}

func (bf *DefaultFunctionLibrary) RAND(args ...Primitive) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RAND takes no arguments")
	}
	return bf.rng.Float64(), nil
}

func (bf *DefaultFunctionLibrary) RANDBETWEEN(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "RANDBETWEEN requires exactly 2 arguments")
	}
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
	}
	low, ok1 := toNumber(args[0])
	high, ok2 := toNumber(args[1])
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "RANDBETWEEN requires numeric arguments")
	}
	if low > high {
		return nil, NewSpreadsheetError(ErrorCodeNum, "RANDBETWEEN requires bottom <= top")
	}
	span := math.Floor(high) - math.Ceil(low) + 1
	return math.Ceil(low) + math.Floor(bf.rng.Float64()*span), nil
}

// MMULT multiplies two matrix ranges, the one built-in that forces two
// Range operands into a two-dimensional result (spec §12 supplemented
// matrix-formula scenario).
func (bf *DefaultFunctionLibrary) MMULT(args ...Primitive) (Primitive, error) {
	if len(args) != 2 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "MMULT requires exactly 2 arguments")
	}
	left, ok1 := args[0].(Range)
	right, ok2 := args[1].(Range)
	if !ok1 || !ok2 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MMULT requires two range arguments")
	}
	lRows, lCols := left.Dimensions()
	rRows, rCols := right.Dimensions()
	if lCols != rRows {
		return nil, NewSpreadsheetError(ErrorCodeValue, "MMULT operand dimensions are incompatible")
	}
	var lMatrix, rMatrix [][]float64
	for row := range left.Rows() {
		conv := make([]float64, len(row))
		for i, v := range row {
			num, ok := toNumber(v)
			if !ok {
				return nil, NewSpreadsheetError(ErrorCodeValue, "MMULT requires numeric cells")
			}
			conv[i] = num
		}
		lMatrix = append(lMatrix, conv)
	}
	for row := range right.Rows() {
		conv := make([]float64, len(row))
		for i, v := range row {
			num, ok := toNumber(v)
			if !ok {
				return nil, NewSpreadsheetError(ErrorCodeValue, "MMULT requires numeric cells")
			}
			conv[i] = num
		}
		rMatrix = append(rMatrix, conv)
	}
	result := make([][]Primitive, lRows)
	for i := uint32(0); i < lRows; i++ {
		row := make([]Primitive, rCols)
		for j := uint32(0); j < rCols; j++ {
			sum := 0.0
			for k := uint32(0); k < lCols; k++ {
				sum += lMatrix[i][k] * rMatrix[k][j]
			}
			row[j] = sum
		}
		result[i] = row
	}
	return result, nil
}

func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}
