package engine

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var configValidator = validator.New()

// Configuration is the engine's enumerated option record (spec §6). It is
// validated once, at construction, rather than field-by-field at each use
// site.
type Configuration struct {
	// MatrixDetection turns on coalescing of adjacent numeric blocks into a
	// single Matrix vertex.
	MatrixDetection bool

	// MatrixDetectionThreshold is the minimum block dimension (rows and
	// columns) that triggers coalescing when MatrixDetection is on.
	MatrixDetectionThreshold int `validate:"gte=1"`

	// CaseSensitive is carried in the record but read by no code outside
	// this file; string comparison in the function library does not
	// depend on it.
	CaseSensitive bool

	// FunctionArgSeparator must be non-zero. The lexer and parser do not
	// read it: function arguments are always separated by ','.
	FunctionArgSeparator rune `validate:"required"`

	// Language must be "en". No function-name alias table exists and no
	// code outside this file reads it.
	Language string `validate:"oneof=en"`

	// PrecisionRounding must be >= 0. No evaluation code reads it; results
	// are not rounded.
	PrecisionRounding int `validate:"gte=0"`

	// SmartRounding is carried in the record but read by no evaluation
	// code; numeric comparison does not depend on it.
	SmartRounding bool

	// ParserCacheSize bounds the template-AST cache with an LRU when > 0.
	// Zero (the default) leaves the cache unbounded, per spec §9's design
	// note that an LRU bound is an optional addition, not a core
	// requirement.
	ParserCacheSize int `validate:"gte=0"`
}

// DefaultConfiguration returns the configuration used when none is supplied
// to NewEngine.
func DefaultConfiguration() Configuration {
	return Configuration{
		MatrixDetection:          false,
		MatrixDetectionThreshold: 2,
		CaseSensitive:            false,
		FunctionArgSeparator:     ',',
		Language:                 "en",
		PrecisionRounding:        15,
		SmartRounding:            true,
		ParserCacheSize:          0,
	}
}

// Validate checks the configuration's enumerated options and wraps the first
// failing rule in a package-level error so callers can test with errors.Is.
func (c Configuration) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}
