package engine

import (
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// canonicalForm renders a token stream into the string the template hash is
// computed over: every cell-reference token collapses to one placeholder
// byte and every range-reference token to that byte followed by ':', each
// keeping only its explicit sheet prefix, if any (spec §4.1 — "substituting every relative-cell-reference
// token with a single placeholder character while preserving all other
// token images in order"), string literals are delimited so that e.g. the
// text `A` as a formula operand can never collide with the letter A inside
// a string literal, and every other token contributes its literal image.
func canonicalForm(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.Type == TokenEOF || t.Type == TokenEquals {
			continue
		}
		switch t.Type {
		case TokenCell, TokenRange:
			b.WriteByte(0x01)
			if t.Type == TokenRange {
				b.WriteByte(':')
			}
			if i := strings.LastIndex(t.Value, "!"); i >= 0 {
				b.WriteString(t.Value[:i])
			}
		case TokenString:
			b.WriteByte(0x02)
			b.WriteString(t.Value)
			b.WriteByte(0x02)
		default:
			b.WriteString(t.Value)
		}
		b.WriteByte(0x03)
	}
	return b.String()
}

// tokenDrivenHash is the preferred hashing mode (spec §4.1): it runs the
// real tokenizer and hashes the canonical form of its output.
func tokenDrivenHash(tokens []Token) uint64 {
	return xxhash.Sum64String(canonicalForm(tokens))
}

// regexDrivenHash is the lexer-free fallback mode for throughput-sensitive
// paths. It derives an equivalent token stream with a single master regular
// expression instead of running the state-machine tokenizer, then feeds it
// through the same canonicalForm — by construction this gives the two modes
// the collision property spec §4.1 requires (formulas differing only in
// relative cell operands hash identically) without needing to duplicate the
// tokenizer's logic twice.
func regexDrivenHash(body string) uint64 {
	return xxhash.Sum64String(canonicalForm(regexTokenize(body)))
}

var refPattern = `(?:[A-Za-z_][A-Za-z0-9_]*!|'[^']*'!)?\$?[A-Za-z]{1,3}\$?[0-9]+`

var masterTokenRegexp = regexp.MustCompile(
	`"(?:[^"\\]|\\.)*"` + `|` +
		refPattern + `(?::` + refPattern + `)?` + `|` +
		`[0-9]+(?:\.[0-9]+)?` + `|` +
		`TRUE|FALSE` + `|` +
		`[A-Za-z_][A-Za-z0-9_]*` + `|` +
		`<>|<=|>=|[=<>+\-*/^&%(),:]`)

var cellLikeRegexp = regexp.MustCompile(`^` + refPattern + `$`)
var rangeLikeRegexp = regexp.MustCompile(`^` + refPattern + `:` + refPattern + `$`)

// regexTokenize is the "lexer-free" scanner: a single-pass regexp match
// without the tokenizer's state machine. canonicalForm only looks at which
// spans are cell/range references vs string literals vs everything else.
// The pattern does not reproduce every lexer rule: it treats a
// backslash-escaped quote as part of a string literal where the lexer treats
// a doubled quote that way, and it splits exponent numbers such as 1e3 into a
// number and a cell-like token, so formulas using those forms can hash
// differently under the two modes.
func regexTokenize(body string) []Token {
	matches := masterTokenRegexp.FindAllString(body, -1)
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		switch {
		case strings.HasPrefix(m, `"`):
			tokens = append(tokens, Token{Type: TokenString, Value: strings.Trim(m, `"`)})
		case rangeLikeRegexp.MatchString(m):
			tokens = append(tokens, Token{Type: TokenRange, Value: m})
		case cellLikeRegexp.MatchString(m):
			tokens = append(tokens, Token{Type: TokenCell, Value: m})
		case m == "TRUE" || m == "FALSE":
			tokens = append(tokens, Token{Type: TokenBoolean, Value: m})
		default:
			tokens = append(tokens, Token{Type: TokenIdentifier, Value: m})
		}
	}
	return tokens
}
