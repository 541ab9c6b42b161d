// Package validate statically checks externally supplied formulas before
// they are evaluated.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"nickandperla.net/tally/internal/eval"
	"nickandperla.net/tally/internal/normalize"
)

var (
	ErrEmpty             = errors.New("empty formula")
	ErrSelfReference     = errors.New("formula references its own variable")
	ErrUnknownIdentifier = errors.New("formula references an unknown identifier")
	ErrUnparseable       = errors.New("formula is not evaluable")
)

var (
	// LineRef matches L{n} and L{prev} line references.
	LineRef = regexp.MustCompile(`\bL\{\s*(\d+|prev)\s*\}`)
	// SumCall matches sum(tag) where the argument is a bare tag name.
	SumCall = regexp.MustCompile(`(?i)\bsum\s*\(\s*([a-z][\w-]*)\s*\)`)

	mathPrefixRe = regexp.MustCompile(`\bMath\.`)
	lnRe         = regexp.MustCompile(`(?i)\bln\s*\(`)
	tokenRe      = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|\d*\.?\d+(?:[eE][+-]?\d+)?`)
)

// Result is the outcome of Validate.
type Result struct {
	Valid  bool
	Reason string
}

// Validate checks rhs as the definition of bound (which may be empty)
// given the variables currently available.
func Validate(rhs, bound string, vars map[string]float64) Result {
	if err := Check(rhs, bound, vars); err != nil {
		return Result{Reason: err.Error()}
	}
	return Result{Valid: true}
}

// Check is Validate returning a wrapped sentinel error. Checks run in
// order and stop at the first failure: empty, self-reference, residual
// identifiers, dry-run compile.
func Check(rhs, bound string, vars map[string]float64) error {
	if strings.TrimSpace(rhs) == "" {
		return ErrEmpty
	}
	if self := alnumLower(bound); self != "" && strings.Contains(alnumLower(rhs), self) {
		return fmt.Errorf("%w: %s", ErrSelfReference, bound)
	}

	placeholders := make(map[string]float64, len(vars))
	for name := range vars {
		placeholders[name] = 1
	}
	s := SumCall.ReplaceAllString(rhs, "(1)")
	s = LineRef.ReplaceAllString(s, "(1)")
	s = normalize.SubstituteNames(s, placeholders)
	s = MapFunctions(s)

	for _, tok := range tokenRe.FindAllString(s, -1) {
		if tok[0] >= '0' && tok[0] <= '9' || tok[0] == '.' {
			continue
		}
		if eval.IsFunction(tok) || eval.IsConstant(tok) {
			continue
		}
		return fmt.Errorf("%w: %s", ErrUnknownIdentifier, tok)
	}

	if _, err := eval.Compile(normalize.Normalize(s)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return nil
}

// MapFunctions rewrites common foreign spellings of function names onto
// the evaluator's function set: Math.sqrt becomes sqrt, ln becomes log.
// Function lookup is already case-insensitive.
func MapFunctions(s string) string {
	s = mathPrefixRe.ReplaceAllString(s, "")
	return lnRe.ReplaceAllString(s, "log(")
}

func alnumLower(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}
