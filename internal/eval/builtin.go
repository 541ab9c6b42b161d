package eval

import (
	"math"
	"sort"
	"strings"
)

// builtin describes a function callable from an expression.
// maxArgs < 0 means variadic.
type builtin struct {
	minArgs, maxArgs int
	fn               func(args []float64) float64
}

func unary(f func(float64) float64) builtin {
	return builtin{minArgs: 1, maxArgs: 1, fn: func(a []float64) float64 { return f(a[0]) }}
}

var builtins = map[string]builtin{
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"log10": unary(math.Log10),
	"exp":   unary(math.Exp),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"log":   {minArgs: 1, maxArgs: 2, fn: builtinLog},
	"round": {minArgs: 1, maxArgs: 2, fn: builtinRound},
	"pow":   {minArgs: 2, maxArgs: 2, fn: func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min":   {minArgs: 1, maxArgs: -1, fn: builtinMin},
	"max":   {minArgs: 1, maxArgs: -1, fn: builtinMax},
	"sum":   {minArgs: 0, maxArgs: -1, fn: builtinSum},
}

var constants = map[string]float64{
	"PI": math.Pi,
	"pi": math.Pi,
	"E":  math.E,
}

// getBuiltin returns the builtin for name, matched case-insensitively.
func getBuiltin(name string) (builtin, bool) {
	b, ok := builtins[strings.ToLower(name)]
	return b, ok
}

// IsFunction reports whether name is a callable builtin.
func IsFunction(name string) bool {
	_, ok := getBuiltin(name)
	return ok
}

// IsConstant reports whether name is a predefined constant.
func IsConstant(name string) bool {
	_, ok := constants[name]
	return ok
}

// Functions returns the builtin function names, sorted.
func Functions() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinLog(a []float64) float64 {
	if len(a) == 2 {
		return math.Log(a[0]) / math.Log(a[1])
	}
	return math.Log(a[0])
}

// builtinRound rounds half away from zero at the given number of decimal digits.
func builtinRound(a []float64) float64 {
	if len(a) == 1 {
		return math.Round(a[0])
	}
	p := math.Pow(10, math.Trunc(a[1]))
	return math.Round(a[0]*p) / p
}

func builtinMin(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		m = math.Min(m, v)
	}
	return m
}

func builtinMax(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		m = math.Max(m, v)
	}
	return m
}

func builtinSum(a []float64) float64 {
	total := 0.0
	for _, v := range a {
		total += v
	}
	return total
}
