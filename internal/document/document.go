// Package document runs the local, deterministic evaluator over a whole
// document in a single top-down pass.
package document

import (
	"fmt"
	"regexp"
	"strings"

	"nickandperla.net/tally/internal/classify"
	"nickandperla.net/tally/internal/eval"
	"nickandperla.net/tally/internal/normalize"
	"nickandperla.net/tally/internal/result"
)

// Binding records a name bound by a successfully evaluated line.
type Binding struct {
	Name  string
	Line  int
	Value float64
}

// Result is the outcome of evaluating a document locally.
type Result struct {
	Lines    result.Set
	Scope    eval.Scope // friendly names, as written
	Idents   eval.Scope // sanitized identifiers
	Bindings []Binding  // in binding order
	Values   []*float64 // per line, nil when the line has no value
	Tags     []string   // per line, "" when untagged
	Classes  []classify.Line
	Currency map[string]bool // friendly names whose value is money
}

var singlePercentRe = regexp.MustCompile(`^\s*-?\d*\.?\d+\s*%\s*$`)

// SplitLines splits text into lines, accepting \n and \r\n endings.
func SplitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

type evaluator struct {
	res      *Result
	friendly *eval.Builder
	idents   *eval.Builder
}

// Evaluate evaluates every line of text. It is a pure function of text and
// never fails: lines that cannot be evaluated simply have no result.
func Evaluate(text string) *Result {
	lines := SplitLines(text)
	e := &evaluator{
		res: &Result{
			Lines:    make(result.Set),
			Values:   make([]*float64, len(lines)),
			Tags:     make([]string, len(lines)),
			Classes:  make([]classify.Line, len(lines)),
			Currency: make(map[string]bool),
		},
		friendly: eval.NewBuilder(),
		idents:   eval.NewBuilder(),
	}
	for i, raw := range lines {
		c := classify.Classify(raw)
		e.res.Classes[i] = c
		e.res.Tags[i] = c.Tag
		e.line(i, c)
	}
	e.res.Scope = e.friendly.Snapshot()
	e.res.Idents = e.idents.Snapshot()
	return e.res
}

func (e *evaluator) line(i int, c classify.Line) {
	switch c.Kind {
	case classify.TaggedSum:
		total, n, currency := SumTag(c.Sum, i, e.res.Tags, e.res.Lines)
		format := result.FormatNumber
		if currency {
			format = result.FormatCurrency
		}
		e.set(i, result.Line{
			Value:       result.Float(total),
			Kind:        result.KindTotal,
			Format:      format,
			Explanation: SumExplanation(c.Sum, n),
			Formula:     "sum: " + c.Sum,
			Source:      result.SourceLocal,
		})

	case classify.Assignment, classify.LabeledValue, classify.BareExpression:
		formula, v, ok := e.evaluate(c.RHS)
		if !ok {
			return
		}
		kind := result.KindCalc
		if c.Kind == classify.Assignment {
			kind = result.KindVariable
		}
		if normalize.ContainsWord(c.Raw, "total") {
			kind = result.KindTotal
		}
		format := e.format(c)
		explanation := c.Name
		if explanation == "" {
			explanation = c.Body
		}
		e.set(i, result.Line{
			Value:       result.Float(v),
			Kind:        kind,
			Format:      format,
			Explanation: explanation,
			Formula:     formula,
			Source:      result.SourceLocal,
		})
		if c.Name != "" {
			e.bind(i, c.Name, v, format == result.FormatCurrency)
		}
	}
}

// evaluate substitutes bound friendly names into rhs, normalizes and
// evaluates it against the identifier scope.
func (e *evaluator) evaluate(rhs string) (string, float64, bool) {
	expr := normalize.Normalize(normalize.SubstituteNames(rhs, e.friendly.Snapshot().Map()))
	v, ok := eval.Evaluate(expr, e.idents.Snapshot())
	return expr, v, ok
}

func (e *evaluator) format(c classify.Line) result.Format {
	if singlePercentRe.MatchString(c.RHS) {
		return result.FormatPercent
	}
	if strings.Contains(c.Raw, "$") {
		return result.FormatCurrency
	}
	for name, money := range e.res.Currency {
		if money && normalize.ContainsWord(c.RHS, name) {
			return result.FormatCurrency
		}
	}
	return result.FormatNumber
}

func (e *evaluator) set(i int, l result.Line) {
	e.res.Lines[i] = l
	e.res.Values[i] = l.Value
}

func (e *evaluator) bind(i int, name string, v float64, currency bool) {
	e.friendly.Set(name, v)
	if id := normalize.Sanitize(name); id != "" {
		e.idents.Set(id, v)
	}
	e.res.Currency[name] = currency
	e.res.Bindings = append(e.res.Bindings, Binding{Name: name, Line: i, Value: v})
}

// SumTag adds up the values of lines before line that carry tag. It returns
// the total, the number of contributors and whether any contributor is
// currency.
func SumTag(tag string, line int, tags []string, lines result.Set) (float64, int, bool) {
	var (
		total    float64
		n        int
		currency bool
	)
	for j := 0; j < line && j < len(tags); j++ {
		if tags[j] != tag {
			continue
		}
		l, ok := lines[j]
		if !ok || l.Value == nil {
			continue
		}
		total += *l.Value
		n++
		currency = currency || l.Format == result.FormatCurrency
	}
	return total, n, currency
}

// SumExplanation describes a tagged sum with n contributors.
func SumExplanation(tag string, n int) string {
	switch n {
	case 0:
		return fmt.Sprintf("Sum of #%s (no tagged lines above)", tag)
	case 1:
		return fmt.Sprintf("Sum of #%s (1 line)", tag)
	}
	return fmt.Sprintf("Sum of #%s (%d lines)", tag, n)
}

// Variables returns the latest binding of every friendly name.
func (r *Result) Variables() map[string]Binding {
	out := make(map[string]Binding, len(r.Bindings))
	for _, b := range r.Bindings {
		out[b.Name] = b
	}
	return out
}
