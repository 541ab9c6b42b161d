// Package reconcile merges local results with validated AI rewrites.
//
// Local results always win. Rewrites fill only lines the local evaluator
// left empty, and two bounded fixed-point loops propagate values through
// tagged sums and chains of AI-derived variables.
package reconcile

import (
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"nickandperla.net/tally/internal/classify"
	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/eval"
	"nickandperla.net/tally/internal/normalize"
	"nickandperla.net/tally/internal/result"
	"nickandperla.net/tally/internal/rewrite"
	"nickandperla.net/tally/internal/validate"
)

// DefaultMaxIterations caps both fixed-point loops.
const DefaultMaxIterations = 5

// SumAlias is the variable name under which a tagged sum is registered.
func SumAlias(tag string) string { return "sum:" + tag }

type options struct {
	maxIterations int
	minConfidence float64
	logger        *slog.Logger
}

// Option configures Reconcile.
type Option func(*options)

// WithMaxIterations overrides the iteration cap of both loops.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithMinConfidence drops rewrites whose confidence is below c.
func WithMinConfidence(c float64) Option {
	return func(o *options) { o.minConfidence = c }
}

// WithLogger sets the logger for per-line decisions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type reconciler struct {
	opts     options
	local    *document.Result
	rewrites map[int]rewrite.Rewrite
	final    result.Set
	vars     map[string]float64
	currency map[string]bool
	pending  map[int]bool
}

// Reconcile returns the final display model for text. local must be the
// evaluation of the same text. It never fails; a rewrite that cannot be
// validated or evaluated leaves its line without a value.
func Reconcile(text string, local *document.Result, rewrites map[int]rewrite.Rewrite, opts ...Option) result.Set {
	o := options{maxIterations: DefaultMaxIterations, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if local == nil {
		local = document.Evaluate(text)
	}

	r := &reconciler{
		opts:     o,
		local:    local,
		rewrites: rewrites,
		final:    local.Lines.Clone(),
		vars:     local.Scope.Map(),
		currency: make(map[string]bool, len(local.Currency)),
		pending:  make(map[int]bool),
	}
	for name, money := range local.Currency {
		r.currency[name] = money
	}

	r.applyRewrites()
	r.recomputeSums()
	r.resolvePending()
	return r.final
}

// applyRewrites makes the first pass over lines without a local result.
func (r *reconciler) applyRewrites() {
	for _, i := range sortedKeys(r.rewrites) {
		if i < 0 || i >= len(r.local.Classes) {
			continue
		}
		if _, ok := r.final[i]; ok {
			continue
		}
		rw := r.rewrites[i].Resolved()
		if r.opts.minConfidence > 0 && rw.Confidence < r.opts.minConfidence {
			r.opts.logger.Debug("rewrite below confidence", "line", i, "confidence", rw.Confidence)
			continue
		}
		switch rw.Kind {
		case rewrite.KindHeader, rewrite.KindNote:
			kind := result.KindHeader
			if rw.Kind == rewrite.KindNote {
				kind = result.KindNote
			}
			r.final[i] = result.Line{
				Kind:        kind,
				Format:      result.FormatNumber,
				Explanation: rw.Explanation,
				Source:      result.SourceAI,
			}
		case rewrite.KindRewrite:
			if err := r.resolve(i, rw); err != nil {
				r.opts.logger.Debug("rewrite not applied", "line", i, "error", err)
				if retryable(err) {
					r.pending[i] = true
				}
			}
		}
	}
}

// retryable reports whether a failure may clear once more values exist.
func retryable(err error) bool {
	return errors.Is(err, validate.ErrUnknownIdentifier) || errors.Is(err, eval.ErrUnbound)
}

// resolve validates, substitutes and evaluates a rewrite for line i.
func (r *reconciler) resolve(i int, rw rewrite.Rewrite) error {
	c := r.local.Classes[i]
	if err := validate.Check(rw.RHS, c.Name, r.vars); err != nil {
		return err
	}
	expr := r.substitute(i, rw.RHS)
	v, err := eval.Eval(expr, eval.Scope{})
	if err != nil {
		return err
	}

	kind := result.KindCalc
	switch {
	case c.Kind == classify.Assignment:
		kind = result.KindVariable
	case normalize.ContainsWord(c.Raw, "total"):
		kind = result.KindTotal
	}
	format := r.format(c, rw.RHS)
	r.final[i] = result.Line{
		Value:       result.Float(v),
		Kind:        kind,
		Format:      format,
		Explanation: rw.Explanation,
		Formula:     expr,
		Source:      result.SourceAI,
	}
	if c.Name != "" {
		r.vars[c.Name] = v
		r.currency[c.Name] = format == result.FormatCurrency
	}
	r.opts.logger.Debug("rewrite applied", "line", i, "value", v)
	return nil
}

// substitute replaces tag sums, line references and variables in rhs with
// literal values, then normalizes the result. Tag sums go first so a tag
// that shares its name with a variable still sums the tag.
func (r *reconciler) substitute(i int, rhs string) string {
	s := validate.SumCall.ReplaceAllStringFunc(rhs, func(m string) string {
		tag := strings.ToLower(validate.SumCall.FindStringSubmatch(m)[1])
		total, _, _ := document.SumTag(tag, i, r.local.Tags, r.final)
		return normalize.FormatValue(total)
	})
	s = validate.LineRef.ReplaceAllStringFunc(s, func(m string) string {
		ref := validate.LineRef.FindStringSubmatch(m)[1]
		return normalize.FormatValue(r.lineRef(i, ref))
	})
	s = normalize.SubstituteNames(s, r.vars)
	return normalize.Normalize(validate.MapFunctions(s))
}

// lineRef resolves L{n} or L{prev} for line i, defaulting to 0.
func (r *reconciler) lineRef(i int, ref string) float64 {
	if ref == "prev" {
		for j := i - 1; j >= 0; j-- {
			if l, ok := r.final[j]; ok && l.Value != nil {
				return *l.Value
			}
		}
		return 0
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0
	}
	if l, ok := r.final[n]; ok && l.Value != nil {
		return *l.Value
	}
	return 0
}

func (r *reconciler) format(c classify.Line, rhs string) result.Format {
	rhs = strings.TrimSpace(rhs)
	if strings.HasSuffix(rhs, "%") && !strings.ContainsAny(rhs[:len(rhs)-1], "+-*/()%") {
		return result.FormatPercent
	}
	if strings.Contains(c.Raw, "$") || strings.Contains(rhs, "$") {
		return result.FormatCurrency
	}
	for name, money := range r.currency {
		if money && normalize.ContainsWord(rhs, name) {
			return result.FormatCurrency
		}
	}
	return result.FormatNumber
}

// recomputeSums re-evaluates every tagged-sum line against the current
// final set until no sum changes or the cap is reached. Each sum is
// registered under its alias and under the label of a plain text line
// directly above it; the label binding is a heuristic.
func (r *reconciler) recomputeSums() {
	for iter := 0; iter < r.opts.maxIterations; iter++ {
		changed := false
		for i, c := range r.local.Classes {
			if c.Kind != classify.TaggedSum {
				continue
			}
			total, n, currency := document.SumTag(c.Sum, i, r.local.Tags, r.final)
			l := r.final[i]
			if l.Value == nil || *l.Value != total {
				changed = true
				l.Value = result.Float(total)
				l.Explanation = document.SumExplanation(c.Sum, n)
				r.opts.logger.Debug("tagged sum updated", "line", i, "tag", c.Sum, "value", total)
			}
			if currency {
				l.Format = result.FormatCurrency
			}
			r.final[i] = l

			r.vars[SumAlias(c.Sum)] = total
			r.currency[SumAlias(c.Sum)] = currency
			if label := r.labelAbove(i); label != "" {
				r.vars[label] = total
				r.currency[label] = currency
			}
		}
		if !changed {
			return
		}
	}
}

// labelAbove returns the text of line i-1 if it is plain text, without a
// trailing colon.
func (r *reconciler) labelAbove(i int) string {
	if i == 0 {
		return ""
	}
	c := r.local.Classes[i-1]
	if c.Kind != classify.Text {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(c.Body, ":"))
}

// resolvePending retries rewrites whose dependencies were missing until a
// pass makes no progress or the cap is reached. Lines still pending at the
// end stay unresolved.
func (r *reconciler) resolvePending() {
	for iter := 0; iter < r.opts.maxIterations && len(r.pending) > 0; iter++ {
		progress := false
		for _, i := range sortedKeys(r.pending) {
			err := r.resolve(i, r.rewrites[i].Resolved())
			switch {
			case err == nil:
				delete(r.pending, i)
				progress = true
			case !retryable(err):
				delete(r.pending, i)
			}
		}
		if !progress {
			break
		}
		r.recomputeSums()
	}
	for i := range r.pending {
		r.opts.logger.Debug("rewrite unresolved", "line", i)
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
