// Package result defines the per-line display model shared by the local
// evaluator, the reconciliation engine and the renderers.
package result

import (
	"sort"
)

// Kind classifies a computed line for display.
type Kind string

const (
	KindVariable Kind = "variable"
	KindCalc     Kind = "calc"
	KindTotal    Kind = "total"
	KindHeader   Kind = "header"
	KindNote     Kind = "note"
	KindSkip     Kind = "skip"
)

// Format is a display hint; it has no effect on arithmetic.
type Format string

const (
	FormatCurrency Format = "currency"
	FormatPercent  Format = "percent"
	FormatNumber   Format = "number"
)

// Source records where a value came from.
type Source string

const (
	SourceLocal Source = "local"
	SourceAI    Source = "ai"
)

// Line is the result attached to one document line.
// Value is nil for header, note and skip entries.
type Line struct {
	Value       *float64 `json:"value" yaml:"value"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Format      Format   `json:"format" yaml:"format"`
	Explanation string   `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Formula     string   `json:"formula,omitempty" yaml:"formula,omitempty"`
	Source      Source   `json:"source" yaml:"source"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// HasValue reports whether the line carries a number.
func (l Line) HasValue() bool { return l.Value != nil }

// Equal compares two lines by content, including the pointed-to value.
func (l Line) Equal(o Line) bool {
	if (l.Value == nil) != (o.Value == nil) {
		return false
	}
	if l.Value != nil && *l.Value != *o.Value {
		return false
	}
	return l.Kind == o.Kind && l.Format == o.Format && l.Explanation == o.Explanation &&
		l.Formula == o.Formula && l.Source == o.Source
}

// Set maps a 0-based line index to its result. Absent means no value.
type Set map[int]Line

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for i, l := range s {
		if l.Value != nil {
			l.Value = Float(*l.Value)
		}
		out[i] = l
	}
	return out
}

// Indices returns the line indices present in s, ascending.
func (s Set) Indices() []int {
	idx := make([]int, 0, len(s))
	for i := range s {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Equal reports whether both sets hold the same lines with equal content.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for i, l := range s {
		ol, ok := o[i]
		if !ok || !l.Equal(ol) {
			return false
		}
	}
	return true
}
