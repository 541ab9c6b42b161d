// Package render turns a final display model into terminal text, JSON or
// YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/result"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json or yaml (yml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Entry is one source line with its result, if any.
type Entry struct {
	Index   int          `json:"line" yaml:"line"`
	Text    string       `json:"text" yaml:"text"`
	Display string       `json:"display,omitempty" yaml:"display,omitempty"`
	Result  *result.Line `json:"result,omitempty" yaml:"result,omitempty"`
}

// Document is the serializable display model.
type Document struct {
	DocID  string  `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
	Status string  `json:"status,omitempty" yaml:"status,omitempty"`
	Lines  []Entry `json:"lines" yaml:"lines"`
}

// Build pairs every line of text with its entry in set.
func Build(docID, status, text string, set result.Set) Document {
	lines := document.SplitLines(text)
	doc := Document{DocID: docID, Status: status, Lines: make([]Entry, 0, len(lines))}
	for i, line := range lines {
		e := Entry{Index: i, Text: line}
		if l, ok := set[i]; ok {
			e.Result = &l
			e.Display = Value(l)
		}
		doc.Lines = append(doc.Lines, e)
	}
	return doc
}

// Value formats a line's value for display: currency with two decimals,
// percent scaled by 100, plain numbers with thousands separators. Lines
// without a value render as "".
func Value(l result.Line) string {
	if l.Value == nil {
		return ""
	}
	v := *l.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	switch l.Format {
	case result.FormatCurrency:
		sign := ""
		if v < 0 {
			sign = "-"
			v = -v
		}
		return sign + "$" + humanize.FormatFloat("#,###.##", v)
	case result.FormatPercent:
		return trimZeros(humanize.FormatFloat("#,###.##", v*100)) + "%"
	}
	return humanize.Commaf(tidy(v))
}

// tidy rounds away float noise such as 0.30000000000000004.
func tidy(v float64) float64 {
	if math.Abs(v) >= 1e9 {
		return v
	}
	return math.Round(v*1e6) / 1e6
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
}

// TextOptions controls terminal rendering.
type TextOptions struct {
	// Width is the column at which annotations end. Zero means 80.
	Width int
	// Explain appends AI explanations after AI-derived values.
	Explain bool
}

// Text writes each line of text followed by its right-aligned value.
// Colors are used only when w is a terminal.
func Text(w io.Writer, text string, set result.Set, opts TextOptions) error {
	width := opts.Width
	if width <= 0 {
		width = 80
	}
	r := lipgloss.NewRenderer(w)
	valueStyle := r.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true)
	aiStyle := r.NewStyle().Foreground(lipgloss.Color("#bb9af7"))
	mutedStyle := r.NewStyle().Foreground(lipgloss.Color("#565f89"))
	headerStyle := r.NewStyle().Bold(true).Underline(true)

	for i, line := range document.SplitLines(text) {
		l, ok := set[i]
		if !ok {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			continue
		}

		var ann string
		switch {
		case l.Kind == result.KindHeader:
			line = headerStyle.Render(line)
		case l.Kind == result.KindNote:
			if l.Explanation != "" {
				ann = mutedStyle.Render("// " + l.Explanation)
			}
		case l.Source == result.SourceAI:
			ann = aiStyle.Render(Value(l))
			if opts.Explain && l.Explanation != "" {
				ann += mutedStyle.Render("  " + l.Explanation)
			}
		default:
			ann = valueStyle.Render(Value(l))
		}
		if ann == "" {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			continue
		}
		pad := width - lipgloss.Width(line) - lipgloss.Width(ann)
		if pad < 2 {
			pad = 2
		}
		if _, err := fmt.Fprintf(w, "%s%s%s\n", line, strings.Repeat(" ", pad), ann); err != nil {
			return err
		}
	}
	return nil
}

// JSON writes doc as indented JSON.
func JSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// YAML writes doc as YAML.
func YAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// Write renders in the given format.
func Write(w io.Writer, f Format, doc Document, opts TextOptions) error {
	switch f {
	case FormatJSON:
		return JSON(w, doc)
	case FormatYAML:
		return YAML(w, doc)
	}
	var text strings.Builder
	set := result.Set{}
	for i, e := range doc.Lines {
		if i > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(e.Text)
		if e.Result != nil {
			set[e.Index] = *e.Result
		}
	}
	return Text(w, text.String(), set, opts)
}
