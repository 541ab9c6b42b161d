// Package classify decides what each document line is before anything is
// evaluated.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"nickandperla.net/tally/internal/eval"
	"nickandperla.net/tally/internal/normalize"
)

// Kind is the classification of a single line.
type Kind int

const (
	Blank Kind = iota
	Comment
	TaggedSum
	Assignment
	LabeledValue
	BareExpression
	Text
)

var kindNames = [...]string{
	Blank:          "blank",
	Comment:        "comment",
	TaggedSum:      "tagged-sum",
	Assignment:     "assignment",
	LabeledValue:   "labeled-value",
	BareExpression: "bare-expression",
	Text:           "text",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Line is a classified line.
type Line struct {
	Kind Kind
	Raw  string // trimmed input
	Body string // comment and tag annotations removed
	Tag  string // lowercase tag carried by the line, if any
	Name string // assignment left-hand side or label
	RHS  string // text to evaluate
	Sum  string // tag aggregated by a tagged-sum line
}

var (
	taggedSumRe = regexp.MustCompile(`(?i)^sum:\s*([a-z][\w-]*)\s*$`)
	tagNameRe   = regexp.MustCompile(`^\s*[A-Za-z][\w-]*\s*$`)
	funcCallRe  = regexp.MustCompile(`(?i)\b(` + strings.Join(eval.Functions(), "|") + `)\s*\(`)
)

// Classify classifies raw. Checks run in fixed precedence: blank, comment,
// tagged sum, assignment, labeled value, bare expression, text.
func Classify(raw string) Line {
	l := Line{Raw: strings.TrimSpace(raw)}
	switch {
	case l.Raw == "":
		l.Kind = Blank
		return l
	case strings.HasPrefix(l.Raw, "//"):
		l.Kind = Comment
		return l
	}

	stripped := normalize.StripComment(l.Raw)
	if m := taggedSumRe.FindStringSubmatch(stripped); m != nil {
		l.Kind = TaggedSum
		l.Body = stripped
		l.Sum = strings.ToLower(m[1])
		return l
	}

	l.Body, l.Tag = normalize.ExtractTag(stripped)

	if idx := assignmentIndex(l.Body); idx >= 0 {
		lhs := strings.TrimSpace(l.Body[:idx])
		if ValidName(lhs) {
			l.Kind = Assignment
			l.Name = lhs
			l.RHS = strings.TrimSpace(l.Body[idx+1:])
			return l
		}
	}

	if idx := labelIndex(l.Body); idx >= 0 {
		label := strings.TrimSpace(l.Body[:idx])
		value := strings.TrimSpace(l.Body[idx+1:])
		if ValidName(label) && value != "" {
			l.Kind = LabeledValue
			l.Name = label
			l.RHS = value
			return l
		}
	}

	if LooksLikeMath(l.Body) {
		l.Kind = BareExpression
		l.RHS = l.Body
		return l
	}
	l.Kind = Text
	return l
}

// assignmentIndex returns the byte offset of the first top-level '=' that
// is not escaped and not part of ==, <=, >= or !=.
func assignmentIndex(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth > 0 {
				continue
			}
			if i > 0 && strings.IndexByte(`\=<>!`, s[i-1]) >= 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

// labelIndex returns the offset of the first ':' that does not belong to
// sum: or tag: syntax. The colon is syntax only when a bare tag name
// follows it, so "Sum: 5 + 3" is still a label.
func labelIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		word := strings.ToLower(lastWord(s[:i]))
		if (word == "sum" || word == "tag") && tagNameRe.MatchString(s[i+1:]) {
			continue
		}
		return i
	}
	return -1
}

func lastWord(s string) string {
	end := len(s)
	start := strings.LastIndexFunc(s[:end], func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return s[start+1 : end]
}

// ValidName reports whether s can name a variable: it contains a letter and
// no operator or grouping characters.
func ValidName(s string) bool {
	if s == "" || strings.ContainsAny(s, "+*/^=<>()") || strings.Contains(s, " - ") {
		return false
	}
	return strings.IndexFunc(s, unicode.IsLetter) >= 0 && normalize.Sanitize(s) != ""
}

// LooksLikeMath reports whether s contains a digit, a currency or percent
// sign, an arithmetic operator or a known function call.
func LooksLikeMath(s string) bool {
	if strings.ContainsAny(s, "0123456789$€£¥%+-*/^×÷−") {
		return true
	}
	return funcCallRe.MatchString(s)
}
