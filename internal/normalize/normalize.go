// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package normalize turns free-form calculator lines into evaluable
// arithmetic text.
package normalize

import (
	"regexp"
	"strings"
)

var (
	glyphReplacer = strings.NewReplacer("×", "*", "÷", "/", "−", "-", "–", "-")

	currencyAmountRe = regexp.MustCompile(`[$€£¥]\s*(\d{1,3}(?:,\d{3})+|\d+)`)
	currencySymbolRe = regexp.MustCompile(`[$€£¥]`)
	percentRe        = regexp.MustCompile(`(\d*\.?\d+)%(\s+of\b)?`)
	byNumberRe       = regexp.MustCompile(`(\d|\))\s*[xX]\s*(\d|\()`)
	dividedByRe      = regexp.MustCompile(`(?i)\bdivided\s+by\b`)
	wordOpRe         = regexp.MustCompile(`(?i)\b(plus|minus|times)\b`)
	edgeEqualsRe     = regexp.MustCompile(`^\s*=|=\s*$`)

	// Whole-word only; "min" is a function and stays.
	glueRe = regexp.MustCompile(`(?i)\b(` + strings.Join([]string{
		"a", "an", "the", "of", "for", "per", "at", "in", "on", "to", "is", "are", "was", "be",
		"by", "from", "with", "about", "approx", "approximately", "around", "each", "total",
		"person", "people", "persons", "hours?", "hrs?", "minutes", "mins", "days?", "weeks?",
		"months?", "years?", "yrs?", "usd", "eur", "dollars?", "bucks", "items?", "units?", "pcs",
	}, "|") + `)\b`)
)

var wordOps = map[string]string{"plus": "+", "minus": "-", "times": "*"}

// Normalize converts a raw line into a canonical arithmetic expression.
// It is total: when nothing evaluable remains it returns the trimmed input.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)

	s := StripComment(trimmed)
	s, _ = ExtractTag(s)
	s = glyphReplacer.Replace(s)
	s = stripCurrency(s)
	s = percentRe.ReplaceAllStringFunc(s, convertPercent)
	s = strings.ReplaceAll(s, "^", "**")
	s = wordOperators(s)
	s = glueRe.ReplaceAllString(s, " ")
	s = edgeEqualsRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return trimmed
	}
	return s
}

// StripComment removes a trailing // comment.
func StripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return line
}

// stripCurrency drops currency markers and thousands separators.
func stripCurrency(s string) string {
	s = currencyAmountRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ReplaceAll(currencySymbolRe.ReplaceAllString(m, ""), ",", "")
	})
	s = currencySymbolRe.ReplaceAllString(s, "")
	return stripThousands(s)
}

// stripThousands removes commas that separate digit groups outside of
// parentheses. Inside a call, "max(1,200)" keeps its argument separator.
func stripThousands(s string) string {
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 && isThousandsComma(s, i) {
				continue
			}
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isThousandsComma(s string, i int) bool {
	if i == 0 || !isDigit(s[i-1]) || i+3 >= len(s) {
		return false
	}
	for j := i + 1; j <= i+3; j++ {
		if !isDigit(s[j]) {
			return false
		}
	}
	return i+4 == len(s) || !isDigit(s[i+4])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func convertPercent(m string) string {
	sub := percentRe.FindStringSubmatch(m)
	out := "(" + sub[1] + "/100)"
	if sub[2] != "" {
		out += " *"
	}
	return out
}

func wordOperators(s string) string {
	s = dividedByRe.ReplaceAllString(s, "/")
	s = wordOpRe.ReplaceAllStringFunc(s, func(m string) string {
		return wordOps[strings.ToLower(m)]
	})
	for {
		next := byNumberRe.ReplaceAllString(s, "$1 * $2")
		if next == s {
			return s
		}
		s = next
	}
}
