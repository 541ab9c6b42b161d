package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	hashTagRe    = regexp.MustCompile(`(^|\s)#([A-Za-z][\w-]*)`)
	tagKeywordRe = regexp.MustCompile(`(?i)(^|\s)tag:\s*([A-Za-z][\w-]*)`)
)

// ExtractTag removes #tag and "tag: name" annotations from line and returns
// the first tag found, lowercased. A line carries at most one tag.
func ExtractTag(line string) (rest, tag string) {
	first := -1
	for _, re := range []*regexp.Regexp{hashTagRe, tagKeywordRe} {
		if m := re.FindStringSubmatchIndex(line); m != nil && (first < 0 || m[4] < first) {
			first = m[4]
			tag = strings.ToLower(line[m[4]:m[5]])
		}
	}
	rest = hashTagRe.ReplaceAllString(line, "$1")
	rest = tagKeywordRe.ReplaceAllString(rest, "$1")
	return strings.TrimSpace(rest), tag
}

// Sanitize turns a label into an identifier: lowercase letters, digits
// and underscores, never starting with a digit. It returns "" when the
// label holds no letters or digits.
func Sanitize(label string) string {
	var sb strings.Builder
	pending := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pending = false
			sb.WriteRune(r)
			continue
		}
		pending = true
	}
	out := sb.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// FormatValue renders v as a parenthesized literal safe to splice into
// expression text.
func FormatValue(v float64) string {
	return "(" + strconv.FormatFloat(v, 'f', -1, 64) + ")"
}

// SubstituteNames replaces every whole-word, case-insensitive occurrence of
// each name in values with its parenthesized value. Longer names are
// replaced first so "Total Cost" wins over "Total".
func SubstituteNames(s string, values map[string]float64) string {
	for _, name := range LongestFirst(values) {
		s = ReplaceWord(s, name, FormatValue(values[name]))
	}
	return s
}

// LongestFirst returns the keys of m ordered by descending length,
// ties broken alphabetically.
func LongestFirst[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// ReplaceWord replaces whole-word, case-insensitive occurrences of word in s.
// Boundaries are only enforced on edges where word itself starts or ends
// with a word character.
func ReplaceWord(s, word, repl string) string {
	if word == "" {
		return s
	}
	hay, needle := strings.ToLower(s), strings.ToLower(word)
	if len(hay) != len(s) {
		// Case folding changed byte offsets; fall back to exact matching.
		hay, needle = s, word
	}
	first, _ := utf8.DecodeRuneInString(word)
	last, _ := utf8.DecodeLastRuneInString(word)
	checkBefore, checkAfter := isWordRune(first), isWordRune(last)

	var sb strings.Builder
	i := 0
	for {
		j := strings.Index(hay[i:], needle)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(needle)
		if (!checkBefore || boundaryBefore(s, start)) && (!checkAfter || boundaryAfter(s, end)) {
			sb.WriteString(s[i:start])
			sb.WriteString(repl)
			i = end
			continue
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		sb.WriteString(s[i : start+size])
		i = start + size
	}
	sb.WriteString(s[i:])
	return sb.String()
}

// ContainsWord reports whether word occurs in s as a whole word, ignoring case.
func ContainsWord(s, word string) bool {
	return ReplaceWord(s, word, "\x00") != s
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}
