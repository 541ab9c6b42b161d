// Package rewrite defines the JSON contract with the AI rewrite service:
// the request built from a document, its fingerprint, and validation of
// the response.
package rewrite

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nickandperla.net/tally/internal/document"
)

var (
	ErrMalformed      = errors.New("malformed response")
	ErrMissingMeta    = errors.New("response has no meta")
	ErrDocMismatch    = errors.New("response is for another document")
	ErrStale          = errors.New("response fingerprint does not match")
	ErrMissingResults = errors.New("response has no results object")
)

// FingerprintLen is the number of hex characters kept from the SHA-256 digest.
const FingerprintLen = 16

// Kind is the rewrite classification returned by the model.
type Kind string

const (
	KindRewrite  Kind = "rewrite"
	KindHeader   Kind = "header"
	KindNote     Kind = "note"
	KindSkip     Kind = "skip"
	KindQuestion Kind = "question"
	KindIgnore   Kind = "ignore"
)

// Meta binds a request to its response.
type Meta struct {
	DocID     string `json:"doc_id"`
	LinesHash string `json:"lines_hash"`
}

// Variable is a name bound by the local evaluator.
type Variable struct {
	Line  int     `json:"line"`
	Value float64 `json:"value"`
}

// Request is sent to the rewrite service.
type Request struct {
	Meta      Meta                `json:"meta"`
	Lines     map[string]string   `json:"lines"`
	Variables map[string]Variable `json:"variables"`
}

// Rewrite is the model's answer for one line.
type Rewrite struct {
	Kind        Kind    `json:"kind"`
	RHS         string  `json:"rhs"`
	Explanation string  `json:"explanation,omitempty"`
	Confidence  float64 `json:"confidence"`
	Formula     string  `json:"formula,omitempty"`
}

// Resolved applies the legacy fallback: an untyped rewrite carrying
// "Name = expr" in Formula, or a bare RHS, is a KindRewrite.
func (r Rewrite) Resolved() Rewrite {
	if r.Kind != "" {
		return r
	}
	if r.RHS == "" && r.Formula != "" {
		if idx := strings.Index(r.Formula, "="); idx >= 0 {
			r.RHS = strings.TrimSpace(r.Formula[idx+1:])
		} else {
			r.RHS = strings.TrimSpace(r.Formula)
		}
	}
	if r.RHS != "" {
		r.Kind = KindRewrite
	}
	return r
}

// BuildRequest packages text and its local evaluation for the rewrite
// service. Only non-blank lines and locally bound variables are sent.
func BuildRequest(docID, text string, local *document.Result) Request {
	req := Request{
		Lines:     make(map[string]string),
		Variables: make(map[string]Variable),
	}
	for i, line := range document.SplitLines(text) {
		if strings.TrimSpace(line) != "" {
			req.Lines[strconv.Itoa(i)] = line
		}
	}
	if local != nil {
		for name, b := range local.Variables() {
			req.Variables[name] = Variable{Line: b.Line, Value: b.Value}
		}
	}
	req.Meta = Meta{DocID: docID, LinesHash: Fingerprint(req.Lines, req.Variables)}
	return req
}

// Fingerprint hashes the canonical JSON form of lines and variables.
// encoding/json sorts map keys, so equal content always hashes equally.
func Fingerprint(lines map[string]string, vars map[string]Variable) string {
	if lines == nil {
		lines = map[string]string{}
	}
	if vars == nil {
		vars = map[string]Variable{}
	}
	data, err := json.Marshal(struct {
		Lines     map[string]string   `json:"lines"`
		Variables map[string]Variable `json:"variables"`
	}{lines, vars})
	if err != nil {
		// Only non-finite floats fail to marshal; the local evaluator never binds them.
		data = []byte(fmt.Sprint(lines, vars))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

type response struct {
	Meta    *Meta           `json:"meta"`
	Results json.RawMessage `json:"results"`
}

// ParseResponse validates raw model output against req and returns the
// per-line rewrites. Any schema violation rejects the whole response.
// Prose or markdown fences around the JSON object are tolerated.
func ParseResponse(raw []byte, req Request) (map[int]Rewrite, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, err
	}
	var resp response
	if err := json.Unmarshal(obj, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Meta == nil {
		return nil, ErrMissingMeta
	}
	if resp.Meta.DocID != req.Meta.DocID {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrDocMismatch, resp.Meta.DocID, req.Meta.DocID)
	}
	if resp.Meta.LinesHash != req.Meta.LinesHash {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrStale, resp.Meta.LinesHash, req.Meta.LinesHash)
	}
	results := bytes.TrimSpace(resp.Results)
	if len(results) == 0 || results[0] != '{' {
		return nil, ErrMissingResults
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(results, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingResults, err)
	}
	out := make(map[int]Rewrite, len(entries))
	for key, entry := range entries {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 0 {
			continue
		}
		var rw Rewrite
		if err := json.Unmarshal(entry, &rw); err != nil {
			continue
		}
		out[idx] = rw.Resolved()
	}
	return out, nil
}

// extractObject returns the outermost JSON object in raw.
func extractObject(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformed)
	}
	return raw[start : end+1], nil
}
