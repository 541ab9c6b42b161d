package rewrite

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nickandperla.net/tally/internal/document"
)

const text = "Rent = 1200\n\nTax: 5%\nhire two engineers"

func request(t *testing.T) Request {
	t.Helper()
	return BuildRequest("doc-1", text, document.Evaluate(text))
}

func TestBuildRequest(t *testing.T) {
	req := request(t)

	assert.Equal(t, "doc-1", req.Meta.DocID)
	assert.Len(t, req.Meta.LinesHash, FingerprintLen)
	assert.Equal(t, map[string]string{"0": "Rent = 1200", "2": "Tax: 5%", "3": "hire two engineers"}, req.Lines)
	assert.Equal(t, Variable{Line: 0, Value: 1200}, req.Variables["Rent"])
	assert.InDelta(t, 0.05, req.Variables["Tax"].Value, 1e-12)
	assert.Len(t, req.Variables, 2)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lines_hash"`)
}

func TestFingerprintStable(t *testing.T) {
	a := request(t)
	b := request(t)
	assert.Equal(t, a.Meta.LinesHash, b.Meta.LinesHash)

	other := BuildRequest("doc-1", text+"\nmore", document.Evaluate(text+"\nmore"))
	assert.NotEqual(t, a.Meta.LinesHash, other.Meta.LinesHash)

	// The doc id is not part of the fingerprint.
	renamed := BuildRequest("doc-2", text, document.Evaluate(text))
	assert.Equal(t, a.Meta.LinesHash, renamed.Meta.LinesHash)
}

func respond(req Request, docID, hash, results string) []byte {
	return []byte(fmt.Sprintf(`{"meta":{"doc_id":%q,"lines_hash":%q},"results":%s}`, docID, hash, results))
}

func TestParseResponse(t *testing.T) {
	req := request(t)
	raw := respond(req, "doc-1", req.Meta.LinesHash,
		`{"3":{"kind":"rewrite","rhs":"2 * 150000","explanation":"Engineers","confidence":0.8},"x":{"kind":"note"}}`)

	got, err := ParseResponse(raw, req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Rewrite{Kind: KindRewrite, RHS: "2 * 150000", Explanation: "Engineers", Confidence: 0.8}, got[3])
}

func TestParseResponseFenced(t *testing.T) {
	req := request(t)
	raw := append([]byte("Here you go:\n```json\n"), respond(req, "doc-1", req.Meta.LinesHash, `{}`)...)
	raw = append(raw, []byte("\n```")...)

	got, err := ParseResponse(raw, req)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseResponseRejects(t *testing.T) {
	req := request(t)
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"not json", []byte("sorry, I can't help"), ErrMalformed},
		{"broken json", []byte(`{"meta": {`), ErrMalformed},
		{"missing meta", []byte(`{"results":{}}`), ErrMissingMeta},
		{"doc mismatch", respond(req, "doc-2", req.Meta.LinesHash, `{}`), ErrDocMismatch},
		{"stale", respond(req, "doc-1", "0000000000000000", `{}`), ErrStale},
		{"results array", respond(req, "doc-1", req.Meta.LinesHash, `[]`), ErrMissingResults},
		{"results null", respond(req, "doc-1", req.Meta.LinesHash, `null`), ErrMissingResults},
		{"results absent", []byte(fmt.Sprintf(`{"meta":{"doc_id":"doc-1","lines_hash":%q}}`, req.Meta.LinesHash)), ErrMissingResults},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolvedLegacyFormula(t *testing.T) {
	rw := Rewrite{Formula: "Salaries = 2 * 150000"}.Resolved()
	assert.Equal(t, KindRewrite, rw.Kind)
	assert.Equal(t, "2 * 150000", rw.RHS)

	rw = Rewrite{Kind: KindNote, Explanation: "context"}.Resolved()
	assert.Equal(t, KindNote, rw.Kind)

	assert.Equal(t, Kind(""), Rewrite{}.Resolved().Kind)
}
