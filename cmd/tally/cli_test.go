package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nickandperla.net/tally/internal/render"
)

// writeConfig creates a config that keeps tests off the network and disk.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tally.toml")
	content := "[provider]\nname = \"none\"\n\n[store]\ndriver = \"memory\"\n\n[log]\nlevel = \"error\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--config", writeConfig(t)))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEvalFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.txt")
	text := "Rent = $1200\nGroceries: 150 #food\nDining: 80 #food\nsum: food\n"
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	out, err := run(t, "", "eval", path, "--format", "json")
	if err != nil {
		t.Fatalf("eval failed: %v\n%s", err, out)
	}

	var doc render.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if doc.DocID != docIDForPath(path) {
		t.Errorf("doc id = %q, want %q", doc.DocID, docIDForPath(path))
	}
	if len(doc.Lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(doc.Lines))
	}
	sum := doc.Lines[3]
	if sum.Result == nil || *sum.Result.Value != 230 {
		t.Errorf("sum line = %+v, want 230", sum.Result)
	}
	if doc.Lines[0].Display != "$1,200.00" {
		t.Errorf("display = %q, want $1,200.00", doc.Lines[0].Display)
	}
}

func TestEvalExpressionText(t *testing.T) {
	out, err := run(t, "", "eval", "-e", "Rent = 1200\nRent * 12", "--width", "30")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasSuffix(lines[1], "14,400") {
		t.Errorf("line 1 = %q, want a 14,400 annotation", lines[1])
	}
	if len(lines[1]) != 30 {
		t.Errorf("line 1 width = %d, want 30", len(lines[1]))
	}
}

func TestEvalStdinYAML(t *testing.T) {
	out, err := run(t, "Tax: 5%\n", "eval", "-o", "yaml")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if !strings.Contains(out, "format: percent") {
		t.Errorf("expected percent format in output:\n%s", out)
	}
}

func TestEvalRejectsBadFormat(t *testing.T) {
	if _, err := run(t, "", "eval", "-e", "1 + 1", "--format", "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestREPLBasic(t *testing.T) {
	input := "Rent = 1200\nRent * 12\njust words\n:undo\n:show\n:quit\nnever reached\n"
	out, err := run(t, input, "repl")
	if err != nil {
		t.Fatalf("repl failed: %v", err)
	}
	for _, want := range []string{"= 1,200", "= 14,400"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "just words") {
		t.Errorf(":undo should have removed the last line:\n%s", out)
	}
	if strings.Contains(out, "never reached") {
		t.Errorf("input after :quit was processed:\n%s", out)
	}
}

func TestWatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("Rent = 1\n"), 0644); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan string, 16)
	done := make(chan error, 1)
	go func() { done <- watchFile(ctx, path, func(text string) { updates <- text }) }()

	wait := func(want string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case got := <-updates:
				if got == want {
					return
				}
			case <-deadline:
				t.Fatalf("no update with %q", want)
			}
		}
	}
	wait("Rent = 1")

	if err := os.WriteFile(path, []byte("Rent = 2\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite document: %v", err)
	}
	wait("Rent = 2")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watchFile returned %v", err)
	}
}

func TestDocIDForPathStable(t *testing.T) {
	a := docIDForPath("notes/budget.txt")
	b := docIDForPath("./notes/../notes/budget.txt")
	if a != b {
		t.Errorf("ids differ for the same file: %s vs %s", a, b)
	}
	if a == docIDForPath("notes/other.txt") {
		t.Error("different files share an id")
	}
}
