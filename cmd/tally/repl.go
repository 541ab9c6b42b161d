package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/render"
	"nickandperla.net/tally/internal/result"
	"nickandperla.net/tally/pkg/tally"
)

func replCmd(f *rootFlags) *cobra.Command {
	var docID string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Build a document one line at a time",
		Long: `Build a document one line at a time. Each entered line is appended to
the document and its result is printed.

Commands:
  :show    print the whole document with results
  :undo    remove the last line
  :clear   start an empty document
  :quit    exit (Ctrl+D also works)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := f.openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			r := &repl{engine: engine, docID: docID}
			if r.docID == "" {
				r.docID = uuid.NewString()
			} else if err := r.resume(cmd.Context()); err != nil {
				return err
			}

			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			fmt.Fprintln(out, "tally REPL (Ctrl+D to exit)")
			if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				return r.runTerminal(cmd.Context(), f, out)
			}
			return r.runBasic(cmd.Context(), in, out)
		},
	}

	cmd.Flags().StringVar(&docID, "doc", "", "resume the saved document with this id")
	return cmd
}

type repl struct {
	engine *tally.Engine
	docID  string
	lines  []string
}

// resume loads the saved text for docID, if any.
func (r *repl) resume(ctx context.Context) error {
	st := r.engine.Store()
	if st == nil {
		return nil
	}
	doc, err := st.GetDocument(ctx, r.docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc != nil && doc.Text != "" {
		r.lines = document.SplitLines(doc.Text)
	}
	return nil
}

func (r *repl) text() string { return strings.Join(r.lines, "\n") }

// handle processes one input line. It returns the text to print and
// whether the session should end.
func (r *repl) handle(ctx context.Context, input string) (string, bool) {
	switch strings.TrimSpace(input) {
	case ":quit", ":q":
		return "", true
	case ":show":
		return r.show(ctx), false
	case ":undo":
		if len(r.lines) > 0 {
			r.lines = r.lines[:len(r.lines)-1]
		}
		return r.show(ctx), false
	case ":clear":
		r.lines = nil
		return "", false
	}

	r.lines = append(r.lines, input)
	lines, err := r.engine.Evaluate(ctx, r.docID, r.text())
	if err != nil {
		slog.Debug("ai rewrites unavailable", "error", err)
	}
	l, ok := lines[len(r.lines)-1]
	if !ok {
		return "", false
	}
	return annotate(l), false
}

func annotate(l result.Line) string {
	v := render.Value(l)
	switch {
	case v == "" && l.Explanation != "":
		return "# " + l.Explanation
	case v == "":
		return ""
	case l.Source == result.SourceAI && l.Explanation != "":
		return "= " + v + "  (" + l.Explanation + ")"
	}
	return "= " + v
}

func (r *repl) show(ctx context.Context) string {
	lines, _ := r.engine.Evaluate(ctx, r.docID, r.text())
	var b strings.Builder
	if err := render.Text(&b, r.text(), lines, render.TextOptions{Explain: true}); err != nil {
		return err.Error()
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// runBasic handles non-TTY input (piped input).
func (r *repl) runBasic(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, ">>> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		msg, quit := r.handle(ctx, strings.TrimRight(scanner.Text(), "\r"))
		if msg != "" {
			fmt.Fprintln(out, msg)
		}
		if quit {
			return nil
		}
	}
}

// runTerminal handles TTY input with line editing and history.
func (r *repl) runTerminal(ctx context.Context, in *os.File, out io.Writer) error {
	fd := int(in.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set raw mode: %v\n", err)
		return r.runBasic(ctx, in, out)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, ">>> ")
	if width, height, err := term.GetSize(fd); err == nil {
		_ = t.SetSize(width, height)
	}

	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		msg, quit := r.handle(ctx, line)
		if msg != "" {
			fmt.Fprintln(t, msg)
		}
		if quit {
			return nil
		}
	}
}
