package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nickandperla.net/tally/internal/render"
)

func evalCmd(f *rootFlags) *cobra.Command {
	var (
		expr    string
		format  string
		docID   string
		width   int
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "eval [file]",
		Short: "Evaluate a document once and print the results",
		Long: `Evaluate a document once and print every line with its result.

The document is read from the file argument, from -e, or from stdin when
neither is given (or the file is "-").`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			text, id, err := readDocument(cmd, args, expr)
			if err != nil {
				return err
			}
			if docID != "" {
				id = docID
			}

			engine, _, err := f.openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			lines, aiErr := engine.Evaluate(cmd.Context(), id, text)
			if aiErr != nil {
				slog.Warn("ai rewrites unavailable, showing local results", "error", aiErr)
			}

			out := cmd.OutOrStdout()
			if width == 0 {
				width = termWidth(out)
			}
			doc := render.Build(id, string(engine.Status()), text, lines)
			return render.Write(out, outFormat, doc, render.TextOptions{Width: width, Explain: explain})
		},
	}

	cmd.Flags().StringVarP(&expr, "expr", "e", "", "evaluate this document text")
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text, json or yaml")
	cmd.Flags().StringVar(&docID, "doc", "", "document id (default derived from the file path)")
	cmd.Flags().IntVar(&width, "width", 0, "text output width (default terminal width or 80)")
	cmd.Flags().BoolVar(&explain, "explain", false, "show AI explanations")
	return cmd
}

// readDocument returns the document text and a default id for it.
func readDocument(cmd *cobra.Command, args []string, expr string) (string, string, error) {
	switch {
	case expr != "":
		return expr, uuid.NewString(), nil
	case len(args) == 1 && args[0] != "-":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("read document: %w", err)
		}
		return documentText(data), docIDForPath(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", "", fmt.Errorf("read stdin: %w", err)
	}
	return documentText(data), uuid.NewString(), nil
}

// documentText drops the final newline most editors add.
func documentText(data []byte) string {
	return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r")
}
