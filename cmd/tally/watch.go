package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"nickandperla.net/tally/internal/render"
	"nickandperla.net/tally/internal/session"
)

func watchCmd(f *rootFlags) *cobra.Command {
	var (
		width   int
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-evaluate a document every time it is saved",
		Long: `Watch a document and print its results after every save.

Local results appear right away; AI-filled lines follow once the model
answers for the text that is still current.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			engine, _, err := f.openEngine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()

			out := cmd.OutOrStdout()
			redraw := isTerminal(out)
			if width == 0 {
				width = termWidth(out)
			}
			opts := render.TextOptions{Width: width, Explain: explain}

			sess, err := engine.NewSession(cmd.Context(), docIDForPath(path), session.OnUpdate(func(u session.Update) {
				if redraw {
					fmt.Fprint(out, "\x1b[H\x1b[2J")
				}
				if err := render.Text(out, u.Text, u.Results, opts); err != nil {
					slog.Error("render", "error", err)
				}
				fmt.Fprintf(out, "\n[%s] ai: %s\n", u.Origin, u.Status)
			}))
			if err != nil {
				return err
			}
			defer sess.Close()

			return watchFile(cmd.Context(), path, sess.Update)
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "text output width (default terminal width or 80)")
	cmd.Flags().BoolVar(&explain, "explain", false, "show AI explanations")
	return cmd
}

// watchFile passes the contents of path to update once at start and again
// after every change until ctx is done. The parent directory is watched so
// editors that save by replacing the file are followed.
func watchFile(ctx context.Context, path string, update func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	load := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("read document", "path", path, "error", err)
			return
		}
		update(documentText(data))
	}
	load()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				load()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch", "error", err)
		}
	}
}
