// Command tally is the tally document calculator CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nickandperla.net/tally/internal/config"
	"nickandperla.net/tally/pkg/tally"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every command. Set flags
// override the config file and environment.
type rootFlags struct {
	configPath   string
	dbPath       string
	storeDriver  string
	providerName string
	model        string
	providerURL  string
	logLevel     string
	logFormat    string
	noAI         bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "tally",
		Short: "Plain-text calculator documents with AI-assisted lines",
		Long: `tally evaluates plain-text documents line by line: assignments,
labeled values, tagged sums and bare arithmetic are computed locally, and
lines written in prose can be filled in by a language model whose answers
are validated before they are shown.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (default ~/.config/tally/config.toml or ./tally.toml)")
	pf.StringVar(&f.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&f.storeDriver, "store", "", "store driver: sqlite, postgres or memory")
	pf.StringVar(&f.providerName, "provider", "", "LLM provider: ollama, openrouter, anthropic, gemini or none")
	pf.StringVar(&f.model, "model", "", "LLM model name")
	pf.StringVar(&f.providerURL, "provider-url", "", "LLM provider base URL")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&f.noAI, "no-ai", false, "evaluate locally only")

	root.AddCommand(evalCmd(f))
	root.AddCommand(watchCmd(f))
	root.AddCommand(replCmd(f))
	root.AddCommand(serveCmd(f))
	return root
}

// load reads the configuration and applies any flags that were set.
func (f *rootFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Store.Path = f.dbPath
		if !flags.Changed("store") {
			cfg.Store.Driver = "sqlite"
		}
	}
	if flags.Changed("store") {
		cfg.Store.Driver = f.storeDriver
	}
	if flags.Changed("provider") {
		cfg.Provider.Name = f.providerName
	}
	if flags.Changed("model") {
		cfg.Provider.Model = f.model
	}
	if flags.Changed("provider-url") {
		cfg.Provider.URL = f.providerURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if f.noAI {
		cfg.Provider.Name = "none"
	}
	return cfg, cfg.Validate()
}

// openEngine loads configuration, installs the default logger and builds
// the engine.
func (f *rootFlags) openEngine(cmd *cobra.Command) (*tally.Engine, *config.Config, error) {
	cfg, err := f.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	engine, err := tally.New(append(tally.FromConfig(cfg), tally.WithLogger(logger))...)
	if err != nil {
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	return engine, cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// docIDForPath derives a stable document id from a file's absolute path,
// so saved rewrites follow the file between runs.
func docIDForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// termWidth returns the terminal width of w, or 80.
func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}
