// Package tally provides the public API for the tally document calculator.
package tally

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nickandperla.net/tally/internal/assist"
	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/provider"
	"nickandperla.net/tally/internal/reconcile"
	"nickandperla.net/tally/internal/result"
	"nickandperla.net/tally/internal/rewrite"
	"nickandperla.net/tally/internal/session"
	"nickandperla.net/tally/internal/store"
)

// Lines is the final display model: 0-based line index to result.
type Lines = result.Set

// Line is the result for one document line.
type Line = result.Line

// Status is the connectivity of the AI path.
type Status = assist.Status

// Store interface for custom stores.
type Store = store.Store

// Provider interface for custom providers.
type Provider = provider.Provider

// Engine evaluates documents locally and, when a provider is configured,
// fills the gaps with validated AI rewrites.
type Engine struct {
	store         store.Store
	provider      provider.Provider
	client        *assist.Client
	logger        *slog.Logger
	timeout       time.Duration
	cacheSize     int
	minConfidence float64
	maxIterations int
	localDebounce time.Duration
	aiDebounce    time.Duration
	systemPrompt  string
	errs          []error
}

// New creates an engine with the given options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:        slog.Default(),
		timeout:       time.Minute,
		cacheSize:     assist.DefaultCacheSize,
		maxIterations: reconcile.DefaultMaxIterations,
		localDebounce: 100 * time.Millisecond,
		aiDebounce:    800 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := errors.Join(e.errs...); err != nil {
		if e.store != nil {
			e.store.Close()
		}
		return nil, err
	}

	if e.provider != nil {
		aopts := []assist.Option{
			assist.WithCacheSize(e.cacheSize),
			assist.WithTimeout(e.timeout),
			assist.WithLogger(e.logger),
			assist.WithStatusHook(func(s assist.Status) {
				e.logger.Debug("ai status changed", "status", s)
			}),
		}
		if e.systemPrompt != "" {
			aopts = append(aopts, assist.WithSystemPrompt(e.systemPrompt))
		}
		client, err := assist.New(e.provider, aopts...)
		if err != nil {
			return nil, err
		}
		e.client = client
	}
	return e, nil
}

func (e *Engine) reconcileOptions() []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithMaxIterations(e.maxIterations),
		reconcile.WithMinConfidence(e.minConfidence),
		reconcile.WithLogger(e.logger),
	}
}

// EvaluateLocal evaluates text without the AI path.
func (e *Engine) EvaluateLocal(text string) Lines {
	return document.Evaluate(text).Lines
}

// Evaluate evaluates text and asks the AI path to fill the lines the local
// evaluator cannot. Local results are always returned; a non-nil error
// only reports that the AI round trip failed. With a store, the text and
// accepted rewrites are saved under docID, and saved rewrites for the same
// text are used when the AI path is unavailable.
func (e *Engine) Evaluate(ctx context.Context, docID, text string) (Lines, error) {
	local := document.Evaluate(text)
	req := rewrite.BuildRequest(docID, text, local)

	if e.store != nil {
		if err := e.store.PutDocument(ctx, store.Document{ID: docID, Text: text}); err != nil {
			e.logger.Error("save document", "doc", docID, "error", err)
		}
	}

	var aiErr error
	var rewrites map[int]rewrite.Rewrite
	if e.client != nil {
		rewrites, aiErr = e.client.Rewrite(ctx, req)
		if aiErr == nil && e.store != nil {
			if err := e.store.PutRewrites(ctx, docID, store.Rewrites{LinesHash: req.Meta.LinesHash, Lines: rewrites}); err != nil {
				e.logger.Error("save rewrites", "doc", docID, "error", err)
			}
		}
	}
	if rewrites == nil && e.store != nil {
		saved, err := e.store.GetRewrites(ctx, docID)
		if err != nil {
			e.logger.Error("load rewrites", "doc", docID, "error", err)
		} else if saved != nil && saved.LinesHash == req.Meta.LinesHash {
			rewrites = saved.Lines
		}
	}
	return reconcile.Reconcile(text, local, rewrites, e.reconcileOptions()...), aiErr
}

// NewSession opens a live session for docID. Options given here are
// applied after the engine's own.
func (e *Engine) NewSession(ctx context.Context, docID string, opts ...session.Option) (*session.Session, error) {
	base := []session.Option{
		session.WithDebounce(e.localDebounce, e.aiDebounce),
		session.WithReconcileOptions(e.reconcileOptions()...),
		session.WithLogger(e.logger),
	}
	if e.store != nil {
		base = append(base, session.WithStore(e.store))
	}
	if e.client != nil {
		base = append(base, session.WithRewriter(e.client))
	}
	return session.New(ctx, docID, append(base, opts...)...)
}

// Status returns the AI path connectivity. Without a provider it is
// always unknown.
func (e *Engine) Status() Status {
	if e.client == nil {
		return assist.StatusUnknown
	}
	st, _ := e.client.Status()
	return st
}

// Store returns the configured store, or nil.
func (e *Engine) Store() Store { return e.store }

// Close releases resources.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}
