// Package assist is the client side of the AI rewrite collaborator: it
// sends a rewrite.Request through a provider, validates the answer and
// tracks connectivity.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"nickandperla.net/tally/internal/prompts"
	"nickandperla.net/tally/internal/provider"
	"nickandperla.net/tally/internal/rewrite"
)

// Status is the connectivity of the AI path.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
)

// ErrNoProvider is returned by a Client built without a provider.
var ErrNoProvider = errors.New("no rewrite provider configured")

// DefaultCacheSize is the number of validated responses kept.
const DefaultCacheSize = 256

// Client calls the rewrite model. It is safe for concurrent use.
type Client struct {
	provider provider.Provider
	system   string
	timeout  time.Duration
	logger   *slog.Logger
	onStatus func(Status)

	cacheSize int
	cache     *lru.Cache[string, map[int]rewrite.Rewrite]
	group     singleflight.Group

	mu      sync.Mutex
	status  Status
	lastErr error
}

// Option configures a Client.
type Option func(*Client)

// WithCacheSize sets the number of cached responses; 0 disables caching.
func WithCacheSize(n int) Option {
	return func(c *Client) { c.cacheSize = n }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSystemPrompt replaces the embedded system prompt.
func WithSystemPrompt(s string) Option {
	return func(c *Client) { c.system = s }
}

// WithStatusHook registers fn to be called on every status change.
func WithStatusHook(fn func(Status)) Option {
	return func(c *Client) { c.onStatus = fn }
}

// New creates a Client for p.
func New(p provider.Provider, opts ...Option) (*Client, error) {
	c := &Client{
		provider:  p,
		system:    prompts.System,
		timeout:   time.Minute,
		logger:    slog.Default(),
		cacheSize: DefaultCacheSize,
		status:    StatusUnknown,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize > 0 {
		cache, err := lru.New[string, map[int]rewrite.Rewrite](c.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("assist: create cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Status returns the current connectivity status and the last transport
// error, if the status is StatusError.
func (c *Client) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastErr
}

func (c *Client) setStatus(s Status, err error) {
	c.mu.Lock()
	changed := c.status != s
	c.status, c.lastErr = s, err
	hook := c.onStatus
	c.mu.Unlock()
	if changed && hook != nil {
		hook(s)
	}
}

// Rewrite asks the model for rewrites of req. The returned map has passed
// schema and fingerprint validation against req; per-line formula checks
// are left to reconciliation. Identical concurrent requests share one
// provider call, and validated answers are cached by fingerprint.
func (c *Client) Rewrite(ctx context.Context, req rewrite.Request) (map[int]rewrite.Rewrite, error) {
	if c.provider == nil {
		return nil, ErrNoProvider
	}
	key := req.Meta.DocID + "/" + req.Meta.LinesHash
	if c.cache != nil {
		if hit, ok := c.cache.Get(key); ok {
			c.logger.Debug("rewrite cache hit", "doc", req.Meta.DocID, "hash", req.Meta.LinesHash)
			c.setStatus(StatusConnected, nil)
			return maps.Clone(hit), nil
		}
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.call(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("rewrite request shared", "doc", req.Meta.DocID)
	}
	return maps.Clone(v.(map[int]rewrite.Rewrite)), nil
}

func (c *Client) call(ctx context.Context, req rewrite.Request) (map[int]rewrite.Rewrite, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("assist: encode request: %w", err)
	}

	prev, prevErr := c.Status()
	c.setStatus(StatusConnecting, nil)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.provider.Prompt(callCtx, c.system, string(payload))
	if err != nil {
		if ctx.Err() != nil {
			// Superseded by the caller; not a connectivity problem.
			c.setStatus(prev, prevErr)
			return nil, ctx.Err()
		}
		c.logger.Error("rewrite request failed", "doc", req.Meta.DocID, "error", err)
		c.setStatus(StatusError, err)
		return nil, fmt.Errorf("assist: %w", err)
	}
	c.setStatus(StatusConnected, nil)

	results, err := rewrite.ParseResponse([]byte(text), req)
	if err != nil {
		c.logger.Warn("rewrite response rejected", "doc", req.Meta.DocID, "error", err)
		return nil, err
	}
	c.logger.Info("rewrite response accepted", "doc", req.Meta.DocID,
		"lines", len(results), "elapsed", time.Since(start))

	if c.cache != nil {
		c.cache.Add(req.Meta.DocID+"/"+req.Meta.LinesHash, results)
	}
	return results, nil
}
