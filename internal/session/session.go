// Package session keeps one live document: every edit schedules a
// debounced local evaluation and a separately debounced AI round trip, and
// AI answers for text that is no longer live are discarded.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nickandperla.net/tally/internal/assist"
	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/reconcile"
	"nickandperla.net/tally/internal/result"
	"nickandperla.net/tally/internal/rewrite"
	"nickandperla.net/tally/internal/store"
)

// Rewriter is the AI collaborator as seen by a session.
type Rewriter interface {
	Rewrite(ctx context.Context, req rewrite.Request) (map[int]rewrite.Rewrite, error)
	Status() (assist.Status, error)
}

// Origin says which path produced an Update.
type Origin string

const (
	OriginLoad   Origin = "load"
	OriginLocal  Origin = "local"
	OriginAI     Origin = "ai"
	OriginStatus Origin = "status"
)

// Update is the display model published after each evaluation and when
// an AI round trip starts (OriginStatus, Status connecting).
type Update struct {
	DocID   string
	Text    string
	Results result.Set
	Status  assist.Status
	Origin  Origin
}

// Session is safe for concurrent use. Updates may be published from timer
// goroutines; the OnUpdate callback is never invoked concurrently with itself.
type Session struct {
	id         string
	rewriter   Rewriter
	store      store.Store
	localDelay time.Duration
	aiDelay    time.Duration
	reconcile  []reconcile.Option
	logger     *slog.Logger
	onUpdate   func(Update)

	ctx    context.Context
	cancel context.CancelFunc
	emitMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	gen        uint64
	text       string
	rewrites   map[int]rewrite.Rewrite
	anchors    map[int]string
	results    result.Set
	localTimer *time.Timer
	aiTimer    *time.Timer
	cancelAI   context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithRewriter enables the AI path.
func WithRewriter(r Rewriter) Option {
	return func(s *Session) { s.rewriter = r }
}

// WithStore loads the document and its accepted rewrites on open and
// saves them as they change.
func WithStore(st store.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithDebounce sets the local and AI debounce delays.
func WithDebounce(local, ai time.Duration) Option {
	return func(s *Session) {
		s.localDelay = local
		s.aiDelay = ai
	}
}

// WithReconcileOptions passes options to every reconciliation.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(s *Session) { s.reconcile = append(s.reconcile, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnUpdate registers fn to receive every published Update.
func OnUpdate(fn func(Update)) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// New opens a session for document id. With a store, the saved text and
// rewrites seed the session and an initial Update is published.
func New(ctx context.Context, id string, opts ...Option) (*Session, error) {
	s := &Session{
		id:         id,
		localDelay: 100 * time.Millisecond,
		aiDelay:    800 * time.Millisecond,
		logger:     slog.Default(),
		results:    result.Set{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("doc", id)
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.store != nil {
		doc, err := s.store.GetDocument(ctx, id)
		if err != nil {
			s.cancel()
			return nil, err
		}
		rw, err := s.store.GetRewrites(ctx, id)
		if err != nil {
			s.cancel()
			return nil, err
		}
		if doc != nil {
			s.text = doc.Text
			local := document.Evaluate(s.text)
			if rw != nil && rewrite.BuildRequest(id, s.text, local).Meta.LinesHash == rw.LinesHash {
				s.rewrites = rw.Lines
				s.anchors = anchor(s.text, rw.Lines)
			}
			s.results = reconcile.Reconcile(s.text, local, s.rewrites, s.reconcile...)
			s.emit(s.snapshot(OriginLoad))
		}
	}
	return s, nil
}

// ID returns the document id.
func (s *Session) ID() string { return s.id }

// Update replaces the live text and (re)schedules both debounce timers.
func (s *Session) Update(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.text = text
	s.gen++
	gen := s.gen

	if s.localTimer != nil {
		s.localTimer.Stop()
	}
	s.localTimer = time.AfterFunc(s.localDelay, func() { s.runLocal(gen) })

	if s.rewriter != nil {
		if s.aiTimer != nil {
			s.aiTimer.Stop()
		}
		s.aiTimer = time.AfterFunc(s.aiDelay, func() { s.runAI(gen) })
	}
}

// Snapshot returns the current display model.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(OriginLocal)
}

// snapshot must be called with s.mu held.
func (s *Session) snapshot(origin Origin) Update {
	return Update{
		DocID:   s.id,
		Text:    s.text,
		Results: s.results.Clone(),
		Status:  s.status(),
		Origin:  origin,
	}
}

func (s *Session) status() assist.Status {
	if s.rewriter == nil {
		return assist.StatusUnknown
	}
	st, _ := s.rewriter.Status()
	return st
}

func (s *Session) runLocal(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	text := s.text
	rewrites := retained(text, s.rewrites, s.anchors)
	s.mu.Unlock()

	results := reconcile.Reconcile(text, document.Evaluate(text), rewrites, s.reconcile...)

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.results = results
	u := s.snapshot(OriginLocal)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.PutDocument(s.ctx, store.Document{ID: s.id, Text: text}); err != nil {
			s.logger.Error("save document", "error", err)
		}
	}
	s.emit(u)
}

func (s *Session) runAI(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if s.cancelAI != nil {
		s.cancelAI()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelAI = cancel
	text := s.text
	connecting := s.snapshot(OriginStatus)
	s.mu.Unlock()
	defer cancel()

	connecting.Status = assist.StatusConnecting
	s.emit(connecting)

	local := document.Evaluate(text)
	req := rewrite.BuildRequest(s.id, text, local)
	rewrites, err := s.rewriter.Rewrite(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("ai round trip failed", "error", err)
			s.mu.Lock()
			u := s.snapshot(OriginAI)
			s.mu.Unlock()
			s.emit(u)
		}
		return
	}
	s.Apply(req, rewrites)
}

// Apply installs rewrites answered for req if req still matches the live
// document. It reports whether the rewrites were applied; a stale answer
// leaves the displayed results untouched.
func (s *Session) Apply(req rewrite.Request, rewrites map[int]rewrite.Rewrite) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	text := s.text
	live := document.Evaluate(text)
	if rewrite.BuildRequest(s.id, text, live).Meta.LinesHash != req.Meta.LinesHash {
		s.mu.Unlock()
		s.logger.Warn("discarding stale ai response", "hash", req.Meta.LinesHash)
		return false
	}
	s.rewrites = rewrites
	s.anchors = anchor(text, rewrites)
	s.results = reconcile.Reconcile(text, live, rewrites, s.reconcile...)
	u := s.snapshot(OriginAI)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.PutRewrites(s.ctx, s.id, store.Rewrites{LinesHash: req.Meta.LinesHash, Lines: rewrites}); err != nil {
			s.logger.Error("save rewrites", "error", err)
		}
	}
	s.emit(u)
	return true
}

// anchor records the text of each line a rewrite was accepted for.
func anchor(text string, rewrites map[int]rewrite.Rewrite) map[int]string {
	lines := document.SplitLines(text)
	anchors := make(map[int]string, len(rewrites))
	for i := range rewrites {
		if i >= 0 && i < len(lines) {
			anchors[i] = lines[i]
		}
	}
	return anchors
}

// retained returns the rewrites whose line still reads as it did when the
// rewrite was accepted. A rewrite for an edited or shifted line is dropped
// so the line stays unresolved until the next AI answer.
func retained(text string, rewrites map[int]rewrite.Rewrite, anchors map[int]string) map[int]rewrite.Rewrite {
	if len(rewrites) == 0 {
		return nil
	}
	lines := document.SplitLines(text)
	kept := make(map[int]rewrite.Rewrite, len(rewrites))
	for i, rw := range rewrites {
		want, ok := anchors[i]
		if ok && i < len(lines) && lines[i] == want {
			kept[i] = rw
		}
	}
	return kept
}

func (s *Session) emit(u Update) {
	if s.onUpdate == nil {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.onUpdate(u)
}

// Close stops pending timers and abandons any in-flight AI call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.localTimer != nil {
		s.localTimer.Stop()
	}
	if s.aiTimer != nil {
		s.aiTimer.Stop()
	}
	s.cancel()
	return nil
}
