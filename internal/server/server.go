// Package server streams live document results to rendering clients over
// a websocket.
//
// A client connects to /ws?doc=<id>, sends {"type":"update","text":...}
// whenever the document changes, and receives {"type":"results",...}
// messages as local and AI evaluations complete, plus {"type":"status",...}
// when an AI round trip starts.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nickandperla.net/tally/internal/render"
	"nickandperla.net/tally/internal/session"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Opener opens a live session for a document.
type Opener func(ctx context.Context, docID string, opts ...session.Option) (*session.Session, error)

type inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outbound struct {
	Type    string         `json:"type"`
	DocID   string         `json:"docId,omitempty"`
	Origin  string         `json:"origin,omitempty"`
	Status  string         `json:"status,omitempty"`
	Text    string         `json:"text,omitempty"`
	Lines   []render.Entry `json:"lines,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Server serves the websocket endpoint and a health check.
type Server struct {
	open   Opener
	logger *slog.Logger
	mux    *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server that opens sessions with open.
func New(open Opener, opts ...Option) *Server {
	s := &Server{open: open, logger: slog.Default(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	})
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimSpace(r.URL.Query().Get("doc"))
	if docID == "" {
		docID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := s.logger.With("doc", docID)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Warn("set read deadline", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeCh := make(chan outbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	sess, err := s.open(ctx, docID, session.OnUpdate(func(u session.Update) {
		push(writeCh, resultsMessage(u))
	}))
	if err != nil {
		logger.Error("open session", "error", err)
		cancel()
		<-writerDone
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(outbound{Type: "error", Code: "internal", Message: err.Error()})
		return
	}
	defer sess.Close()
	logger.Info("client connected")

	snap := sess.Snapshot()
	push(writeCh, outbound{Type: "opened", DocID: docID, Status: string(snap.Status), Text: snap.Text,
		Lines: render.Build(docID, "", snap.Text, snap.Results).Lines})

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			logger.Info("client disconnected")
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "update":
			sess.Update(in.Text)
		case "snapshot":
			u := sess.Snapshot()
			push(writeCh, resultsMessage(u))
		case "ping":
			push(writeCh, outbound{Type: "pong"})
		case "":
			push(writeCh, outbound{Type: "error", Code: "invalid_argument", Message: "type is required"})
		default:
			push(writeCh, outbound{Type: "error", Code: "invalid_argument", Message: "unsupported type: " + in.Type})
		}
	}
}

func resultsMessage(u session.Update) outbound {
	if u.Origin == session.OriginStatus {
		return outbound{Type: "status", DocID: u.DocID, Status: string(u.Status)}
	}
	return outbound{
		Type:   "results",
		DocID:  u.DocID,
		Origin: string(u.Origin),
		Status: string(u.Status),
		Text:   u.Text,
		Lines:  render.Build(u.DocID, "", u.Text, u.Results).Lines,
	}
}

// push never blocks; when the buffer is full the oldest message is dropped.
func push(writeCh chan outbound, out outbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
