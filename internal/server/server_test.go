package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nickandperla.net/tally/internal/assist"
	"nickandperla.net/tally/internal/rewrite"
	"nickandperla.net/tally/internal/session"
)

func opener(ctx context.Context, docID string, opts ...session.Option) (*session.Session, error) {
	opts = append(opts, session.WithDebounce(5*time.Millisecond, time.Hour))
	return session.New(ctx, docID, opts...)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn, typ string) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var out outbound
		require.NoError(t, conn.ReadJSON(&out))
		if out.Type == typ {
			return out
		}
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New(opener).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateStreamsResults(t *testing.T) {
	srv := httptest.NewServer(New(opener).Handler())
	defer srv.Close()
	conn := dial(t, srv, "?doc=budget")

	opened := read(t, conn, "opened")
	assert.Equal(t, "budget", opened.DocID)
	assert.Equal(t, "unknown", opened.Status)

	require.NoError(t, conn.WriteJSON(inbound{Type: "update", Text: "Rent = 1200\nRent * 12"}))
	out := read(t, conn, "results")
	assert.Equal(t, "local", out.Origin)
	require.Len(t, out.Lines, 2)
	require.NotNil(t, out.Lines[1].Result)
	assert.Equal(t, 14400.0, *out.Lines[1].Result.Value)
	assert.Equal(t, "14,400", out.Lines[1].Display)
}

func TestPingAndErrors(t *testing.T) {
	srv := httptest.NewServer(New(opener).Handler())
	defer srv.Close()
	conn := dial(t, srv, "")

	opened := read(t, conn, "opened")
	assert.NotEmpty(t, opened.DocID)

	require.NoError(t, conn.WriteJSON(inbound{Type: "ping"}))
	read(t, conn, "pong")

	require.NoError(t, conn.WriteJSON(inbound{Type: "explode"}))
	out := read(t, conn, "error")
	assert.Equal(t, "invalid_argument", out.Code)
}

func TestOpenFailure(t *testing.T) {
	failing := func(ctx context.Context, docID string, opts ...session.Option) (*session.Session, error) {
		return nil, errors.New("store offline")
	}
	srv := httptest.NewServer(New(failing).Handler())
	defer srv.Close()
	conn := dial(t, srv, "?doc=x")

	out := read(t, conn, "error")
	assert.Equal(t, "store offline", out.Message)
}

func TestListenAndServeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(opener).ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

type stallingRewriter struct{}

func (stallingRewriter) Rewrite(ctx context.Context, req rewrite.Request) (map[int]rewrite.Rewrite, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingRewriter) Status() (assist.Status, error) { return assist.StatusConnecting, nil }

func TestStatusPushedWhenAIStarts(t *testing.T) {
	open := func(ctx context.Context, docID string, opts ...session.Option) (*session.Session, error) {
		opts = append(opts, session.WithRewriter(stallingRewriter{}),
			session.WithDebounce(5*time.Millisecond, 10*time.Millisecond))
		return session.New(ctx, docID, opts...)
	}
	srv := httptest.NewServer(New(open).Handler())
	defer srv.Close()
	conn := dial(t, srv, "?doc=budget")
	read(t, conn, "opened")

	require.NoError(t, conn.WriteJSON(inbound{Type: "update", Text: "Rent = 1200"}))
	out := read(t, conn, "status")
	assert.Equal(t, "budget", out.DocID)
	assert.Equal(t, "connecting", out.Status)
}
