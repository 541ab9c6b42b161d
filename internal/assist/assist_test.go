package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nickandperla.net/tally/internal/document"
	"nickandperla.net/tally/internal/provider"
	"nickandperla.net/tally/internal/rewrite"
)

const text = "Rent = 1200\nhire two engineers"

func request() rewrite.Request {
	return rewrite.BuildRequest("doc-1", text, document.Evaluate(text))
}

// echo answers every request with a rewrite for line 1, echoing its meta.
func echo(_ context.Context, _ string, user string) (string, error) {
	var req rewrite.Request
	if err := json.Unmarshal([]byte(user), &req); err != nil {
		return "", err
	}
	return fmt.Sprintf("```json\n{\"meta\":{\"doc_id\":%q,\"lines_hash\":%q},"+
		"\"results\":{\"1\":{\"kind\":\"rewrite\",\"rhs\":\"2 * 150000\",\"confidence\":0.9}}}\n```",
		req.Meta.DocID, req.Meta.LinesHash), nil
}

func TestRewriteAndCache(t *testing.T) {
	mock := provider.NewMockHandler(echo)
	c, err := New(mock)
	require.NoError(t, err)

	st, _ := c.Status()
	assert.Equal(t, StatusUnknown, st)

	got, err := c.Rewrite(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "2 * 150000", got[1].RHS)
	st, _ = c.Status()
	assert.Equal(t, StatusConnected, st)

	// Mutating the returned map must not poison the cache.
	delete(got, 1)
	again, err := c.Rewrite(context.Background(), request())
	require.NoError(t, err)
	assert.Contains(t, again, 1)
	assert.Equal(t, 1, mock.Calls())
}

func TestRejectsStaleResponse(t *testing.T) {
	mock := provider.NewMock(`{"meta":{"doc_id":"doc-1","lines_hash":"ffffffffffffffff"},"results":{}}`)
	c, err := New(mock)
	require.NoError(t, err)

	_, err = c.Rewrite(context.Background(), request())
	assert.ErrorIs(t, err, rewrite.ErrStale)
	st, _ := c.Status()
	assert.Equal(t, StatusConnected, st)
}

func TestTransportErrorSetsStatus(t *testing.T) {
	var seen []Status
	mock := &provider.Mock{Err: errors.New("connection refused")}
	c, err := New(mock, WithStatusHook(func(s Status) { seen = append(seen, s) }))
	require.NoError(t, err)

	_, err = c.Rewrite(context.Background(), request())
	assert.Error(t, err)
	st, lastErr := c.Status()
	assert.Equal(t, StatusError, st)
	assert.EqualError(t, lastErr, "connection refused")
	assert.Equal(t, []Status{StatusConnecting, StatusError}, seen)
}

func TestCancelledCallKeepsStatus(t *testing.T) {
	mock := provider.NewMockHandler(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c, err := New(mock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Rewrite(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
	st, _ := c.Status()
	assert.Equal(t, StatusUnknown, st)
}

func TestNoProvider(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	_, err = c.Rewrite(context.Background(), request())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestConcurrentRequestsShareCall(t *testing.T) {
	release := make(chan struct{})
	mock := provider.NewMockHandler(func(ctx context.Context, system, user string) (string, error) {
		<-release
		return echo(ctx, system, user)
	})
	c, err := New(mock, WithCacheSize(0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Rewrite(context.Background(), request())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, 1, mock.Calls())
}
