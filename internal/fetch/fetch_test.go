package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/pulse/internal/pulse"
)

func newTestClient() *Client {
	return NewClient(Config{Delays: []time.Duration{0, time.Millisecond}})
}

func TestFetch_Headers(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Request{
		Headers: map[string]string{
			"X-Api-Key":  "abc",
			"User-Agent": "not-allowed",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, UserAgent, got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "abc", got.Get("X-Api-Key"))
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"articles":[{"title":"a"},{"title":"b"}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient().Fetch(context.Background(), srv.URL, Request{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, KindArticles, resp.Payload.Kind)
	assert.Len(t, resp.Payload.Articles, 2)
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Request{})
	require.Error(t, err)

	var fetchErr *pulse.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Status)
	assert.EqualValues(t, MaxAttempts, calls.Load())
}

func TestFetch_Timeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Request{Timeout: 20 * time.Millisecond})
	require.Error(t, err)

	var fetchErr *pulse.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.EqualValues(t, MaxAttempts, calls.Load())
}

func TestFetch_MalformedURL(t *testing.T) {
	_, err := newTestClient().Fetch(context.Background(), "://not a url", Request{})
	require.Error(t, err)

	var fetchErr *pulse.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Status)
	assert.Contains(t, err.Error(), "://not a url")
}

func TestFetch_UndecodableBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`this is neither json nor xml`))
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, Request{})
	require.Error(t, err)

	var fetchErr *pulse.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusOK, fetchErr.Status)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), delay(DefaultDelays, 0))
	assert.Equal(t, time.Second, delay(DefaultDelays, 1))
	assert.Equal(t, 3*time.Second, delay(DefaultDelays, 2))
	// Clamped to the last delay
	assert.Equal(t, 3*time.Second, delay(DefaultDelays, 7))
	assert.Equal(t, time.Duration(0), delay(nil, 1))
}

func TestBackoff_StopsAfterMaxAttempts(t *testing.T) {
	b := NewClient(Config{}).backoff()

	d, stop := b.Next()
	assert.False(t, stop)
	assert.Equal(t, time.Duration(0), d)

	d, stop = b.Next()
	assert.False(t, stop)
	assert.Equal(t, time.Second, d)

	_, stop = b.Next()
	assert.True(t, stop)
}

func TestFetch_WaitsBetweenFailedAttempts(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{Delays: []time.Duration{0, 200 * time.Millisecond, 5 * time.Second}})
	start := time.Now()
	_, err := client.Fetch(context.Background(), srv.URL, Request{})
	require.Error(t, err)

	// The last delay is never waited: there is no attempt after it.
	assert.Less(t, time.Since(start), 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, MaxAttempts)
	assert.Less(t, times[1].Sub(times[0]), 200*time.Millisecond)
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), 200*time.Millisecond)
}
