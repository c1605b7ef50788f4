package usage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient(url, 5*time.Second)
	c.retryDelay = time.Millisecond
	return c
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test-1234567890", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"usage": {
				"used": 250,
				"allowance": 1000,
				"window_start": "2026-08-01T00:00:00Z",
				"window_end": "2026-08-31T23:59:59Z"
			}
		}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "sk-test-1234567890")

	rec, ok := result.(UsageRecord)
	require.True(t, ok, "expected a UsageRecord, got %T", result)
	assert.Equal(t, "k1", rec.ID)
	assert.Equal(t, "sk-t...7890", rec.MaskedSecret)
	assert.Equal(t, int64(250), rec.Used)
	assert.Equal(t, int64(1000), rec.Allowance)
	assert.InDelta(t, 0.25, rec.UsedRatio, 1e-9)
	assert.Equal(t, int64(750), rec.Remaining())
	assert.Equal(t, "2026-08-01", rec.WindowStart)
	assert.Equal(t, "2026-08-31", rec.WindowEnd)
}

func TestFetchDefaultsMissingNumbers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usage": {}}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	rec, ok := result.(UsageRecord)
	require.True(t, ok)
	assert.Equal(t, int64(0), rec.Used)
	assert.Equal(t, int64(0), rec.Allowance)
	assert.Equal(t, 0.0, rec.UsedRatio)
	assert.Equal(t, "N/A", rec.WindowStart)
	assert.Equal(t, "N/A", rec.WindowEnd)
}

func TestFetchInvalidDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usage": {"used": 1, "allowance": 2, "window_start": "not-a-date"}}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	rec, ok := result.(UsageRecord)
	require.True(t, ok)
	assert.Equal(t, "invalid date", rec.WindowStart)
}

func TestFetchRetriesOn401(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	rec, ok := result.(ErrorRecord)
	require.True(t, ok, "expected an ErrorRecord, got %T", result)
	assert.Equal(t, "HTTP 401", rec.Error)
	// one initial attempt plus exactly two retries
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetch401RecoversOnRetry(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"usage": {"used": 5, "allowance": 10}}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	_, ok := result.(UsageRecord)
	require.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchOtherStatusNotRetried(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	rec, ok := result.(ErrorRecord)
	require.True(t, ok)
	assert.Equal(t, "HTTP 429", rec.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchMissingUsageObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"something": 1}}`))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	rec, ok := result.(ErrorRecord)
	require.True(t, ok)
	assert.Equal(t, "invalid response", rec.Error)
}

func TestFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	result := newTestClient(server.URL).Fetch(context.Background(), "k1", "secret-key-1")

	rec, ok := result.(ErrorRecord)
	require.True(t, ok)
	assert.Equal(t, "fetch failed", rec.Error)
}

func TestFetchNeverExposesSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	secret := "sk-super-secret-value-42"
	result := newTestClient(server.URL).Fetch(context.Background(), "k1", secret)

	rec := result.(ErrorRecord)
	assert.NotEqual(t, secret, rec.MaskedSecret)
	assert.NotContains(t, rec.MaskedSecret, "super-secret")
}
