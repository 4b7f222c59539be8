package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return NewClient(Config{Timeout: 5 * time.Second, Backoff: time.Millisecond, UserAgent: "modkeeper-test"}, nil)
}

func TestClient_Get_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "modkeeper-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	body, err := testClient().Get(context.Background(), server.URL, map[string]string{"Authorization": "Bearer abc"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestClient_Get_CallerUserAgentWins(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom/1.0", r.Header.Get("User-Agent"))
	}))
	defer server.Close()

	_, err := testClient().Get(context.Background(), server.URL, map[string]string{"user-agent": "custom/1.0"}, 0)
	require.NoError(t, err)
}

func TestClient_Get_Retries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		maxRetries   int
		wantAttempts int32
		wantIs       error
	}{
		{"server error retried", http.StatusBadGateway, 2, 3, ErrServerError},
		{"429 retried", http.StatusTooManyRequests, 1, 2, ErrRateLimited},
		{"404 fails fast", http.StatusNotFound, 3, 1, ErrClientError},
		{"403 fails fast and is rate limit", http.StatusForbidden, 3, 1, ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := testClient().Get(context.Background(), server.URL, nil, tt.maxRetries)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.Equal(t, tt.wantAttempts, attempts.Load())

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
		})
	}
}

func TestClient_Get_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	body, err := testClient().Get(context.Background(), server.URL, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Get_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := testClient().Get(context.Background(), url, nil, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.False(t, IsRateLimited(err))
}

func TestClient_Get_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{Timeout: time.Second, Backoff: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, server.URL, nil, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Download(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("PK\x03\x04payload"))
	}))
	defer server.Close()

	dir := t.TempDir()
	path, err := testClient().Download(context.Background(), server.URL+"/files/Mod-1.0.0.zip?raw=1", dir, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "-Mod-1.0.0.zip"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04payload", string(data))
}

func TestClient_Download_FailureLeavesNoFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := testClient().Download(context.Background(), server.URL+"/x.zip", dir, nil, 2)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatusError_Is(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.Is(&StatusError{StatusCode: 429}, ErrRateLimited))
	assert.False(t, errors.Is(&StatusError{StatusCode: 429}, ErrClientError))
	assert.True(t, errors.Is(&StatusError{StatusCode: 401}, ErrClientError))
	assert.True(t, errors.Is(&StatusError{StatusCode: 503}, ErrServerError))
	assert.Equal(t, "GET http://x: HTTP 500", (&StatusError{StatusCode: 500, URL: "http://x"}).Error())
}
