package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL+"/", "test-token", opts...)
	require.NoError(t, err)
	return c
}

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("https://taxflow.example.com/", "")
	require.NoError(t, err)
	assert.Equal(t, "https://taxflow.example.com", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Equal(t, "taxflow-go-sdk/"+Version, c.userAgent)

	for _, raw := range []string{"", "ftp://host", "not a url"} {
		_, err := NewClient(raw, "")
		require.Error(t, err, raw)
		assert.True(t, errors.IsKind(err, errors.KindInvalidParam), raw)
	}
}

func TestOptions(t *testing.T) {
	hc := &http.Client{}
	c, err := NewClient("http://localhost", "",
		WithHTTPClient(hc),
		WithTimeout(7*time.Second),
		WithRetryMax(0),
		WithRetryWait(time.Second, 500*time.Millisecond),
		WithUserAgent("taxctl/1"),
		WithLogger(nil),
	)
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 7*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 0, c.retryMax)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax, "max below min is ignored")
	assert.Equal(t, "taxctl/1", c.userAgent)
	assert.IsType(t, noopLogger{}, c.logger)
}

func TestDo_Headers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "taxflow-go-sdk/"+Version, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeBody(w, http.StatusOK, map[string]string{"id": "s-1"})
	})
	sub, err := c.Submissions().Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", sub.ID)
}

func TestDo_NoTokenOmitsAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeBody(w, http.StatusOK, map[string]interface{}{"overall": "healthy"})
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	require.NoError(t, err)
	rep, err := c.Reports().FilingHealth(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "healthy", rep.Overall)
}

func TestDo_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusConflict, map[string]string{
			"kind": "InvalidTransition", "code": "SUB_002", "message": "DRAFT -> ACCEPTED not allowed",
		})
	})
	_, err := c.Submissions().Transition(context.Background(), "s-1", &TransitionRequest{Target: "ACCEPTED"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "InvalidTransition", apiErr.Kind)
	assert.Equal(t, "SUB_002", apiErr.Code)
	assert.True(t, apiErr.IsConflict())
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "HTTP 409")
}

func TestDo_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "page not found", http.StatusNotFound)
	})
	_, err := c.Submissions().Get(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "page not found", apiErr.Message)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeBody(w, http.StatusOK, map[string]string{"id": "s-1"})
	})
	_, err := c.Submissions().Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_GivesUpAfterRetryMax(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryMax(2), WithLogger(logger))

	_, err := c.Submissions().Get(context.Background(), "s-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.NotEmpty(t, logger.lines)
}

func TestDo_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeBody(w, http.StatusUnprocessableEntity, map[string]string{"kind": "ValidationFailed", "message": "not ready"})
	})
	_, err := c.Submissions().Transition(context.Background(), "s-1", &TransitionRequest{Target: "SUBMITTED"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_RateLimitRetryAfter(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeBody(w, http.StatusOK, map[string]string{"id": "s-1"})
	})
	_, err := c.Submissions().Get(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDo_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryWait(time.Second, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Submissions().Get(ctx, "s-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_MalformedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	_, err := c.Submissions().Get(context.Background(), "s-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))
}

func TestCalculateBackoff(t *testing.T) {
	c, err := NewClient("http://localhost", "", WithRetryWait(100*time.Millisecond, 300*time.Millisecond))
	require.NoError(t, err)

	b1 := c.calculateBackoff(1)
	assert.GreaterOrEqual(t, b1, 100*time.Millisecond)
	assert.Less(t, b1, 125*time.Millisecond)

	b5 := c.calculateBackoff(5)
	assert.GreaterOrEqual(t, b5, 300*time.Millisecond)
	assert.Less(t, b5, 375*time.Millisecond)
}

func TestSubClientsAreSingletons(t *testing.T) {
	c, err := NewClient("http://localhost", "")
	require.NoError(t, err)
	assert.Same(t, c.Submissions(), c.Submissions())
	assert.Same(t, c.Reports(), c.Reports())
}
