package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/application/plausibility"
	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(config.ReasoningConfig{BaseURL: srv.URL + "/", APIKey: "k", Timeout: time.Second},
		logging.NewNopLogger(), WithRetry(2, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	return c
}

func sampleRequest() plausibility.AdvisoryRequest {
	return plausibility.AdvisoryRequest{
		SubmissionID: "sub-1",
		FormType:     "UST",
		TaxYear:      2024,
		FormData:     submission.FormData{"revenue": 100.0},
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://x", "not a url", "http://"} {
		_, err := NewClient(config.ReasoningConfig{BaseURL: u}, logging.NewNopLogger())
		assert.True(t, errors.IsKind(err, errors.KindInvalidParam), u)
	}
}

func TestAdvise_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, advisePath, r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req plausibility.AdvisoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sub-1", req.SubmissionID)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issues": []map[string]interface{}{
				{"field": "revenue", "severity": "warning", "message": "unusually low"},
				{"field": "x", "severity": "bogus", "message": "dropped"},
				{"field": "y", "severity": "info", "message": "  "},
			},
		})
	})

	issues, err := c.Advise(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "revenue", issues[0].Field)
	assert.Equal(t, submission.SeverityWarning, issues[0].Severity)
}

func TestAdvise_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"issues":[]}`))
	})

	issues, err := c.Advise(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAdvise_GivesUpAfterRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Advise(context.Background(), sampleRequest())
	assert.True(t, errors.IsCode(err, errors.ErrCodeReasoningUnavailable))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAdvise_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad input", http.StatusBadRequest)
	})

	_, err := c.Advise(context.Background(), sampleRequest())
	assert.True(t, errors.IsCode(err, errors.ErrCodeReasoningUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAdvise_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issues":`))
	})
	_, err := c.Advise(context.Background(), sampleRequest())
	assert.True(t, errors.IsCode(err, errors.ErrCodeReasoningUnavailable))
}

func TestAdvise_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Advise(ctx, sampleRequest())
	assert.True(t, errors.IsCode(err, errors.ErrCodeReasoningUnavailable))
}
