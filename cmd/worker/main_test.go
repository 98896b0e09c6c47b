package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/prometheus"
)

func TestAdminRouter(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "taxflow"}, logging.NewNopLogger())
	require.NoError(t, err)
	prometheus.NewAppMetrics(collector).RecordReceipt(nil)

	healthy := true
	ping := func(context.Context) error {
		if healthy {
			return nil
		}
		return stderrors.New("connection refused")
	}
	r := adminRouter(ping, collector, logging.NewNopLogger())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "taxflow_receipts_consumed_total")
}
