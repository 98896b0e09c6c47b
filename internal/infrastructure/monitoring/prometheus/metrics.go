package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultAdvisoryDurationBuckets = []float64{.1, .25, .5, 1, 2, 5, 10, 30}
	ConfidenceBuckets              = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	BatchSizeBuckets               = []float64{1, 5, 10, 25, 50, 100, 250, 500}
)

// AppMetrics holds the TaxFlow metric vectors. It implements port.Metrics.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	TransitionsTotal         CounterVec
	BatchesTotal             CounterVec
	BatchSize                HistogramVec
	BatchFailures            CounterVec
	ValidationsTotal         CounterVec
	ValidationConfidence     HistogramVec
	TemplateResolutionsTotal CounterVec
	HealthStatus             GaugeVec
	AdvisoryRequestsTotal    CounterVec
	AdvisoryDuration         HistogramVec

	ReceiptsConsumedTotal CounterVec
	CacheAccessTotal      CounterVec
}

var healthStates = []string{"healthy", "warning", "critical"}

func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route"),
		HTTPActiveRequests:  c.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method"),

		TransitionsTotal:         c.RegisterCounter("submission_transitions_total", "Status transition attempts", "from", "to", "outcome"),
		BatchesTotal:             c.RegisterCounter("submission_batches_total", "Batch transition requests", "target"),
		BatchSize:                c.RegisterHistogram("submission_batch_size", "Submissions per batch", BatchSizeBuckets, "target"),
		BatchFailures:            c.RegisterCounter("submission_batch_failures_total", "Failed items in batch transitions", "target"),
		ValidationsTotal:         c.RegisterCounter("plausibility_validations_total", "Plausibility validations", "form_type", "ready"),
		ValidationConfidence:     c.RegisterHistogram("plausibility_confidence", "Validation confidence score", ConfidenceBuckets, "form_type"),
		TemplateResolutionsTotal: c.RegisterCounter("template_resolutions_total", "Template resolutions by source", "form_type", "source"),
		HealthStatus:             c.RegisterGauge("health_status", "Current overall health (1 for the active state)", "state"),
		AdvisoryRequestsTotal:    c.RegisterCounter("advisory_requests_total", "Reasoning service requests", "outcome"),
		AdvisoryDuration:         c.RegisterHistogram("advisory_request_duration_seconds", "Reasoning service latency", DefaultAdvisoryDurationBuckets),

		ReceiptsConsumedTotal: c.RegisterCounter("receipts_consumed_total", "Authority receipts processed", "outcome"),
		CacheAccessTotal:      c.RegisterCounter("cache_access_total", "Cache lookups", "cache", "result"),
	}
}

// outcome labels an error by its code, or "ok".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errors.GetCode(err))
}

func (m *AppMetrics) RecordTransition(from, to submission.Status, err error) {
	m.TransitionsTotal.WithLabelValues(string(from), string(to), outcome(err)).Inc()
}

func (m *AppMetrics) RecordBatch(target submission.Status, size, failed int) {
	m.BatchesTotal.WithLabelValues(string(target)).Inc()
	m.BatchSize.WithLabelValues(string(target)).Observe(float64(size))
	if failed > 0 {
		m.BatchFailures.WithLabelValues(string(target)).Add(float64(failed))
	}
}

func (m *AppMetrics) RecordValidation(formType string, score int, ready bool) {
	m.ValidationsTotal.WithLabelValues(formType, strconv.FormatBool(ready)).Inc()
	m.ValidationConfidence.WithLabelValues(formType).Observe(float64(score))
}

func (m *AppMetrics) RecordTemplateResolution(formType, source string) {
	m.TemplateResolutionsTotal.WithLabelValues(formType, source).Inc()
}

// RecordHealth sets the gauge for overall to 1 and the other states to 0.
func (m *AppMetrics) RecordHealth(overall string) {
	for _, s := range healthStates {
		v := 0.0
		if s == overall {
			v = 1
		}
		m.HealthStatus.WithLabelValues(s).Set(v)
	}
}

func (m *AppMetrics) RecordAdvisory(err error, d time.Duration) {
	m.AdvisoryRequestsTotal.WithLabelValues(outcome(err)).Inc()
	m.AdvisoryDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *AppMetrics) RecordReceipt(err error) {
	m.ReceiptsConsumedTotal.WithLabelValues(outcome(err)).Inc()
}

func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccessTotal.WithLabelValues(cache, result).Inc()
}
