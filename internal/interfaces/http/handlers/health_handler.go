package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/health"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
)

// Probe checks one dependency for readiness.
type Probe func(ctx context.Context) error

// HealthHandler serves liveness, readiness and the filing health report.
type HealthHandler struct {
	svc     health.Service
	probes  map[string]Probe
	timeout time.Duration
	logger  logging.Logger
}

func NewHealthHandler(svc health.Service, probes map[string]Probe, logger logging.Logger) *HealthHandler {
	return &HealthHandler{svc: svc, probes: probes, timeout: 2 * time.Second, logger: logger}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness runs every probe and answers 503 when any fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.probes))
	for n := range h.probes {
		names = append(names, n)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, n := range names {
		if err := h.probes[n](ctx); err != nil {
			h.logger.Warn("readiness probe failed", logging.String("dependency", n), logging.Err(err))
			deps[n] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[n] = "ok"
	}
	overall := "ready"
	if status != http.StatusOK {
		overall = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{"status": overall, "dependencies": deps})
}

// FilingHealth serves GET /api/v1/health/filing. ?refresh=true drops the
// cached report first.
func (h *HealthHandler) FilingHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.svc.Invalidate(r.Context()); err != nil {
			h.logger.Warn("failed to invalidate health cache", logging.Err(err))
		}
	}
	report, err := h.svc.Compute(r.Context())
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
