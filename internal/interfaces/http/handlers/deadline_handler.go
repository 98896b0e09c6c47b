package handlers

import (
	"net/http"

	"github.com/turtacn/TaxFlow/internal/application/deadline"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
)

type DeadlineHandler struct {
	svc    deadline.Service
	logger logging.Logger
}

func NewDeadlineHandler(svc deadline.Service, logger logging.Logger) *DeadlineHandler {
	return &DeadlineHandler{svc: svc, logger: logger}
}

// Upcoming serves GET /api/v1/deadlines?jurisdiction=&form_type=.
func (h *DeadlineHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	q := deadline.Query{
		Jurisdiction: r.URL.Query().Get("jurisdiction"),
		FormType:     r.URL.Query().Get("form_type"),
	}
	items, err := h.svc.Upcoming(r.Context(), q)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}
