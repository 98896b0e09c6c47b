package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/TaxFlow/internal/application/document"
	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/application/plausibility"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// SubmissionHandler serves /api/v1/submissions.
type SubmissionHandler struct {
	filing       filing.Service
	documents    document.Service
	plausibility plausibility.Service
	logger       logging.Logger
}

func NewSubmissionHandler(f filing.Service, d document.Service, p plausibility.Service, logger logging.Logger) *SubmissionHandler {
	return &SubmissionHandler{filing: f, documents: d, plausibility: p, logger: logger}
}

// Routes mounts the submission endpoints on r.
func (h *SubmissionHandler) Routes(r chi.Router) {
	r.Route("/submissions", func(sr chi.Router) {
		sr.Post("/", h.Create)
		sr.Get("/", h.List)
		sr.Post("/batch-transitions", h.BatchTransition)

		sr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Patch("/", h.UpdateFormData)
			item.Post("/transitions", h.Transition)
			item.Post("/document", h.GenerateDocument)
			item.Post("/validation", h.Validate)
			item.Get("/audit", h.Audit)
		})
	})
}

func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p submission.CreateParams
	if err := decodeJSON(w, r, &p); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	p.CreatedBy = actor(r)

	sub, err := h.filing.CreateSubmission(r.Context(), p)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/submissions/"+sub.ID)
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.filing.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// UpdateFormData merges a partial form data correction into the submission.
func (h *SubmissionHandler) UpdateFormData(w http.ResponseWriter, r *http.Request) {
	var req filing.UpdateFormDataRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.Actor = actor(r)

	sub, err := h.filing.UpdateFormData(r.Context(), req)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := submission.ListFilter{
		FormType:   q.Get("form_type"),
		SubjectRef: q.Get("subject_ref"),
		Pagination: parsePagination(r),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := submission.ParseStatus(raw)
		if err != nil {
			writeAppError(w, h.logger, err)
			return
		}
		f.Status = st
	}
	year, err := queryInt(r, "tax_year")
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	f.TaxYear = year

	page, err := h.filing.ListSubmissions(r.Context(), f)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *SubmissionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req filing.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.Actor = actor(r)

	res, err := h.filing.Transition(r.Context(), req)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchTransition answers 200 even when some items failed; the per-item
// results carry the errors.
func (h *SubmissionHandler) BatchTransition(w http.ResponseWriter, r *http.Request) {
	var req filing.BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	req.Actor = actor(r)

	res, err := h.filing.BatchTransition(r.Context(), req)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SubmissionHandler) GenerateDocument(w http.ResponseWriter, r *http.Request) {
	res, err := h.documents.GenerateDocument(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SubmissionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.plausibility.ValidatePlausibility(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SubmissionHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err == nil && limit < 0 {
		err = errors.InvalidParam("limit must not be negative")
	}
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	events, err := h.filing.AuditTrail(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": events})
}
