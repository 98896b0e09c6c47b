// Package filing drives submissions through their lifecycle: creation,
// single and batch transitions, authority receipts and the audit trail.
package filing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/plausibility"
	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

// TransitionRequest asks for one state change.
type TransitionRequest struct {
	ID     string            `json:"id"`
	Target submission.Status `json:"target"`
	Reason string            `json:"reason,omitempty"`
	Actor  string            `json:"-"`

	// TransferTicket is the authority reference, honoured when entering
	// SUBMITTED.
	TransferTicket string `json:"transfer_ticket,omitempty"`
}

// UpdateFormDataRequest carries a partial form data correction. A null value
// removes the key.
type UpdateFormDataRequest struct {
	ID       string                 `json:"id"`
	FormData map[string]interface{} `json:"form_data"`
	Reason   string                 `json:"reason,omitempty"`
	Actor    string                 `json:"-"`
}

// TransitionResult reports an applied change.
type TransitionResult struct {
	Submission *submission.Submission `json:"submission"`
	From       submission.Status      `json:"from"`
	To         submission.Status      `json:"to"`
	Action     string                 `json:"action"`
	At         time.Time              `json:"at"`
}

// ReadinessChecker decides whether a submission may be filed.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context, sub *submission.Submission) (*plausibility.Result, error)
}

// Service is the filing use-case contract.
type Service interface {
	CreateSubmission(ctx context.Context, p submission.CreateParams) (*submission.Submission, error)
	GetSubmission(ctx context.Context, id string) (*submission.Submission, error)
	ListSubmissions(ctx context.Context, filter submission.ListFilter) (common.PageResponse[*submission.Submission], error)

	// UpdateFormData merges a correction into an editable submission and
	// clears everything derived from the previous data.
	UpdateFormData(ctx context.Context, req UpdateFormDataRequest) (*submission.Submission, error)

	// Transition applies one edge atomically together with its audit event.
	Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// BatchTransition applies the same target to every id independently.
	BatchTransition(ctx context.Context, req BatchRequest) (*BatchResult, error)

	// HandleReceipt applies an authority decision to a SUBMITTED submission.
	HandleReceipt(ctx context.Context, r Receipt) (*TransitionResult, error)

	AuditTrail(ctx context.Context, id string, limit int) ([]*audit.Event, error)
}

// ServiceConfig holds tunables.
type ServiceConfig struct {
	BatchConcurrency int
	MaxBatchSize     int
	ConflictRetries  int
	NotifyTimeout    time.Duration
}

type serviceImpl struct {
	repo      submission.Repository
	auditRepo audit.Repository
	readiness ReadinessChecker
	notifier  port.Notifier
	metrics   port.Metrics
	logger    logging.Logger
	clock     port.Clock
	cfg       ServiceConfig
}

// Option customises the service.
type Option func(*serviceImpl)

func WithNotifier(n port.Notifier) Option { return func(s *serviceImpl) { s.notifier = n } }

func WithMetrics(m port.Metrics) Option {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(c port.Clock) Option { return func(s *serviceImpl) { s.clock = c } }

// NewService constructs the filing Service. readiness may be nil, in which
// case the persisted findings decide readiness.
func NewService(
	repo submission.Repository,
	auditRepo audit.Repository,
	readiness ReadinessChecker,
	cfg ServiceConfig,
	logger logging.Logger,
	opts ...Option,
) Service {
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 500
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:      repo,
		auditRepo: auditRepo,
		readiness: readiness,
		metrics:   port.NopMetrics{},
		logger:    logger.Named("filing"),
		clock:     port.SystemClock,
		cfg:       cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *serviceImpl) CreateSubmission(ctx context.Context, p submission.CreateParams) (*submission.Submission, error) {
	now := s.clock()
	sub, err := submission.NewSubmission(p, now)
	if err != nil {
		return nil, err
	}
	event := audit.NewEvent(audit.EntitySubmission, sub.ID, audit.ActionCreated,
		fmt.Sprintf("%s %d created for %s", sub.FormType, sub.TaxYear, sub.SubjectRef), sub.CreatedBy, now).
		With("form_type", sub.FormType).
		With("tax_year", sub.TaxYear)
	if err := s.repo.Create(ctx, sub, event); err != nil {
		return nil, err
	}
	s.logger.Info("submission created", logging.SubmissionID(sub.ID), logging.String("form_type", sub.FormType))
	return sub, nil
}

func (s *serviceImpl) GetSubmission(ctx context.Context, id string) (*submission.Submission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *serviceImpl) ListSubmissions(ctx context.Context, filter submission.ListFilter) (common.PageResponse[*submission.Submission], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return common.PageResponse[*submission.Submission]{}, errors.InvalidParam(fmt.Sprintf("unknown status %q", filter.Status))
	}
	filter.FormType = strings.ToUpper(strings.TrimSpace(filter.FormType))
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return common.PageResponse[*submission.Submission]{}, err
	}
	return common.NewPageResponse(items, filter.Pagination, total), nil
}

func (s *serviceImpl) AuditTrail(ctx context.Context, id string, limit int) ([]*audit.Event, error) {
	if _, err := s.GetSubmission(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.auditRepo.ListByEntity(ctx, audit.EntitySubmission, id, limit)
}

func (s *serviceImpl) UpdateFormData(ctx context.Context, req UpdateFormDataRequest) (*submission.Submission, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	if len(req.FormData) == 0 {
		return nil, errors.InvalidParam("form data patch is empty")
	}

	for attempt := 0; ; attempt++ {
		sub, err := s.repo.GetByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		expected := sub.Version
		now := s.clock()
		keys, err := sub.UpdateFormData(req.FormData, now)
		if err != nil {
			return nil, err
		}
		summary := "form data updated: " + strings.Join(keys, ", ")
		if req.Reason != "" {
			summary += ": " + req.Reason
		}
		event := audit.NewEvent(audit.EntitySubmission, sub.ID, audit.ActionFormDataUpdated, summary, req.Actor, now).
			With("fields", keys).
			With("status", string(sub.Status))

		err = s.repo.Update(ctx, sub, expected, event)
		if err == nil {
			s.logger.Info("submission form data updated",
				logging.SubmissionID(sub.ID),
				logging.Strings("fields", keys),
				logging.String("actor", event.PerformedBy))
			return sub, nil
		}
		if !errors.IsCode(err, errors.ErrCodeVersionConflict) || attempt+1 >= s.cfg.ConflictRetries {
			return nil, err
		}
		s.logger.Debug("version conflict on form data update, retrying",
			logging.SubmissionID(req.ID), logging.Int("attempt", attempt+1))
	}
}

func (s *serviceImpl) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	res, err := s.transition(ctx, req)
	if err != nil && req.Target == submission.StatusArchived {
		s.recordFailure(ctx, req, err, "")
	}
	return res, err
}

// transition is the optimistic read-modify-write loop. The readiness check
// runs on the snapshot that is then written, so a concurrent edit forces a
// fresh check.
func (s *serviceImpl) transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, errors.InvalidParam("submission id is required")
	}
	if !req.Target.IsValid() {
		return nil, errors.InvalidParam(fmt.Sprintf("unknown target status %q", req.Target))
	}

	for attempt := 0; ; attempt++ {
		sub, err := s.repo.GetByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		edge, err := sub.CheckTransition(req.Target)
		if err != nil {
			s.metrics.RecordTransition(sub.Status, req.Target, err)
			return nil, err
		}
		if edge.RequiresReadiness {
			if err := s.ensureReady(ctx, sub); err != nil {
				s.metrics.RecordTransition(sub.Status, req.Target, err)
				return nil, err
			}
		}

		expected := sub.Version
		rec, err := sub.ApplyTransition(req.Target, submission.TransitionContext{
			At:             s.clock(),
			Reason:         req.Reason,
			Actor:          req.Actor,
			TransferTicket: req.TransferTicket,
		})
		if err != nil {
			return nil, err
		}
		event := transitionEvent(sub, rec)

		err = s.repo.Update(ctx, sub, expected, event)
		if err == nil {
			s.metrics.RecordTransition(rec.From, rec.To, nil)
			s.logger.Info("submission transitioned",
				logging.SubmissionID(sub.ID),
				logging.String("from", string(rec.From)),
				logging.String("to", string(rec.To)),
				logging.String("actor", event.PerformedBy))
			s.notify(ctx, sub, rec)
			return &TransitionResult{Submission: sub, From: rec.From, To: rec.To, Action: rec.Action, At: rec.At}, nil
		}
		if !errors.IsCode(err, errors.ErrCodeVersionConflict) || attempt+1 >= s.cfg.ConflictRetries {
			s.metrics.RecordTransition(rec.From, rec.To, err)
			return nil, err
		}
		s.logger.Debug("version conflict on transition, retrying",
			logging.SubmissionID(req.ID), logging.Int("attempt", attempt+1))
	}
}

func (s *serviceImpl) ensureReady(ctx context.Context, sub *submission.Submission) error {
	issues := sub.ValidationErrors
	if s.readiness != nil {
		res, err := s.readiness.CheckReadiness(ctx, sub)
		if err != nil {
			return err
		}
		issues = res.Issues
	}
	if submission.ReadyForFiling(issues) {
		return nil
	}
	var fields []string
	for _, i := range issues {
		if i.PreventsFiling() {
			fields = append(fields, i.Field)
		}
	}
	return errors.ValidationFailed("submission is not ready for filing").
		WithDetail("blocking fields: " + strings.Join(fields, ", "))
}

func transitionEvent(sub *submission.Submission, rec submission.TransitionRecord) *audit.Event {
	summary := fmt.Sprintf("status changed from %s to %s", rec.From, rec.To)
	if rec.Reason != "" {
		summary += ": " + rec.Reason
	}
	e := audit.NewEvent(audit.EntitySubmission, sub.ID, rec.Action, summary, rec.Actor, rec.At).
		With("from", string(rec.From)).
		With("to", string(rec.To))
	if rec.Administrative {
		e.With("administrative", true)
	}
	if sub.TransferTicket != nil && rec.To == submission.StatusSubmitted {
		e.With("transfer_ticket", *sub.TransferTicket)
	}
	return e
}

// recordFailure appends a transition_failed event. It runs outside any
// transaction; an error here is logged and never replaces the original one.
func (s *serviceImpl) recordFailure(ctx context.Context, req TransitionRequest, cause error, batchID string) {
	p := errors.ToPayload(cause)
	e := audit.NewEvent(audit.EntitySubmission, req.ID, audit.ActionTransitionFailed,
		fmt.Sprintf("transition to %s failed: %s", req.Target, p.Message), req.Actor, s.clock()).
		With("target", string(req.Target)).
		With("error_kind", string(p.Kind))
	if req.Reason != "" {
		e.With("reason", req.Reason)
	}
	if batchID != "" {
		e.With("batch_id", batchID)
	}
	if err := s.auditRepo.Append(ctx, e); err != nil {
		s.logger.Error("failed to record failed transition",
			logging.SubmissionID(req.ID), logging.Err(err))
	}
}

func (s *serviceImpl) notify(ctx context.Context, sub *submission.Submission, rec submission.TransitionRecord) {
	if s.notifier == nil {
		return
	}
	switch rec.To {
	case submission.StatusSubmitted, submission.StatusAccepted, submission.StatusRejected:
	default:
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	err := s.notifier.Notify(nctx, port.Notification{
		SubmissionID: sub.ID,
		SubjectRef:   sub.SubjectRef,
		FormType:     sub.FormType,
		TaxYear:      sub.TaxYear,
		From:         rec.From,
		To:           rec.To,
		Actor:        rec.Actor,
		Reason:       rec.Reason,
		OccurredAt:   rec.At,
	})
	if err != nil {
		s.logger.Warn("notification failed",
			logging.SubmissionID(sub.ID),
			logging.String("kind", string(errors.KindExternalServiceError)),
			logging.Err(err))
	}
}
