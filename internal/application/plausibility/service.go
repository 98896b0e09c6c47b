// Package plausibility evaluates submissions against the deterministic rule
// registry and, optionally, an external advisory service.
package plausibility

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// PeerContext summarises accepted submissions sharing form type and legal
// form. It is informational and never compared field by field.
type PeerContext struct {
	Count    int                `json:"count"`
	Averages map[string]float64 `json:"averages,omitempty"`
}

// Result is the outcome of one plausibility check.
type Result struct {
	SubmissionID     string             `json:"submission_id"`
	Score            int                `json:"score"`
	Issues           []submission.Issue `json:"issues"`
	AdvisoryIssues   []submission.Issue `json:"advisory_issues"`
	IsReadyForFiling bool               `json:"is_ready_for_filing"`
	PeerContext      *PeerContext       `json:"peer_context,omitempty"`
	PriorTaxYear     int                `json:"prior_tax_year,omitempty"`
	AdvisoryFailed   bool               `json:"advisory_failed,omitempty"`
	EvaluatedAt      time.Time          `json:"evaluated_at"`
}

// Service is the plausibility use-case contract.
type Service interface {
	// Evaluate checks sub without persisting anything. The advisor is
	// consulted when configured.
	Evaluate(ctx context.Context, sub *submission.Submission) (*Result, error)

	// ValidatePlausibility evaluates the stored submission and persists the
	// deterministic findings and score together with an audit event.
	ValidatePlausibility(ctx context.Context, id, actor string) (*Result, error)

	// CheckReadiness runs the deterministic rules only. The state machine
	// calls it before entering SUBMITTED.
	CheckReadiness(ctx context.Context, sub *submission.Submission) (*Result, error)
}

// ServiceConfig holds tunables.
type ServiceConfig struct {
	AdvisoryTimeout time.Duration
	PeerLimit       int
	ConflictRetries int
}

type serviceImpl struct {
	repo     submission.Repository
	registry *Registry
	advisor  Advisor
	metrics  port.Metrics
	logger   logging.Logger
	clock    port.Clock
	cfg      ServiceConfig
}

// Option customises the service.
type Option func(*serviceImpl)

// WithAdvisor enables the advisory channel.
func WithAdvisor(a Advisor) Option { return func(s *serviceImpl) { s.advisor = a } }

// WithMetrics sets the metrics sink.
func WithMetrics(m port.Metrics) Option {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(c port.Clock) Option { return func(s *serviceImpl) { s.clock = c } }

// NewService constructs a plausibility Service.
func NewService(repo submission.Repository, registry *Registry, cfg ServiceConfig, logger logging.Logger, opts ...Option) Service {
	if cfg.AdvisoryTimeout <= 0 {
		cfg.AdvisoryTimeout = 10 * time.Second
	}
	if cfg.PeerLimit <= 0 {
		cfg.PeerLimit = 50
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:     repo,
		registry: registry,
		metrics:  port.NopMetrics{},
		logger:   logger.Named("plausibility"),
		clock:    port.SystemClock,
		cfg:      cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *serviceImpl) Evaluate(ctx context.Context, sub *submission.Submission) (*Result, error) {
	res, err := s.deterministic(ctx, sub)
	if err != nil {
		return nil, err
	}
	peers, err := s.peerContext(ctx, sub)
	if err != nil {
		return nil, err
	}
	res.PeerContext = peers
	s.advise(ctx, sub, res)
	s.metrics.RecordValidation(sub.FormType, res.Score, res.IsReadyForFiling)
	return res, nil
}

func (s *serviceImpl) CheckReadiness(ctx context.Context, sub *submission.Submission) (*Result, error) {
	return s.deterministic(ctx, sub)
}

func (s *serviceImpl) ValidatePlausibility(ctx context.Context, id, actor string) (*Result, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// The advisory call happens here, before any write.
	res, err := s.Evaluate(ctx, sub)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if sub, err = s.repo.GetByID(ctx, id); err != nil {
				return nil, err
			}
			fresh, derr := s.deterministic(ctx, sub)
			if derr != nil {
				return nil, derr
			}
			res.Score, res.Issues, res.IsReadyForFiling = fresh.Score, fresh.Issues, fresh.IsReadyForFiling
			res.PriorTaxYear = fresh.PriorTaxYear
		}

		now := s.clock()
		expected := sub.Version
		sub.RecordValidation(res.Issues, res.Score, now)
		event := audit.NewEvent(audit.EntitySubmission, sub.ID, audit.ActionValidated,
			"plausibility check recorded", actor, now).
			With("score", res.Score).
			With("issue_count", len(res.Issues)).
			With("advisory_count", len(res.AdvisoryIssues)).
			With("ready_for_filing", res.IsReadyForFiling)

		err = s.repo.Update(ctx, sub, expected, event)
		if err == nil {
			break
		}
		if !errors.IsCode(err, errors.ErrCodeVersionConflict) || attempt+1 >= s.cfg.ConflictRetries {
			return nil, err
		}
		s.logger.Debug("version conflict while recording validation, retrying",
			logging.SubmissionID(id), logging.Int("attempt", attempt+1))
	}

	s.logger.Info("plausibility check recorded",
		logging.SubmissionID(id),
		logging.Int("score", res.Score),
		logging.Int("issues", len(res.Issues)),
		logging.Bool("ready", res.IsReadyForFiling))
	return res, nil
}

func (s *serviceImpl) deterministic(ctx context.Context, sub *submission.Submission) (*Result, error) {
	if sub == nil {
		return nil, errors.InvalidParam("submission is nil")
	}
	in := Input{FormData: sub.FormData}

	prior, err := s.repo.FindLatestAccepted(ctx, sub.SubjectRef, sub.FormType, sub.TaxYear)
	switch {
	case err == nil:
		in.Prior = prior.FormData
		in.PriorYear = prior.TaxYear
	case errors.IsNotFound(err):
	default:
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to load prior year submission")
	}

	set := s.registry.Resolve(sub.FormType, sub.Jurisdiction)
	issues := Evaluate(set, in)
	return &Result{
		SubmissionID:     sub.ID,
		Score:            Score(issues),
		Issues:           issues,
		AdvisoryIssues:   []submission.Issue{},
		IsReadyForFiling: submission.ReadyForFiling(issues),
		PriorTaxYear:     in.PriorYear,
		EvaluatedAt:      s.clock(),
	}, nil
}

func (s *serviceImpl) peerContext(ctx context.Context, sub *submission.Submission) (*PeerContext, error) {
	peers, err := s.repo.ListAcceptedPeers(ctx, sub.FormType, sub.LegalForm, sub.ID, s.cfg.PeerLimit)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to load peer group")
	}
	pc := &PeerContext{Count: len(peers)}
	if len(peers) == 0 {
		return pc, nil
	}
	pc.Averages = make(map[string]float64)
	for _, key := range sub.FormData.NumericKeys() {
		sum, n := decimal.Zero, 0
		for _, p := range peers {
			if v, ok := p.FormData.Number(key); ok {
				sum = sum.Add(v)
				n++
			}
		}
		if n > 0 {
			pc.Averages[key], _ = sum.Div(decimal.NewFromInt(int64(n))).Round(2).Float64()
		}
	}
	return pc, nil
}

// advise consults the advisor under a timeout. Failures degrade to an empty
// advisory channel.
func (s *serviceImpl) advise(ctx context.Context, sub *submission.Submission, res *Result) {
	if s.advisor == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, s.cfg.AdvisoryTimeout)
	defer cancel()

	start := time.Now()
	issues, err := s.advisor.Advise(actx, AdvisoryRequest{
		SubmissionID: sub.ID,
		FormType:     sub.FormType,
		LegalForm:    sub.LegalForm,
		TaxYear:      sub.TaxYear,
		FormData:     sub.FormData.Clone(),
		Findings:     res.Issues,
		Peers:        res.PeerContext,
	})
	s.metrics.RecordAdvisory(err, time.Since(start))
	if err != nil {
		res.AdvisoryFailed = true
		s.logger.Warn("advisory service unavailable",
			logging.SubmissionID(sub.ID),
			logging.String("kind", string(errors.KindExternalServiceError)),
			logging.Err(err))
		return
	}
	for _, i := range issues {
		i.Channel = submission.ChannelAdvisory
		i.ActionRequired = false
		if i.Severity == "" || !i.Severity.IsValid() {
			i.Severity = submission.SeverityInfo
		}
		res.AdvisoryIssues = append(res.AdvisoryIssues, i)
	}
}
