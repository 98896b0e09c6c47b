// Package health rolls certificate, submission and template signals up into a
// single filing-readiness status.
package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/certificate"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/domain/template"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// Status is the outcome of a check or of the rollup.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

func (s Status) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	}
	return 0
}

// Check names, in report order.
const (
	CheckCertificates = "certificates"
	CheckRecent       = "recent_submissions"
	CheckTemplates    = "templates"
	CheckFailures     = "failures"
	CheckValidation   = "validation_issues"
)

// Check is one signal.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Value   int64  `json:"value"`
	Message string `json:"message"`
}

// Report is the aggregated result.
type Report struct {
	Overall     Status    `json:"overall"`
	Checks      []Check   `json:"checks"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Aggregate returns critical when any check is critical, warning when any is
// warning and healthy otherwise.
func Aggregate(checks []Check) Status {
	overall := StatusHealthy
	for _, c := range checks {
		if c.Status.rank() > overall.rank() {
			overall = c.Status
		}
	}
	return overall
}

// Service computes the filing health report.
type Service interface {
	Compute(ctx context.Context) (*Report, error)

	// Invalidate drops the cached report.
	Invalidate(ctx context.Context) error
}

// ServiceConfig holds the thresholds.
type ServiceConfig struct {
	CacheTTL                 time.Duration
	RecentWindow             time.Duration
	FailureWindow            time.Duration
	FailureThreshold         int64
	ValidationIssueThreshold int64

	// ComputeTimeout bounds one shared computation. It is detached from the
	// caller that started it so other waiters are not failed by its cancel.
	ComputeTimeout time.Duration
}

const cacheKey = "health:filing"

type serviceImpl struct {
	subs    submission.Repository
	audits  audit.Repository
	certs   certificate.Repository
	tpls    template.Repository
	cache   port.CachePort
	metrics port.Metrics
	logger  logging.Logger
	clock   port.Clock
	cfg     ServiceConfig
	group   singleflight.Group
}

// Option customises the service.
type Option func(*serviceImpl)

func WithCache(c port.CachePort) Option { return func(s *serviceImpl) { s.cache = c } }

func WithMetrics(m port.Metrics) Option {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(c port.Clock) Option { return func(s *serviceImpl) { s.clock = c } }

// NewService constructs the health Service.
func NewService(
	subs submission.Repository,
	audits audit.Repository,
	certs certificate.Repository,
	tpls template.Repository,
	cfg ServiceConfig,
	logger logging.Logger,
	opts ...Option,
) Service {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 7 * 24 * time.Hour
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 30 * 24 * time.Hour
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ValidationIssueThreshold <= 0 {
		cfg.ValidationIssueThreshold = 10
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		subs:    subs,
		audits:  audits,
		certs:   certs,
		tpls:    tpls,
		metrics: port.NopMetrics{},
		logger:  logger.Named("health"),
		clock:   port.SystemClock,
		cfg:     cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *serviceImpl) Compute(ctx context.Context) (*Report, error) {
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		var cached Report
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	v, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ComputeTimeout)
		defer cancel()
		return s.compute(fctx)
	})
	if err != nil {
		return nil, err
	}
	report := v.(*Report)

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache health report", logging.Err(err))
		}
	}
	return report, nil
}

func (s *serviceImpl) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *serviceImpl) compute(ctx context.Context) (*Report, error) {
	now := s.clock()
	checks := make([]Check, 5)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.certs.CountValid(gctx, now)
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "certificate check failed")
		}
		checks[0] = Check{Name: CheckCertificates, Status: StatusHealthy, Value: n,
			Message: fmt.Sprintf("%d valid certificate(s)", n)}
		if n == 0 {
			checks[0].Status = StatusCritical
			checks[0].Message = "no valid certificate available for transmission"
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.subs.CountCreatedSince(gctx, now.Add(-s.cfg.RecentWindow))
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "recent submissions check failed")
		}
		checks[1] = Check{Name: CheckRecent, Status: StatusHealthy, Value: n,
			Message: fmt.Sprintf("%d submission(s) created in the last %s", n, humanWindow(s.cfg.RecentWindow))}
		return nil
	})
	g.Go(func() error {
		n, err := s.tpls.CountActive(gctx)
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "template check failed")
		}
		checks[2] = Check{Name: CheckTemplates, Status: StatusHealthy, Value: n,
			Message: fmt.Sprintf("%d active template(s)", n)}
		if n == 0 {
			checks[2].Status = StatusWarning
			checks[2].Message = "no active templates, documents use synthesized defaults"
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.audits.CountTransitionsSince(gctx, audit.EntitySubmission,
			string(submission.StatusRejected), now.Add(-s.cfg.FailureWindow))
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "failure check failed")
		}
		checks[3] = Check{Name: CheckFailures, Status: StatusHealthy, Value: n,
			Message: fmt.Sprintf("%d rejection(s) in the last %s", n, humanWindow(s.cfg.FailureWindow))}
		if n > s.cfg.FailureThreshold {
			checks[3].Status = StatusWarning
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.subs.CountWithValidationErrors(gctx)
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "validation check failed")
		}
		checks[4] = Check{Name: CheckValidation, Status: StatusHealthy, Value: n,
			Message: fmt.Sprintf("%d submission(s) with open validation issues", n)}
		if n > s.cfg.ValidationIssueThreshold {
			checks[4].Status = StatusWarning
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Overall: Aggregate(checks), Checks: checks, GeneratedAt: now}
	s.metrics.RecordHealth(string(report.Overall))
	if report.Overall != StatusHealthy {
		s.logger.Warn("filing health degraded", logging.String("overall", string(report.Overall)))
	}
	return report, nil
}

func humanWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	}
	return d.String()
}
