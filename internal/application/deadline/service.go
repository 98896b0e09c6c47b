// Package deadline computes which statutory filing deadlines are still unmet.
package deadline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/internal/application/port"
	"github.com/turtacn/TaxFlow/internal/domain/deadline"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// Query narrows the result. Empty fields match everything.
type Query struct {
	Jurisdiction string
	FormType     string
}

func (q Query) matches(d deadline.Deadline) bool {
	if q.Jurisdiction != "" && !strings.EqualFold(q.Jurisdiction, d.Jurisdiction) {
		return false
	}
	if q.FormType != "" && !strings.EqualFold(q.FormType, d.FormType) {
		return false
	}
	return true
}

// Service lists relevant deadlines.
type Service interface {
	// Upcoming returns deadlines due within the horizon or already overdue
	// for which no SUBMITTED or ACCEPTED submission exists, most urgent first.
	Upcoming(ctx context.Context, q Query) ([]deadline.Deadline, error)
}

// ServiceConfig holds tunables.
type ServiceConfig struct {
	HorizonDays   int
	LookbackYears int
	CacheTTL      time.Duration
}

type serviceImpl struct {
	defs   []deadline.Definition
	subs   submission.Repository
	cache  port.CachePort
	logger logging.Logger
	clock  port.Clock
	cfg    ServiceConfig
}

// Option customises the service.
type Option func(*serviceImpl)

func WithCache(c port.CachePort) Option { return func(s *serviceImpl) { s.cache = c } }

func WithClock(c port.Clock) Option { return func(s *serviceImpl) { s.clock = c } }

// NewService validates defs and constructs the Service.
func NewService(defs []deadline.Definition, subs submission.Repository, cfg ServiceConfig, logger logging.Logger, opts ...Option) (Service, error) {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 60
	}
	if cfg.LookbackYears < 0 {
		cfg.LookbackYears = 0
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		defs:   append([]deadline.Definition(nil), defs...),
		subs:   subs,
		logger: logger.Named("deadline"),
		clock:  port.SystemClock,
		cfg:    cfg,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *serviceImpl) Upcoming(ctx context.Context, q Query) ([]deadline.Deadline, error) {
	now := s.clock()
	key := "deadlines:" + now.UTC().Format("2006-01-02")

	var all []deadline.Deadline
	cached := false
	if s.cache != nil && s.cfg.CacheTTL > 0 {
		cached = s.cache.Get(ctx, key, &all) == nil
	}
	if !cached {
		var err error
		if all, err = s.compute(ctx, now); err != nil {
			return nil, err
		}
		if s.cache != nil && s.cfg.CacheTTL > 0 {
			if err := s.cache.Set(ctx, key, all, s.cfg.CacheTTL); err != nil {
				s.logger.Warn("failed to cache deadlines", logging.Err(err))
			}
		}
	}

	out := make([]deadline.Deadline, 0, len(all))
	for _, d := range all {
		if q.matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *serviceImpl) compute(ctx context.Context, now time.Time) ([]deadline.Deadline, error) {
	firstYear := now.Year() - 1 - s.cfg.LookbackYears
	out := make([]deadline.Deadline, 0)

	for _, def := range s.defs {
		for _, year := range taxYears(def, firstYear, now.Year()) {
			d := def.Evaluate(year, now)
			if !deadline.IsRelevant(d.DaysUntil, s.cfg.HorizonDays) {
				continue
			}
			filed, err := s.subs.ExistsFiled(ctx, d.Jurisdiction, d.FormType, d.TaxYear)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeUnknown, "failed to check filed submissions")
			}
			if !filed {
				out = append(out, d)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DaysUntil != b.DaysUntil {
			return a.DaysUntil < b.DaysUntil
		}
		if a.Jurisdiction != b.Jurisdiction {
			return a.Jurisdiction < b.Jurisdiction
		}
		return a.FormType < b.FormType
	})
	s.logger.Debug("deadlines computed", logging.Int("relevant", len(out)))
	return out, nil
}

// taxYears lists the years def produces within [from, to]. A one-off
// definition yields its own year regardless of the window.
func taxYears(def deadline.Definition, from, to int) []int {
	if !def.Recurring {
		return []int{def.TaxYear}
	}
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}
