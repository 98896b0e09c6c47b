// Package port declares the narrow collaborator interfaces the application
// services depend on. Infrastructure packages implement them; tests use the
// no-op or in-memory variants.
package port

import (
	"context"
	"time"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// CachePort is the subset of the Redis cache the read models use. Get returns
// an error satisfying IsCacheMiss semantics of the implementation on a miss;
// callers treat every Get error as a miss.
type CachePort interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Locker grants exclusive access to one submission across processes.
type Locker interface {
	// Acquire blocks until the lock is held or ctx ends. The returned release
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Notification is a fire-and-forget message about a submission.
type Notification struct {
	SubmissionID string            `json:"submission_id"`
	SubjectRef   string            `json:"subject_ref"`
	FormType     string            `json:"form_type"`
	TaxYear      int               `json:"tax_year"`
	From         submission.Status `json:"from"`
	To           submission.Status `json:"to"`
	Actor        string            `json:"actor"`
	Reason       string            `json:"reason,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// Notifier delivers notifications. Errors are logged by the caller and never
// abort the operation that produced the notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DocumentArchive keeps a copy of generated documents outside the database.
type DocumentArchive interface {
	Put(ctx context.Context, sub *submission.Submission, xml string) (location string, err error)
}

// Metrics receives business counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordTransition(from, to submission.Status, err error)
	RecordBatch(target submission.Status, size, failed int)
	RecordValidation(formType string, score int, ready bool)
	RecordTemplateResolution(formType, source string)
	RecordHealth(overall string)
	RecordAdvisory(err error, d time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordTransition(submission.Status, submission.Status, error) {}
func (NopMetrics) RecordBatch(submission.Status, int, int)                      {}
func (NopMetrics) RecordValidation(string, int, bool)                           {}
func (NopMetrics) RecordTemplateResolution(string, string)                      {}
func (NopMetrics) RecordHealth(string)                                          {}
func (NopMetrics) RecordAdvisory(error, time.Duration)                          {}

// NopLocker grants every lock immediately; single-process deployments use it.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
