package submission

import (
	"context"
	"time"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

// ListFilter narrows List results. Zero values are ignored.
type ListFilter struct {
	Status     Status
	FormType   string
	TaxYear    int
	SubjectRef string
	Pagination common.Pagination
}

// Repository persists submissions. Create and Update write the accompanying
// audit event in the same transaction so a state change never exists without
// its audit entry.
type Repository interface {
	Create(ctx context.Context, s *Submission, event *audit.Event) error

	// GetByID returns ErrCodeSubmissionNotFound when absent.
	GetByID(ctx context.Context, id string) (*Submission, error)

	// Update persists s when the stored version equals expectedVersion and
	// bumps s.Version. A mismatch returns ErrCodeVersionConflict and writes
	// nothing.
	Update(ctx context.Context, s *Submission, expectedVersion int, event *audit.Event) error

	List(ctx context.Context, filter ListFilter) ([]*Submission, int64, error)

	// FindLatestAccepted returns the accepted submission of the same subject
	// and form with the greatest tax year below beforeYear, or NotFound.
	FindLatestAccepted(ctx context.Context, subjectRef, formType string, beforeYear int) (*Submission, error)

	// ListAcceptedPeers returns accepted submissions sharing formType and
	// legalForm, excluding excludeID.
	ListAcceptedPeers(ctx context.Context, formType, legalForm, excludeID string, limit int) ([]*Submission, error)

	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)

	CountWithValidationErrors(ctx context.Context) (int64, error)

	// ExistsFiled reports whether a SUBMITTED or ACCEPTED submission exists for
	// the key.
	ExistsFiled(ctx context.Context, jurisdiction, formType string, taxYear int) (bool, error)
}
