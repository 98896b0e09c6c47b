package plausibility

import (
	"context"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
)

// AdvisoryRequest is the structured input handed to the reasoning service.
type AdvisoryRequest struct {
	SubmissionID string              `json:"submission_id"`
	FormType     string              `json:"form_type"`
	LegalForm    string              `json:"legal_form,omitempty"`
	TaxYear      int                 `json:"tax_year"`
	FormData     submission.FormData `json:"form_data"`
	Findings     []submission.Issue  `json:"findings"`
	Peers        *PeerContext        `json:"peers,omitempty"`
}

// Advisor produces open-ended findings. Its output is untrusted: the service
// re-tags every returned issue as advisory and never lets it affect readiness.
type Advisor interface {
	Advise(ctx context.Context, req AdvisoryRequest) ([]submission.Issue, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, req AdvisoryRequest) ([]submission.Issue, error)

func (f AdvisorFunc) Advise(ctx context.Context, req AdvisoryRequest) ([]submission.Issue, error) {
	return f(ctx, req)
}
