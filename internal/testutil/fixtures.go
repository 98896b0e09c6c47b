package testutil

import (
	"time"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
)

// FixedNow is the reference instant used by service tests.
var FixedNow = time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)

// Clock returns a clock pinned to t.
func Clock(t time.Time) func() time.Time { return func() time.Time { return t } }

// NewSubmission builds a submission fixture for subject-1 in DE-BY with the
// given status. It panics on invalid input so table setups stay short.
func NewSubmission(formType string, taxYear int, status submission.Status, data map[string]interface{}) *submission.Submission {
	sub, err := submission.NewSubmission(submission.CreateParams{
		TaxYear:      taxYear,
		FormType:     formType,
		Jurisdiction: "DE-BY",
		LegalForm:    "natural_person",
		SubjectRef:   "subject-1",
		FormData:     data,
		CreatedBy:    "fixture",
	}, FixedNow.Add(-24*time.Hour))
	if err != nil {
		panic(err)
	}
	sub.Status = status
	return sub
}
