package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

func TestListQuery(t *testing.T) {
	where, args := listQuery(submission.ListFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = listQuery(submission.ListFilter{
		Status:     submission.StatusDraft,
		FormType:   " anlage_kap ",
		TaxYear:    2024,
		SubjectRef: "subject-1",
		Pagination: common.Pagination{Page: 2},
	})
	assert.Equal(t, " WHERE status = $1 AND form_type = $2 AND tax_year = $3 AND subject_ref = $4", where)
	assert.Equal(t, []any{"DRAFT", "ANLAGE_KAP", 2024, "subject-1"}, args)

	where, args = listQuery(submission.ListFilter{TaxYear: 2023})
	assert.Equal(t, " WHERE tax_year = $1", where)
	assert.Equal(t, []any{2023}, args)
}

func TestNormaliseTimes(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	filed := time.Date(2024, 3, 1, 10, 0, 0, 0, cet)
	s := &submission.Submission{
		CreatedAt:      time.Date(2024, 1, 1, 10, 0, 0, 0, cet),
		SubmissionDate: &filed,
	}
	normaliseTimes(s)
	assert.Equal(t, time.UTC, s.CreatedAt.Location())
	assert.Equal(t, time.UTC, s.SubmissionDate.Location())
	assert.Equal(t, 9, s.SubmissionDate.Hour())
	assert.Nil(t, s.ArchivedAt)
	assert.Equal(t, cet, filed.Location(), "source value untouched")
}

func TestNonNilDefaults(t *testing.T) {
	assert.NotNil(t, nonNilFormData(nil))
	assert.NotNil(t, nonNilIssues(nil))
	b, err := marshalJSON(nonNilIssues(nil), "issues")
	assert.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
