package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/pkg/errors"
)

func newDraft(t *testing.T) *Submission {
	t.Helper()
	s, err := NewSubmission(CreateParams{
		TaxYear:      2024,
		FormType:     "anlage_kap",
		Jurisdiction: "de",
		LegalForm:    "individual",
		SubjectRef:   "taxpayer-1",
		FormData:     map[string]interface{}{"grossDividends": 1000.0},
	}, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

func TestTransitionTable_Edges(t *testing.T) {
	allowed := map[Status][]Status{
		StatusDraft:       {StatusAIProcessed, StatusArchived, StatusValidated},
		StatusAIProcessed: {StatusArchived, StatusValidated},
		StatusValidated:   {StatusArchived, StatusSubmitted},
		StatusSubmitted:   {StatusAccepted, StatusArchived, StatusRejected},
		StatusAccepted:    {StatusArchived},
		StatusRejected:    {StatusArchived, StatusDraft},
		StatusArchived:    nil,
	}
	for from, want := range allowed {
		assert.Equal(t, want, AllowedTargets(from), "targets from %s", from)
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			expected := false
			for _, w := range allowed[from] {
				if w == to {
					expected = true
				}
			}
			assert.Equal(t, expected, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionTable_AdministrativeArchive(t *testing.T) {
	for _, from := range []Status{StatusDraft, StatusAIProcessed, StatusValidated, StatusSubmitted} {
		e, ok := LookupEdge(from, StatusArchived)
		require.True(t, ok)
		assert.True(t, e.Administrative)
		assert.Equal(t, ActionForceArchived, e.Action)
	}
	for _, from := range []Status{StatusAccepted, StatusRejected} {
		e, ok := LookupEdge(from, StatusArchived)
		require.True(t, ok)
		assert.False(t, e.Administrative)
	}
	e, _ := LookupEdge(StatusValidated, StatusSubmitted)
	assert.True(t, e.RequiresReadiness)
}

func TestApplyTransition_SubmittedSetsSubmissionDate(t *testing.T) {
	s := newDraft(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.ApplyTransition(StatusValidated, TransitionContext{At: at})
	require.NoError(t, err)
	assert.Nil(t, s.SubmissionDate)

	rec, err := s.ApplyTransition(StatusSubmitted, TransitionContext{At: at, Actor: "alice", Reason: "ready"})
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, rec.From)
	assert.Equal(t, StatusSubmitted, rec.To)
	assert.Equal(t, "alice", rec.Actor)
	require.NotNil(t, s.SubmissionDate)
	assert.Equal(t, at, *s.SubmissionDate)
	require.NotNil(t, s.TransferTicket)
	assert.Contains(t, *s.TransferTicket, "TF-DE-2024-20250301-")
	assert.Nil(t, s.ArchivedAt)
	assert.Equal(t, at, s.StatusChangedAt)
}

func TestApplyTransition_SuppliedTicketIsKept(t *testing.T) {
	s := newDraft(t)
	_, _ = s.ApplyTransition(StatusValidated, TransitionContext{})
	_, err := s.ApplyTransition(StatusSubmitted, TransitionContext{TransferTicket: "ELSTER-123"})
	require.NoError(t, err)
	assert.Equal(t, "ELSTER-123", *s.TransferTicket)
}

func TestApplyTransition_ArchivedSetsArchivedAt(t *testing.T) {
	s := newDraft(t)
	at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	rec, err := s.ApplyTransition(StatusArchived, TransitionContext{At: at})
	require.NoError(t, err)
	assert.True(t, rec.Administrative)
	assert.Equal(t, ActionForceArchived, rec.Action)
	require.NotNil(t, s.ArchivedAt)
	assert.Equal(t, at, *s.ArchivedAt)
	assert.Nil(t, s.SubmissionDate)
}

func TestApplyTransition_IllegalLeavesSubmissionUnchanged(t *testing.T) {
	s := newDraft(t)
	before := s.Clone()

	_, err := s.ApplyTransition(StatusAccepted, TransitionContext{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
	assert.Equal(t, before, s)

	_, err = s.ApplyTransition(Status("BOGUS"), TransitionContext{})
	assert.True(t, errors.IsKind(err, errors.KindInvalidParam))
	assert.Equal(t, before, s)
}

func TestApplyTransition_ArchivedIsFinal(t *testing.T) {
	s := newDraft(t)
	_, err := s.ApplyTransition(StatusArchived, TransitionContext{})
	require.NoError(t, err)

	for _, to := range AllStatuses() {
		_, err := s.ApplyTransition(to, TransitionContext{})
		assert.Error(t, err, "ARCHIVED -> %s", to)
	}
}

func TestApplyTransition_RejectedReopenClearsFiling(t *testing.T) {
	s := newDraft(t)
	s.SetDocument("<xml/>", time.Now())
	for _, to := range []Status{StatusValidated, StatusSubmitted, StatusRejected} {
		_, err := s.ApplyTransition(to, TransitionContext{})
		require.NoError(t, err)
	}
	require.NotNil(t, s.SubmissionDate)

	rec, err := s.ApplyTransition(StatusDraft, TransitionContext{Reason: "fix rental income"})
	require.NoError(t, err)
	assert.Equal(t, ActionReopened, rec.Action)
	assert.Equal(t, StatusDraft, s.Status)
	assert.Nil(t, s.SubmissionDate)
	assert.Nil(t, s.TransferTicket)
	assert.Nil(t, s.XMLContent)
}

func TestApplyTransition_StatusAlwaysValid(t *testing.T) {
	s := newDraft(t)
	targets := []Status{StatusAccepted, StatusAIProcessed, StatusSubmitted, StatusValidated,
		StatusDraft, StatusSubmitted, StatusRejected, StatusAccepted, StatusDraft, StatusArchived}
	for _, to := range targets {
		_, _ = s.ApplyTransition(to, TransitionContext{})
		assert.True(t, s.Status.IsValid())
	}
}
