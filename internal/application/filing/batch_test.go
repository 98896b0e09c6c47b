package filing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

func TestBatchTransition_PartialFailureIsReported(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, f.put("UST", submission.StatusDraft, nil).ID)
	}
	illegal := f.put("UST", submission.StatusSubmitted, nil)
	ids = append(ids[:2], append([]string{illegal.ID}, ids[2:]...)...)

	res, err := f.svc.BatchTransition(context.Background(), BatchRequest{IDs: ids, Target: submission.StatusValidated, Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	require.Len(t, res.Results, 5)

	for i, r := range res.Results {
		assert.Equal(t, ids[i], r.ID, "results keep request order")
		stored, err := f.store.GetByID(context.Background(), r.ID)
		require.NoError(t, err)
		if r.ID == illegal.ID {
			assert.False(t, r.Success)
			require.NotNil(t, r.Error)
			assert.Equal(t, errors.KindInvalidTransition, r.Error.Kind)
			assert.Equal(t, submission.StatusSubmitted, stored.Status)
			continue
		}
		assert.True(t, r.Success)
		assert.Equal(t, submission.StatusDraft, r.FromStatus)
		assert.Equal(t, submission.StatusValidated, stored.Status)
	}

	failures := f.store.Audit().ByAction(audit.ActionTransitionFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, illegal.ID, failures[0].EntityID)
	assert.Equal(t, res.BatchID, failures[0].Metadata["batch_id"])

	summary := f.store.Audit().ByAction(audit.ActionBatchTransition)
	require.Len(t, summary, 1)
	assert.Equal(t, audit.EntityBatch, summary[0].EntityType)
	assert.Equal(t, res.BatchID, summary[0].EntityID)
	assert.Equal(t, 4, summary[0].Metadata["success_count"])
	assert.Equal(t, []string{illegal.ID}, summary[0].Metadata["failed_ids"])
}

func TestBatchTransition_MissingIDsContinue(t *testing.T) {
	f := newFixture(t)
	ok := f.put("UST", submission.StatusDraft, nil)

	res, err := f.svc.BatchTransition(context.Background(), BatchRequest{IDs: []string{"missing", ok.ID}, Target: submission.StatusArchived})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, errors.KindNotFound, res.Results[0].Error.Kind)
}

func TestBatchTransition_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BatchTransition(context.Background(), BatchRequest{Target: submission.StatusValidated})
	assert.True(t, errors.IsKind(err, errors.KindInvalidParam))

	_, err = f.svc.BatchTransition(context.Background(), BatchRequest{IDs: []string{"a"}, Target: "DONE"})
	assert.True(t, errors.IsKind(err, errors.KindInvalidParam))

	big := make([]string, 501)
	_, err = f.svc.BatchTransition(context.Background(), BatchRequest{IDs: big, Target: submission.StatusValidated})
	assert.True(t, errors.IsKind(err, errors.KindInvalidParam))
	assert.Empty(t, f.store.Audit().All())
}

func TestBatchTransition_CancelledContext(t *testing.T) {
	f := newFixture(t)
	sub := f.put("UST", submission.StatusDraft, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.BatchTransition(ctx, BatchRequest{IDs: []string{sub.ID}, Target: submission.StatusValidated})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailCount)
	assert.Len(t, f.store.Audit().ByAction(audit.ActionBatchTransition), 1)
}
