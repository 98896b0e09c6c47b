package e2e_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/pkg/client"
)

func TestLifecycle_DraftToArchived(t *testing.T) {
	subs := env.preparer.Submissions()
	sub := newKAP(t, 120)

	val, err := subs.Validate(testContext(t), sub.ID)
	require.NoError(t, err)
	assert.True(t, val.IsReadyForFiling)
	assert.Empty(t, val.Issues)

	doc, err := subs.GenerateDocument(testContext(t), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, doc.Submission)
	require.NotNil(t, doc.Submission.XMLContent)
	assert.Contains(t, *doc.Submission.XMLContent, "1000")
	assert.Positive(t, doc.Bytes)
	assert.Equal(t, "VALIDATED", doc.Submission.Status, "generating from DRAFT validates the submission")

	res, err := subs.Transition(testContext(t), sub.ID, &client.TransitionRequest{
		Target: "SUBMITTED", TransferTicket: "ELSTER-4711",
	})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATED", res.From)
	assert.Equal(t, "SUBMITTED", res.To)
	require.NotNil(t, res.Submission.TransferTicket)
	assert.Equal(t, "ELSTER-4711", *res.Submission.TransferTicket)
	assert.NotNil(t, res.Submission.SubmissionDate)

	_, err = transition(t, env.preparer, sub.ID, "ACCEPTED")
	require.NoError(t, err)
	res, err = transition(t, env.preparer, sub.ID, "ARCHIVED")
	require.NoError(t, err)
	assert.NotNil(t, res.Submission.ArchivedAt)

	_, err = transition(t, env.preparer, sub.ID, "ARCHIVED")
	apiErr := requireAPIError(t, err, http.StatusConflict)
	assert.Equal(t, "InvalidTransition", apiErr.Kind)

	got, err := env.viewer.Submissions().Get(testContext(t), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVED", got.Status)

	trail, err := subs.AuditTrail(testContext(t), sub.ID, 0)
	require.NoError(t, err)
	acts := actions(trail)
	assert.Contains(t, acts, "created")
	assert.Contains(t, acts, "validated")
	assert.Contains(t, acts, "document_generated")
	assert.Contains(t, acts, "status_changed")
	assert.Contains(t, acts, "transition_failed")
}

func TestLifecycle_CorrectionUnlocksFiling(t *testing.T) {
	subs := env.preparer.Submissions()
	sub := newKAP(t, 200)

	val, err := subs.Validate(testContext(t), sub.ID)
	require.NoError(t, err)
	assert.False(t, val.IsReadyForFiling)
	require.NotEmpty(t, val.Issues)

	_, err = transition(t, env.preparer, sub.ID, "VALIDATED")
	require.NoError(t, err)

	_, err = transition(t, env.preparer, sub.ID, "SUBMITTED")
	apiErr := requireAPIError(t, err, http.StatusUnprocessableEntity)
	assert.Equal(t, "ValidationFailed", apiErr.Kind)

	_, err = env.viewer.Submissions().Update(testContext(t), sub.ID, &client.UpdateSubmissionRequest{
		FormData: map[string]interface{}{"withholdingTax": 120},
	})
	requireAPIError(t, err, http.StatusForbidden)

	updated, err := subs.Update(testContext(t), sub.ID, &client.UpdateSubmissionRequest{
		FormData: map[string]interface{}{"withholdingTax": 120},
		Reason:   "withholding tax taken from the bank certificate",
	})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATED", updated.Status)
	assert.Equal(t, float64(120), updated.FormData["withholdingTax"])
	assert.Empty(t, updated.ValidationErrors)

	val, err = subs.Validate(testContext(t), sub.ID)
	require.NoError(t, err)
	assert.True(t, val.IsReadyForFiling)

	res, err := transition(t, env.preparer, sub.ID, "SUBMITTED")
	require.NoError(t, err)
	assert.Equal(t, "VALIDATED", res.From)
	assert.NotNil(t, res.Submission.SubmissionDate)

	_, err = subs.Update(testContext(t), sub.ID, &client.UpdateSubmissionRequest{
		FormData: map[string]interface{}{"withholdingTax": 100},
	})
	assert.True(t, requireAPIError(t, err, http.StatusConflict).IsConflict())

	trail, err := subs.AuditTrail(testContext(t), sub.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, actions(trail), "form_data_updated")
}

func TestLifecycle_BatchTransitionReportsEachItem(t *testing.T) {
	ids := []string{newKAP(t, 100).ID, newKAP(t, 100).ID, "does-not-exist"}

	res, err := env.preparer.Submissions().BatchTransition(testContext(t), &client.BatchTransitionRequest{
		IDs: ids, Target: "VALIDATED", Reason: "e2e batch",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailCount)
	require.Len(t, res.Results, 3)
	for _, item := range res.Results {
		if item.ID == "does-not-exist" {
			assert.False(t, item.Success)
			require.NotNil(t, item.Error)
			assert.Equal(t, "NotFound", item.Error.Kind)
			continue
		}
		assert.True(t, item.Success)
		assert.Equal(t, "DRAFT", item.FromStatus)
		assert.Equal(t, "VALIDATED", item.ToStatus)
	}
}

func TestLifecycle_ListFiltersBySubject(t *testing.T) {
	sub := newKAP(t, 100)
	page, err := env.viewer.Submissions().List(testContext(t), &client.ListOptions{SubjectRef: sub.SubjectRef})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sub.ID, page.Items[0].ID)
	assert.EqualValues(t, 1, page.Total)
}

func TestAccess_RolesAreEnforced(t *testing.T) {
	_, err := env.anon.Submissions().List(testContext(t), nil)
	assert.True(t, requireAPIError(t, err, http.StatusUnauthorized).IsUnauthorized())

	_, err = env.viewer.Submissions().Create(testContext(t), &client.CreateSubmissionRequest{
		TaxYear: 2023, FormType: "UST", Jurisdiction: "DE", SubjectRef: "viewer",
	})
	requireAPIError(t, err, http.StatusForbidden)
}
