package e2e_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/pkg/client"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newKAP creates an ANLAGE_KAP draft for a fresh subject.
func newKAP(t *testing.T, withholding float64) *client.Submission {
	t.Helper()
	sub, err := env.preparer.Submissions().Create(testContext(t), &client.CreateSubmissionRequest{
		TaxYear:      2023,
		FormType:     "ANLAGE_KAP",
		Jurisdiction: "DE",
		SubjectRef:   "e2e-" + uuid.NewString(),
		FormData: map[string]interface{}{
			"grossDividends": 1000.0,
			"withholdingTax": withholding,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "DRAFT", sub.Status)
	return sub
}

func transition(t *testing.T, c *client.Client, id, target string) (*client.TransitionResult, error) {
	t.Helper()
	return c.Submissions().Transition(testContext(t), id, &client.TransitionRequest{Target: target})
}

func requireAPIError(t *testing.T, err error, status int) *client.APIError {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	require.True(t, stderrors.As(err, &apiErr), "expected an API error, got %v", err)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Message)
	return apiErr
}

func actions(events []client.AuditEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}
