package filing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// Receipt outcomes reported by the authority.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// ReceiptActor is recorded as the performer of receipt-driven transitions.
const ReceiptActor = "authority"

// Receipt is the authority's decision on a filed submission.
type Receipt struct {
	SubmissionID   string    `json:"submission_id"`
	TransferTicket string    `json:"transfer_ticket,omitempty"`
	Outcome        string    `json:"outcome"`
	Message        string    `json:"message,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Target maps the outcome to a status.
func (r Receipt) Target() (submission.Status, error) {
	switch strings.ToLower(strings.TrimSpace(r.Outcome)) {
	case OutcomeAccepted:
		return submission.StatusAccepted, nil
	case OutcomeRejected:
		return submission.StatusRejected, nil
	}
	return "", errors.InvalidParam(fmt.Sprintf("unknown receipt outcome %q", r.Outcome))
}

// HandleReceipt is idempotent: a receipt for a submission already in the
// target state returns a nil result and no error, so redelivered messages
// are acknowledged without a second audit entry.
func (s *serviceImpl) HandleReceipt(ctx context.Context, r Receipt) (*TransitionResult, error) {
	target, err := r.Target()
	if err != nil {
		return nil, err
	}
	sub, err := s.GetSubmission(ctx, r.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == target {
		s.logger.Debug("duplicate receipt ignored", logging.SubmissionID(sub.ID), logging.String("outcome", r.Outcome))
		return nil, nil
	}
	if r.TransferTicket != "" && sub.TransferTicket != nil && *sub.TransferTicket != r.TransferTicket {
		return nil, errors.InvalidParam("receipt transfer ticket does not match submission").
			WithDetail(fmt.Sprintf("submission %s has %s, receipt %s", sub.ID, *sub.TransferTicket, r.TransferTicket))
	}

	reason := "authority receipt: " + strings.ToLower(r.Outcome)
	if r.Message != "" {
		reason += " (" + r.Message + ")"
	}
	return s.Transition(ctx, TransitionRequest{ID: sub.ID, Target: target, Reason: reason, Actor: ReceiptActor})
}
