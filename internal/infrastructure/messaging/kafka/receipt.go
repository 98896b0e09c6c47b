package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// ReceiptPayload is the authority's decision as published on the receipt
// topic.
type ReceiptPayload struct {
	SubmissionID   string    `json:"submission_id"`
	TransferTicket string    `json:"transfer_ticket,omitempty"`
	Outcome        string    `json:"outcome"`
	Message        string    `json:"message,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// DecodeReceipt extracts a receipt from a consumed message. Both enveloped
// and bare JSON payloads are accepted.
func DecodeReceipt(msg *Message) (ReceiptPayload, error) {
	env, err := EnvelopeFromMessage(msg)
	if err != nil {
		return ReceiptPayload{}, errors.InvalidParam("malformed receipt message").WithCause(err)
	}
	var r ReceiptPayload
	if env.EventType != "" {
		if env.EventType != EventAuthorityReceipt {
			return ReceiptPayload{}, errors.InvalidParam("unexpected event type").WithDetail(env.EventType)
		}
		if err := env.DecodePayload(&r); err != nil {
			return ReceiptPayload{}, errors.InvalidParam("malformed receipt payload").WithCause(err)
		}
	} else if err := decodeBare(msg.Value, &r); err != nil {
		return ReceiptPayload{}, err
	}

	if strings.TrimSpace(r.SubmissionID) == "" {
		return ReceiptPayload{}, errors.InvalidParam("receipt without submission id")
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = msg.Timestamp
	}
	return r, nil
}

func decodeBare(raw []byte, r *ReceiptPayload) error {
	env := EventEnvelope{Payload: raw}
	if err := env.DecodePayload(r); err != nil {
		return errors.InvalidParam("malformed receipt payload").WithCause(err)
	}
	return nil
}

// ReceiptHandler adapts process to a MessageHandler. Permanent failures are
// logged and swallowed so the offset advances; transient ones are returned
// for retry.
func ReceiptHandler(process func(ctx context.Context, r ReceiptPayload) error, logger logging.Logger) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		r, err := DecodeReceipt(msg)
		if err != nil {
			logger.Warn("Discarding malformed receipt", logging.Int64("offset", msg.Offset), logging.Err(err))
			return nil
		}
		if err := process(ctx, r); err != nil {
			if !IsRetryable(err) {
				logger.Warn("Receipt rejected",
					logging.SubmissionID(r.SubmissionID),
					logging.String("outcome", r.Outcome),
					logging.Err(err))
				return nil
			}
			return err
		}
		return nil
	}
}
