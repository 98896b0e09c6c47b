package main

import (
	"context"

	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
)

type receiptRecorder interface {
	RecordReceipt(err error)
}

type receiptSink interface {
	HandleReceipt(ctx context.Context, r filing.Receipt) (*filing.TransitionResult, error)
}

// newReceiptProcessor applies authority receipts to submissions.
func newReceiptProcessor(svc receiptSink, rec receiptRecorder, logger logging.Logger) func(context.Context, kafka.ReceiptPayload) error {
	return func(ctx context.Context, p kafka.ReceiptPayload) error {
		res, err := svc.HandleReceipt(ctx, filing.Receipt{
			SubmissionID:   p.SubmissionID,
			TransferTicket: p.TransferTicket,
			Outcome:        p.Outcome,
			Message:        p.Message,
			ReceivedAt:     p.ReceivedAt,
		})
		if rec != nil {
			rec.RecordReceipt(err)
		}
		if err != nil {
			return err
		}
		if res != nil {
			logger.Info("Receipt applied",
				logging.SubmissionID(p.SubmissionID),
				logging.String("from", string(res.From)),
				logging.String("to", string(res.To)))
		}
		return nil
	}
}
