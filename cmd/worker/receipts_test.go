package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/application/filing"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type mockSink struct{ mock.Mock }

func (m *mockSink) HandleReceipt(ctx context.Context, r filing.Receipt) (*filing.TransitionResult, error) {
	args := m.Called(ctx, r)
	res, _ := args.Get(0).(*filing.TransitionResult)
	return res, args.Error(1)
}

type recorder struct{ errs []error }

func (r *recorder) RecordReceipt(err error) { r.errs = append(r.errs, err) }

func TestReceiptProcessor_MapsPayload(t *testing.T) {
	at := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	sink := &mockSink{}
	sink.On("HandleReceipt", mock.Anything, filing.Receipt{
		SubmissionID: "s-1", TransferTicket: "TT-1", Outcome: "accepted", Message: "ok", ReceivedAt: at,
	}).Return(&filing.TransitionResult{From: submission.StatusSubmitted, To: submission.StatusAccepted}, nil)
	rec := &recorder{}

	process := newReceiptProcessor(sink, rec, logging.NewNopLogger())
	err := process(context.Background(), kafka.ReceiptPayload{
		SubmissionID: "s-1", TransferTicket: "TT-1", Outcome: "accepted", Message: "ok", ReceivedAt: at,
	})
	require.NoError(t, err)
	sink.AssertExpectations(t)
	assert.Equal(t, []error{nil}, rec.errs)
}

func TestReceiptProcessor_DuplicateIsNoop(t *testing.T) {
	sink := &mockSink{}
	sink.On("HandleReceipt", mock.Anything, mock.Anything).Return(nil, nil)
	process := newReceiptProcessor(sink, nil, logging.NewNopLogger())
	assert.NoError(t, process(context.Background(), kafka.ReceiptPayload{SubmissionID: "s-1", Outcome: "rejected"}))
}

func TestReceiptProcessor_PropagatesErrors(t *testing.T) {
	sink := &mockSink{}
	notFound := errors.New(errors.ErrCodeSubmissionNotFound, "submission not found")
	sink.On("HandleReceipt", mock.Anything, mock.Anything).Return(nil, notFound)
	rec := &recorder{}

	process := newReceiptProcessor(sink, rec, logging.NewNopLogger())
	err := process(context.Background(), kafka.ReceiptPayload{SubmissionID: "gone", Outcome: "accepted"})
	require.Error(t, err)
	assert.False(t, kafka.IsRetryable(err))
	require.Len(t, rec.errs, 1)
	assert.Error(t, rec.errs[0])
}
