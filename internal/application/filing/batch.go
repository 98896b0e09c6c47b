package filing

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/TaxFlow/internal/domain/audit"
	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

// BatchRequest applies one target status to many submissions.
type BatchRequest struct {
	IDs    []string          `json:"ids"`
	Target submission.Status `json:"target"`
	Reason string            `json:"reason,omitempty"`
	Actor  string            `json:"-"`
}

// ItemResult is the outcome for one id, in request order.
type ItemResult struct {
	ID         string            `json:"id"`
	Success    bool              `json:"success"`
	FromStatus submission.Status `json:"from_status,omitempty"`
	ToStatus   submission.Status `json:"to_status,omitempty"`
	Error      *errors.Payload   `json:"error,omitempty"`
}

// BatchResult aggregates a batch. Partial completion is normal.
type BatchResult struct {
	BatchID      string       `json:"batch_id"`
	Target       string       `json:"target"`
	SuccessCount int          `json:"success_count"`
	FailCount    int          `json:"fail_count"`
	Results      []ItemResult `json:"results"`
}

// BatchTransition runs Transition per id with bounded concurrency. There is
// no cross-item atomicity: each item commits or fails on its own, failures
// are audited individually and a summary event is written for the batch.
func (s *serviceImpl) BatchTransition(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.IDs) == 0 {
		return nil, errors.InvalidParam("batch requires at least one submission id")
	}
	if len(req.IDs) > s.cfg.MaxBatchSize {
		return nil, errors.InvalidParam("batch too large").
			WithDetail(fmt.Sprintf("got %d ids, limit %d", len(req.IDs), s.cfg.MaxBatchSize))
	}
	if !req.Target.IsValid() {
		return nil, errors.InvalidParam(fmt.Sprintf("unknown target status %q", req.Target))
	}

	batchID := string(common.NewID())
	results := make([]ItemResult, len(req.IDs))

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, id := range req.IDs {
		i, id := i, id
		g.Go(func() error {
			results[i] = s.batchItem(ctx, batchID, TransitionRequest{
				ID: id, Target: req.Target, Reason: req.Reason, Actor: req.Actor,
			})
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{BatchID: batchID, Target: string(req.Target), Results: results}
	var failed []string
	for _, r := range results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.FailCount++
			failed = append(failed, r.ID)
		}
	}

	summary := audit.NewEvent(audit.EntityBatch, batchID, audit.ActionBatchTransition,
		fmt.Sprintf("batch transition to %s: %d succeeded, %d failed", req.Target, out.SuccessCount, out.FailCount),
		req.Actor, s.clock()).
		With("target", string(req.Target)).
		With("ids", req.IDs).
		With("success_count", out.SuccessCount).
		With("fail_count", out.FailCount)
	if len(failed) > 0 {
		summary.With("failed_ids", failed)
	}
	if req.Reason != "" {
		summary.With("reason", req.Reason)
	}
	if err := s.auditRepo.Append(context.WithoutCancel(ctx), summary); err != nil {
		s.logger.Error("failed to record batch summary", logging.String("batch_id", batchID), logging.Err(err))
	}

	s.metrics.RecordBatch(req.Target, len(req.IDs), out.FailCount)
	s.logger.Info("batch transition finished",
		logging.String("batch_id", batchID),
		logging.String("target", string(req.Target)),
		logging.Int("success", out.SuccessCount),
		logging.Int("failed", out.FailCount))
	return out, nil
}

func (s *serviceImpl) batchItem(ctx context.Context, batchID string, req TransitionRequest) ItemResult {
	item := ItemResult{ID: req.ID}
	if err := ctx.Err(); err != nil {
		item.Error = errors.ToPayload(errors.Wrap(err, errors.ErrCodeTimeout, "batch cancelled before item ran"))
		return item
	}
	res, err := s.transition(ctx, req)
	if err != nil {
		item.Error = errors.ToPayload(err)
		s.recordFailure(context.WithoutCancel(ctx), req, err, batchID)
		return item
	}
	item.Success = true
	item.FromStatus = res.From
	item.ToStatus = res.To
	return item
}
