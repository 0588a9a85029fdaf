// Package dispatch queues tool actions for a run and executes them exactly once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/logging"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/runs"
	"github.com/petasbytes/recagent/memory"
)

var (
	// ErrPollTimeout means no pending action appeared before the poll deadline.
	ErrPollTimeout = errors.New("poll timed out waiting for a pending action")
	// ErrRunCancelled means the run was cancelling or cancelled at a poll checkpoint.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrActionInFlight means the run already has an unresolved action.
	ErrActionInFlight = errors.New("run already has an unresolved action")
)

// StatusReader is the run status checkpoint used while polling.
type StatusReader interface {
	Status(ctx context.Context, runID string) (model.RunStatus, error)
}

// Queue creates, finds and resolves actions.
type Queue struct {
	store  memory.Store
	status StatusReader
	now    func() time.Time
	log    *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueClock overrides time.Now.
func WithQueueClock(now func() time.Time) QueueOption { return func(q *Queue) { q.now = now } }

// WithQueueLogger sets the queue logger.
func WithQueueLogger(l *zap.Logger) QueueOption { return func(q *Queue) { q.log = logging.OrNop(l) } }

// NewQueue returns a Queue over store.
func NewQueue(store memory.Store, status StatusReader, opts ...QueueOption) *Queue {
	q := &Queue{store: store, status: status, now: func() time.Time { return time.Now().UTC() }, log: zap.NewNop()}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue records a pending action for call that expires after timeout.
func (q *Queue) Enqueue(ctx context.Context, runID string, call model.ToolCall, timeout time.Duration) (model.Action, error) {
	if timeout <= 0 {
		return model.Action{}, model.Invalidf("action timeout must be positive, got %s", timeout)
	}
	if call.Name == "" {
		return model.Action{}, model.Invalidf("tool call has no name")
	}
	switch existing, err := q.store.UnresolvedAction(ctx, runID); {
	case err == nil:
		return model.Action{}, fmt.Errorf("%w: run %s action %s is %s", ErrActionInFlight, runID, existing.ID, existing.Status)
	case !errors.Is(err, memory.ErrNotFound):
		return model.Action{}, err
	}

	now := q.now()
	expires := now.Add(timeout)
	a := model.Action{
		ID:           uuid.NewString(),
		RunID:        runID,
		ToolName:     call.Name,
		FunctionArgs: call.Arguments,
		Status:       model.ActionPending,
		TriggeredAt:  now,
		ExpiresAt:    &expires,
	}
	if err := q.store.CreateAction(ctx, a); err != nil {
		return model.Action{}, fmt.Errorf("create action: %w", err)
	}
	q.log.Debug("action enqueued", zap.String("run_id", runID), zap.String("action_id", a.ID), zap.String("tool", a.ToolName))
	return a, nil
}

// PollOptions bounds a Poll. Both durations must be positive.
type PollOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Poll waits for a pending action of runID, checking every Interval until Timeout.
func (q *Queue) Poll(ctx context.Context, runID string, opts PollOptions) (model.Action, error) {
	if opts.Timeout <= 0 || opts.Interval <= 0 {
		return model.Action{}, model.Invalidf("poll timeout and interval must be positive (timeout=%s interval=%s)", opts.Timeout, opts.Interval)
	}
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	tick := time.NewTicker(opts.Interval)
	defer tick.Stop()

	for {
		s, err := q.status.Status(ctx, runID)
		if err != nil {
			return model.Action{}, err
		}
		if runs.IsCancelling(s) {
			return model.Action{}, fmt.Errorf("%w: run %s is %s", ErrRunCancelled, runID, s)
		}
		a, err := q.store.PendingAction(ctx, runID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, memory.ErrNotFound) {
			return model.Action{}, err
		}

		select {
		case <-ctx.Done():
			return model.Action{}, ctx.Err()
		case <-deadline.C:
			return model.Action{}, fmt.Errorf("%w after %s (run %s)", ErrPollTimeout, opts.Timeout, runID)
		case <-tick.C:
		}
	}
}

// Expire resolves an outstanding action as expired.
func (q *Queue) Expire(ctx context.Context, actionID string) (model.Action, error) {
	return q.resolve(ctx, actionID, model.ActionExpired)
}

// Cancel resolves an outstanding action as cancelled.
func (q *Queue) Cancel(ctx context.Context, actionID string) (model.Action, error) {
	return q.resolve(ctx, actionID, model.ActionCancelled)
}

// resolve moves an unresolved action to a final status. Already-resolved
// actions are returned unchanged.
func (q *Queue) resolve(ctx context.Context, actionID string, to model.ActionStatus) (model.Action, error) {
	for range casAttempts {
		a, err := q.store.GetAction(ctx, actionID)
		if err != nil {
			return model.Action{}, err
		}
		if a.Status.IsResolved() {
			return a, nil
		}
		now := q.now()
		updated, err := q.store.UpdateAction(ctx, actionID, a.Status, func(x *model.Action) {
			x.Status = to
			x.IsProcessed = true
			x.ProcessedAt = &now
		})
		if errors.Is(err, memory.ErrStatusConflict) {
			continue
		}
		if err == nil {
			q.log.Debug("action resolved", zap.String("action_id", actionID), zap.String("status", string(to)))
		}
		return updated, err
	}
	return model.Action{}, fmt.Errorf("resolve action %s: %w", actionID, memory.ErrStatusConflict)
}

// casAttempts bounds re-reads when a concurrent writer changes status under us.
const casAttempts = 4
