package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/logging"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/telemetry"
	"github.com/petasbytes/recagent/memory"
)

// ErrInvalidTransition is returned for any edge outside the transition table.
var ErrInvalidTransition = errors.New("invalid run transition")

// casAttempts bounds re-reads when a concurrent writer changes status under us.
const casAttempts = 4

// StatusCache mirrors run status for cheap checkpoint reads.
type StatusCache interface {
	Get(ctx context.Context, runID string) (model.RunStatus, bool, error)
	Set(ctx context.Context, runID string, s model.RunStatus) error
	Delete(ctx context.Context, runID string) error
}

// Controller owns every Run status mutation.
type Controller struct {
	store memory.Store
	cache StatusCache
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache mirrors statuses into c.
func WithCache(c StatusCache) Option { return func(ctl *Controller) { ctl.cache = c } }

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option { return func(ctl *Controller) { ctl.log = logging.OrNop(l) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(ctl *Controller) { ctl.now = now } }

// New returns a Controller over store.
func New(store memory.Store, opts ...Option) *Controller {
	c := &Controller{store: store, log: zap.NewNop(), now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateOptions carries the run's model binding.
type CreateOptions struct {
	Provider string
	Model    string
	Tools    []string
}

// Create persists a queued Run.
func (c *Controller) Create(ctx context.Context, threadID, assistantID string, opts CreateOptions) (model.Run, error) {
	if strings.TrimSpace(threadID) == "" {
		return model.Run{}, model.Invalidf("thread id is required")
	}
	if strings.TrimSpace(assistantID) == "" {
		return model.Run{}, model.Invalidf("assistant id is required")
	}
	r := model.Run{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		AssistantID: assistantID,
		Status:      model.RunQueued,
		Provider:    opts.Provider,
		Model:       opts.Model,
		Tools:       opts.Tools,
		CreatedAt:   c.now(),
	}
	if err := c.store.CreateRun(ctx, r); err != nil {
		return model.Run{}, fmt.Errorf("create run: %w", err)
	}
	c.mirror(ctx, r.ID, r.Status)
	c.log.Debug("run created", zap.String("run_id", r.ID), zap.String("thread_id", threadID))
	return r, nil
}

// Get returns the stored Run.
func (c *Controller) Get(ctx context.Context, runID string) (model.Run, error) {
	return c.store.GetRun(ctx, runID)
}

// TransitionOption adjusts the run alongside a status change.
type TransitionOption func(*model.Run)

// WithError records msg as the run's last error.
func WithError(msg string) TransitionOption {
	return func(r *model.Run) { r.LastError = msg }
}

// Transition moves runID to target. Illegal edges fail with ErrInvalidTransition and change nothing.
func (c *Controller) Transition(ctx context.Context, runID string, target model.RunStatus, opts ...TransitionOption) (model.Run, error) {
	for attempt := 0; ; attempt++ {
		cur, err := c.store.GetRun(ctx, runID)
		if err != nil {
			return model.Run{}, err
		}
		if !CanTransition(cur.Status, target) {
			return cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, target)
		}
		now := c.now()
		updated, err := c.store.UpdateRun(ctx, runID, cur.Status, func(r *model.Run) {
			r.Status = target
			stamp(r, target, now)
			for _, o := range opts {
				o(r)
			}
		})
		if errors.Is(err, memory.ErrStatusConflict) && attempt+1 < casAttempts {
			continue
		}
		if err != nil {
			return cur, fmt.Errorf("transition %s -> %s: %w", cur.Status, target, err)
		}
		c.mirror(ctx, runID, target)
		c.log.Info("run transition",
			zap.String("run_id", runID),
			zap.String("from", string(cur.Status)),
			zap.String("to", string(target)),
			zap.String("last_error", updated.LastError),
		)
		telemetry.Emit("run_transition", map[string]any{
			"run_id": runID,
			"from":   string(cur.Status),
			"to":     string(target),
		})
		return updated, nil
	}
}

// RequestCancel moves a live run to cancelling. Already cancelling or terminal runs are returned unchanged.
func (c *Controller) RequestCancel(ctx context.Context, runID string) (model.Run, error) {
	r, err := c.Transition(ctx, runID, model.RunCancelling)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, ErrInvalidTransition) && (r.Status == model.RunCancelling || r.Status.IsTerminal()) {
		return r, nil
	}
	return r, err
}

// Status returns the current status. Cached cancelling and terminal statuses
// are final and answer directly; any other hit is confirmed against the store.
func (c *Controller) Status(ctx context.Context, runID string) (model.RunStatus, error) {
	if c.cache != nil {
		s, ok, err := c.cache.Get(ctx, runID)
		if err != nil {
			c.log.Warn("status cache read failed", zap.String("run_id", runID), zap.Error(err))
		} else if ok && (IsCancelling(s) || s.IsTerminal()) {
			return s, nil
		}
	}
	r, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

// mirror writes s to the cache. A failed write drops the key so readers fall back to the store.
func (c *Controller) mirror(ctx context.Context, runID string, s model.RunStatus) {
	if c.cache == nil {
		return
	}
	err := c.cache.Set(ctx, runID, s)
	if err == nil {
		return
	}
	c.log.Warn("status cache write failed", zap.String("run_id", runID), zap.String("status", string(s)), zap.Error(err))
	if err := c.cache.Delete(ctx, runID); err != nil {
		c.log.Warn("status cache evict failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func stamp(r *model.Run, s model.RunStatus, now time.Time) {
	switch s {
	case model.RunInProgress:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	case model.RunCompleted:
		r.CompletedAt = &now
	case model.RunFailed:
		r.FailedAt = &now
	case model.RunCancelled:
		r.CancelledAt = &now
	case model.RunExpired:
		r.ExpiredAt = &now
	}
}
