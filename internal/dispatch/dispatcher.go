package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/petasbytes/recagent/internal/logging"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/telemetry"
	"github.com/petasbytes/recagent/memory"
	"github.com/petasbytes/recagent/tools"
)

// DefaultMaxResultRunes caps the result text placed in a tool message.
const DefaultMaxResultRunes = 16000

// toolMessageNS derives tool message ids from action ids.
var toolMessageNS = uuid.MustParse("6f1c2a52-8d0e-4d8b-9a57-2f4f0b0e7c11")

// ToolMessageID returns the deterministic id of the tool message for an action.
func ToolMessageID(actionID string) string {
	return uuid.NewSHA1(toolMessageNS, []byte(actionID)).String()
}

// Executor runs a tool by name. *tools.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// Outcome reports what Dispatch did with an action.
type Outcome struct {
	Action  model.Action
	Message *model.Message
	// Executed is false when the action had expired or another caller had already claimed it.
	Executed bool
	Success  bool
}

// Dispatcher claims pending actions and executes them through an Executor.
type Dispatcher struct {
	store    memory.Store
	exec     Executor
	group    singleflight.Group
	now      func() time.Time
	log      *zap.Logger
	maxRunes int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) DispatcherOption { return func(d *Dispatcher) { d.now = now } }

// WithLogger sets the dispatcher logger.
func WithLogger(l *zap.Logger) DispatcherOption { return func(d *Dispatcher) { d.log = logging.OrNop(l) } }

// WithMaxResultRunes caps tool result text; n <= 0 disables the cap.
func WithMaxResultRunes(n int) DispatcherOption { return func(d *Dispatcher) { d.maxRunes = n } }

// NewDispatcher returns a Dispatcher writing to store.
func NewDispatcher(store memory.Store, exec Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		exec:     exec,
		now:      func() time.Time { return time.Now().UTC() },
		log:      zap.NewNop(),
		maxRunes: DefaultMaxResultRunes,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch claims a, executes it and appends the tool message. Tool failures
// are recorded on the action and in the message; only storage errors are returned.
// Concurrent calls for the same action share one execution.
func (d *Dispatcher) Dispatch(ctx context.Context, a model.Action) (Outcome, error) {
	v, err, _ := d.group.Do(a.ID, func() (any, error) {
		return d.dispatch(ctx, a)
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func (d *Dispatcher) dispatch(ctx context.Context, a model.Action) (Outcome, error) {
	log := d.log.With(zap.String("run_id", a.RunID), zap.String("action_id", a.ID), zap.String("tool", a.ToolName))

	if a.Expired(d.now()) {
		expired, err := d.store.UpdateAction(ctx, a.ID, model.ActionPending, func(x *model.Action) {
			now := d.now()
			x.Status = model.ActionExpired
			x.IsProcessed = true
			x.ProcessedAt = &now
		})
		if errors.Is(err, memory.ErrStatusConflict) {
			return d.alreadyClaimed(ctx, a.ID)
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("expire action %s: %w", a.ID, err)
		}
		log.Info("action expired before dispatch")
		return Outcome{Action: expired}, nil
	}

	claimed, err := d.store.UpdateAction(ctx, a.ID, model.ActionPending, func(x *model.Action) {
		x.Status = model.ActionProcessing
	})
	if errors.Is(err, memory.ErrStatusConflict) {
		return d.alreadyClaimed(ctx, a.ID)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("claim action %s: %w", a.ID, err)
	}

	start := time.Now()
	result, execErr := d.exec.Execute(ctx, claimed.ToolName, claimed.FunctionArgs)
	elapsed := time.Since(start)

	var (
		status   = model.ActionCompleted
		payload  json.RawMessage
		envelope string
	)
	if execErr == nil {
		payload, err = json.Marshal(result)
		if err != nil {
			execErr = fmt.Errorf("result is not JSON-encodable: %w", err)
		}
	}
	if execErr != nil {
		status = model.ActionFailed
		payload, _ = json.Marshal(tools.Failure(execErr.Error()))
		envelope = d.failureEnvelope(claimed.ToolName, execErr.Error())
		log.Warn("tool failed", zap.Error(execErr), zap.Duration("elapsed", elapsed))
	} else {
		envelope = d.successEnvelope(claimed.ToolName, payload)
		log.Info("tool executed", zap.Duration("elapsed", elapsed), zap.Int("result_bytes", len(payload)))
	}
	emitToolExec(claimed, elapsed, len(payload), execErr)

	done, err := d.store.UpdateAction(ctx, a.ID, model.ActionProcessing, func(x *model.Action) {
		now := d.now()
		x.Status = status
		x.Result = payload
		x.IsProcessed = true
		x.ProcessedAt = &now
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("record action %s: %w", a.ID, err)
	}

	msg, err := d.appendToolMessage(ctx, done, envelope)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: done, Message: &msg, Executed: true, Success: status == model.ActionCompleted}, nil
}

// alreadyClaimed reports an action another caller is handling or has handled.
func (d *Dispatcher) alreadyClaimed(ctx context.Context, id string) (Outcome, error) {
	stored, err := d.store.GetAction(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	d.log.Debug("action already claimed", zap.String("action_id", id), zap.String("status", string(stored.Status)))
	return Outcome{Action: stored, Success: stored.Status == model.ActionCompleted}, nil
}

func (d *Dispatcher) appendToolMessage(ctx context.Context, a model.Action, envelope string) (model.Message, error) {
	run, err := d.store.GetRun(ctx, a.RunID)
	if err != nil {
		return model.Message{}, fmt.Errorf("load run %s: %w", a.RunID, err)
	}
	msg, err := model.NewMessage(run.ThreadID, model.RoleTool, envelope)
	if err != nil {
		return model.Message{}, err
	}
	msg.ID = ToolMessageID(a.ID)
	msg.RunID = a.RunID
	msg.AssistantID = run.AssistantID
	msg.ToolName = a.ToolName
	if err := d.store.AppendMessage(ctx, msg); err != nil {
		return model.Message{}, fmt.Errorf("append tool message: %w", err)
	}
	return msg, nil
}

// successEnvelope renders {"tool","status":"success","result"}. An oversized
// result is clamped and embedded as a string.
func (d *Dispatcher) successEnvelope(tool string, result json.RawMessage) string {
	env, _ := sjson.Set("", "tool", tool)
	env, _ = sjson.Set(env, "status", "success")
	if clamped, cut := tools.ClampRunes(string(result), d.maxRunes); cut {
		env, _ = sjson.Set(env, "result", clamped)
		return env
	}
	env, _ = sjson.SetRaw(env, "result", string(result))
	return env
}

func (d *Dispatcher) failureEnvelope(tool, msg string) string {
	env, _ := sjson.Set("", "tool", tool)
	env, _ = sjson.Set(env, "status", "failure")
	env, _ = sjson.Set(env, "error", msg)
	return env
}

// emitToolExec records sizes and timing only; raw arguments and results are never written.
func emitToolExec(a model.Action, elapsed time.Duration, outSize int, execErr error) {
	in, _ := json.Marshal(a.FunctionArgs)
	fields := map[string]any{
		"tool_name":   a.ToolName,
		"run_id":      a.RunID,
		"action_id":   a.ID,
		"duration_ms": elapsed.Milliseconds(),
		"input_size":  len(in),
		"output_size": outSize,
		"error":       nil,
	}
	switch {
	case errors.Is(execErr, tools.ErrToolNotFound):
		fields["error"] = "tool not found"
	case execErr != nil:
		fields["error"] = "tool error"
	}
	telemetry.Emit("tool_exec", fields)
}
