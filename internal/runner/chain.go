package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/detect"
	"github.com/petasbytes/recagent/internal/dispatch"
	"github.com/petasbytes/recagent/internal/inference"
	"github.com/petasbytes/recagent/internal/logging"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/retry"
	"github.com/petasbytes/recagent/internal/runs"
	"github.com/petasbytes/recagent/internal/telemetry"
	"github.com/petasbytes/recagent/memory"
	"github.com/petasbytes/recagent/tools"
)

// ErrRoundLimit is recorded when a turn needs more corrective rounds than allowed.
var ErrRoundLimit = errors.New("corrective round limit exceeded")

// CorrectivePrompt asks the model to re-emit a tool call it wrapped in prose.
const CorrectivePrompt = "Please, use the generated JSON to call the tool. It should be enough that you regenerate the same JSON for the tool call to be effective."

// MalformedPrompt asks the model to resend an unusable tool call as bare JSON.
const MalformedPrompt = `Your last reply looked like a tool call but could not be used. Reply with ONLY the JSON object {"name": "<tool name>", "arguments": {...}} and nothing else.`

// errRunCancelled is internal: a checkpoint saw the run cancelling.
var errRunCancelled = errors.New("run is cancelling")

// Deps are the process-wide collaborators of a Chain.
type Deps struct {
	Store      memory.Store
	Runs       *runs.Controller
	Inference  *inference.Client
	Queue      *dispatch.Queue
	Dispatcher *dispatch.Dispatcher
	Tools      *tools.Registry
	Log        *zap.Logger
}

// Chain runs turns. Build it once and share it; it holds no per-turn state.
type Chain struct {
	deps     Deps
	settings Settings
	log      *zap.Logger
}

// New returns a Chain.
func New(deps Deps, settings Settings) *Chain {
	return &Chain{deps: deps, settings: settings, log: logging.OrNop(deps.Log)}
}

// Settings returns the chain defaults.
func (c *Chain) Settings() Settings { return c.settings }

// TurnRequest is one user message to answer. Zero-valued overrides use the chain settings.
type TurnRequest struct {
	UserID      string
	ThreadID    string
	AssistantID string
	Content     string
	Credentials provider.Credentials

	Provider        string
	Model           string
	Instructions    string
	TimeoutPerChunk time.Duration
	PollTimeout     time.Duration
	PollInterval    time.Duration

	Sink Sink
}

// TurnResult describes how a turn ended.
type TurnResult struct {
	Run       model.Run
	Text      string
	ToolCalls int
	Rounds    int
}

type turn struct {
	req      TurnRequest
	settings Settings
	run      model.Run
	system   string
	log      *zap.Logger
	text     string
	passes   int
	calls    int
	rounds   int
}

// Turn answers req. Run outcomes (completed, failed, expired, cancelled) are
// reported in the result; an error is returned only for invalid input and
// storage failures.
func (c *Chain) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	settings, err := c.settings.merge(req)
	if err != nil {
		return TurnResult{}, err
	}
	if strings.TrimSpace(req.AssistantID) == "" {
		return TurnResult{}, model.Invalidf("assistant id is required")
	}
	userMsg, err := model.NewMessage(req.ThreadID, model.RoleUser, req.Content)
	if err != nil {
		return TurnResult{}, err
	}
	if _, err := c.deps.Store.GetThread(ctx, req.ThreadID); err != nil {
		return TurnResult{}, err
	}
	if err := c.deps.Store.AppendMessage(ctx, userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}
	run, err := c.deps.Runs.Create(ctx, req.ThreadID, req.AssistantID, runs.CreateOptions{
		Provider: settings.Provider,
		Model:    settings.Model,
		Tools:    c.deps.Tools.Names(),
	})
	if err != nil {
		return TurnResult{}, err
	}

	t := &turn{
		req:      req,
		settings: settings,
		run:      run,
		system:   systemPrompt(settings.Instructions, c.deps.Tools),
		log:      c.log.With(zap.String("run_id", run.ID), zap.String("thread_id", req.ThreadID)),
	}
	ctx = telemetry.WithRunID(ctx, run.ID)
	ctx = logging.WithContext(ctx, t.log)
	telemetry.EmitTextFeatures(ctx, "user", req.Content)

	err = c.drive(ctx, t)
	return c.finish(ctx, t, err)
}

func systemPrompt(instructions string, reg *tools.Registry) string {
	proto := reg.Protocol()
	switch {
	case proto == "":
		return instructions
	case instructions == "":
		return proto
	}
	return instructions + "\n\n" + proto
}

// drive runs passes until the turn reaches a stopping point. A nil error
// means the run should complete.
func (c *Chain) drive(ctx context.Context, t *turn) error {
	if err := c.advance(ctx, t, model.RunInProgress); err != nil {
		return err
	}
	final := false
	for {
		res, err := c.pass(ctx, t)
		t.text = res.Text
		if err != nil {
			return err
		}

		if final {
			if !detect.Loose(res.Text) {
				return nil
			}
			if err := c.corrective(ctx, t, CorrectivePrompt, "loose"); err != nil {
				return err
			}
			final = false
			continue
		}

		det := detect.Strict(res.Text)
		switch det.Kind {
		case detect.NoToolCall:
			return nil
		case detect.Malformed:
			t.log.Info("malformed tool call", zap.Error(det.Err))
			if err := c.corrective(ctx, t, MalformedPrompt, "malformed"); err != nil {
				return err
			}
		case detect.ToolCall:
			if err := c.toolRound(ctx, t, det.Call); err != nil {
				return err
			}
			final = true
			t.req.Sink.status(t.run.ID, StatusGeneratingFinalResponse)
		}
	}
}

// pass streams one assistant message under the retry policy and always finalizes it.
func (c *Chain) pass(ctx context.Context, t *turn) (inference.PassResult, error) {
	msg := model.NewAssistantMessage(t.req.ThreadID, t.req.AssistantID, t.run.ID)
	if err := c.deps.Store.AppendMessage(ctx, msg); err != nil {
		return inference.PassResult{}, storageErr(fmt.Errorf("append assistant message: %w", err))
	}
	t.passes++

	status := func(ctx context.Context) (model.RunStatus, error) {
		return c.deps.Runs.Status(ctx, t.run.ID)
	}
	sink := func(f provider.Fragment) { t.req.Sink.fragment(t.run.ID, f) }
	policy := t.settings.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		t.log.Warn("retrying stream pass", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		t.req.Sink.status(t.run.ID, StatusRetrying)
	}

	var res inference.PassResult
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		p := c.deps.Inference.Setup(inference.Binding{
			UserID:      t.req.UserID,
			ThreadID:    t.req.ThreadID,
			AssistantID: t.req.AssistantID,
			MessageID:   msg.ID,
			RunID:       t.run.ID,
			System:      t.system,
			Credentials: t.req.Credentials,
		})
		res = p.Consume(ctx, status, sink, t.settings.Provider, t.settings.Model, t.settings.TimeoutPerChunk)
		return res.Err
	})

	if _, ferr := c.deps.Store.FinalizeMessage(context.WithoutCancel(ctx), msg.ID, res.Text); ferr != nil {
		return res, storageErr(fmt.Errorf("finalize assistant message: %w", ferr))
	}
	switch {
	case res.Cancelled:
		return res, errRunCancelled
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, errRunCancelled
	case errors.Is(err, inference.ErrBackend), errors.Is(err, retry.ErrRetriesExhausted),
		errors.Is(err, inference.ErrChunkTimeout), errors.Is(err, inference.ErrConnection):
		return res, err
	}
	return res, storageErr(err)
}

// toolRound enqueues, polls and dispatches one call, leaving the run in_progress.
func (c *Chain) toolRound(ctx context.Context, t *turn, call model.ToolCall) error {
	t.calls++
	if err := c.advance(ctx, t, model.RunActionRequired); err != nil {
		return err
	}
	if _, err := c.deps.Queue.Enqueue(ctx, t.run.ID, call, t.settings.PollTimeout); err != nil {
		return storageErr(err)
	}
	action, err := c.deps.Queue.Poll(ctx, t.run.ID, dispatch.PollOptions{
		Timeout:  t.settings.PollTimeout,
		Interval: t.settings.PollInterval,
	})
	switch {
	case errors.Is(err, dispatch.ErrPollTimeout):
		return errExpired{cause: err}
	case errors.Is(err, dispatch.ErrRunCancelled), ctx.Err() != nil:
		return errRunCancelled
	case err != nil:
		return storageErr(err)
	}

	out, err := c.deps.Dispatcher.Dispatch(ctx, action)
	if err != nil {
		return storageErr(err)
	}
	if out.Action.Status == model.ActionExpired {
		return errExpired{cause: fmt.Errorf("action %s expired before dispatch", action.ID)}
	}
	t.req.Sink.status(t.run.ID, StatusToolExecutionComplete)
	return c.advance(ctx, t, model.RunInProgress)
}

// corrective appends a follow-up user message, counting it against the round limit.
func (c *Chain) corrective(ctx context.Context, t *turn, prompt, reason string) error {
	if t.rounds >= t.settings.MaxCorrectiveRounds {
		return fmt.Errorf("%w: exceeded maximum of %d corrective tool-call rounds", ErrRoundLimit, t.settings.MaxCorrectiveRounds)
	}
	t.rounds++
	msg, err := model.NewMessage(t.req.ThreadID, model.RoleUser, prompt)
	if err != nil {
		return err
	}
	msg.RunID = t.run.ID
	if err := c.deps.Store.AppendMessage(ctx, msg); err != nil {
		return storageErr(fmt.Errorf("append corrective message: %w", err))
	}
	telemetry.Emit("corrective_round", map[string]any{"run_id": t.run.ID, "round": t.rounds, "reason": reason})
	t.log.Info("corrective round", zap.Int("round", t.rounds), zap.String("reason", reason))
	t.req.Sink.status(t.run.ID, StatusCorrectiveRound)
	return nil
}

// advance transitions the run, reporting a concurrent cancel as errRunCancelled.
func (c *Chain) advance(ctx context.Context, t *turn, target model.RunStatus, opts ...runs.TransitionOption) error {
	r, err := c.deps.Runs.Transition(ctx, t.run.ID, target, opts...)
	if err == nil {
		t.run = r
		return nil
	}
	if errors.Is(err, runs.ErrInvalidTransition) && runs.IsCancelling(r.Status) {
		return errRunCancelled
	}
	return storageErr(err)
}

// finish maps the drive outcome onto a terminal run status.
func (c *Chain) finish(ctx context.Context, t *turn, cause error) (TurnResult, error) {
	wctx := context.WithoutCancel(ctx)
	var retErr error
	var expired errExpired
	var storage errStorage

	switch {
	case cause == nil:
		if err := c.advance(wctx, t, model.RunCompleted); errors.Is(err, errRunCancelled) {
			retErr = c.cancel(wctx, t)
		} else {
			retErr = err
		}
	case errors.Is(cause, errRunCancelled):
		retErr = c.cancel(wctx, t)
	case errors.As(cause, &expired):
		retErr = c.expire(wctx, t, expired.cause)
	case errors.As(cause, &storage):
		_ = c.fail(wctx, t, cause)
		retErr = storage.err
	default:
		retErr = c.fail(wctx, t, cause)
	}

	if r, err := c.deps.Runs.Get(wctx, t.run.ID); err == nil {
		t.run = r
	}
	t.req.Sink.status(t.run.ID, string(t.run.Status))
	t.log.Info("turn finished",
		zap.String("status", string(t.run.Status)),
		zap.Int("tool_calls", t.calls),
		zap.Int("corrective_rounds", t.rounds),
		zap.String("last_error", t.run.LastError),
	)
	return TurnResult{Run: t.run, Text: t.text, ToolCalls: t.calls, Rounds: t.rounds}, retErr
}

// fail moves the run to failed, passing through in_progress when it waits on an action.
func (c *Chain) fail(ctx context.Context, t *turn, cause error) error {
	if t.run.Status == model.RunActionRequired {
		c.resolveAction(ctx, t, c.deps.Queue.Cancel)
		if err := c.advance(ctx, t, model.RunInProgress); err != nil {
			if errors.Is(err, errRunCancelled) {
				return c.cancel(ctx, t)
			}
			return err
		}
	}
	err := c.advance(ctx, t, model.RunFailed, runs.WithError(cause.Error()))
	if errors.Is(err, errRunCancelled) {
		return c.cancel(ctx, t)
	}
	return err
}

func (c *Chain) expire(ctx context.Context, t *turn, cause error) error {
	c.resolveAction(ctx, t, c.deps.Queue.Expire)
	err := c.advance(ctx, t, model.RunExpired, runs.WithError(cause.Error()))
	if errors.Is(err, errRunCancelled) {
		return c.cancel(ctx, t)
	}
	return err
}

// cancel resolves any outstanding action and completes cancelling→cancelled.
// A run cancelled before its first pass still gets a finalized, empty assistant message.
func (c *Chain) cancel(ctx context.Context, t *turn) error {
	c.resolveAction(ctx, t, c.deps.Queue.Cancel)
	if t.passes == 0 {
		if err := c.emptyReply(ctx, t); err != nil {
			return err
		}
	}
	r, err := c.deps.Runs.RequestCancel(ctx, t.run.ID)
	if err != nil {
		return err
	}
	t.run = r
	if r.Status != model.RunCancelling {
		return nil
	}
	return c.advance(ctx, t, model.RunCancelled)
}

func (c *Chain) emptyReply(ctx context.Context, t *turn) error {
	msg := model.NewAssistantMessage(t.req.ThreadID, t.req.AssistantID, t.run.ID)
	if err := c.deps.Store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	t.passes++
	if _, err := c.deps.Store.FinalizeMessage(ctx, msg.ID, ""); err != nil {
		return fmt.Errorf("finalize assistant message: %w", err)
	}
	return nil
}

func (c *Chain) resolveAction(ctx context.Context, t *turn, resolve func(context.Context, string) (model.Action, error)) {
	a, err := c.deps.Store.UnresolvedAction(ctx, t.run.ID)
	if err != nil {
		return
	}
	if _, err := resolve(ctx, a.ID); err != nil {
		t.log.Warn("resolve action failed", zap.String("action_id", a.ID), zap.Error(err))
	}
}

type errExpired struct{ cause error }

func (e errExpired) Error() string { return "expired: " + e.cause.Error() }
func (e errExpired) Unwrap() error { return e.cause }

// errStorage marks errors the caller must see after best-effort cleanup.
type errStorage struct{ err error }

func (e errStorage) Error() string { return e.err.Error() }
func (e errStorage) Unwrap() error { return e.err }

func storageErr(err error) error {
	if err == nil || errors.Is(err, errRunCancelled) {
		return err
	}
	return errStorage{err: err}
}
