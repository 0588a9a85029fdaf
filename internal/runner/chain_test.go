package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/petasbytes/recagent/internal/dispatch"
	"github.com/petasbytes/recagent/internal/inference"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/retry"
	"github.com/petasbytes/recagent/internal/runner"
	"github.com/petasbytes/recagent/internal/runs"
	"github.com/petasbytes/recagent/memory"
	"github.com/petasbytes/recagent/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const toolCallJSON = `{"name":"get_top_k_recommendations","arguments":{"user":10,"k":2}}`

type harness struct {
	store   *memory.MemStore
	runs    *runs.Controller
	backend *provider.Scripted
	chain   *runner.Chain
	thread  model.Thread

	mu     sync.Mutex
	calls  []map[string]any
	events []runner.Event
}

type harnessConfig struct {
	dispatcher []dispatch.DispatcherOption
	wrap       func(memory.Store) memory.Store
}

type harnessOption func(*harnessConfig)

func withDispatcherClock(now func() time.Time) harnessOption {
	return func(c *harnessConfig) {
		c.dispatcher = append(c.dispatcher, dispatch.WithClock(now))
	}
}

func withStore(wrap func(memory.Store) memory.Store) harnessOption {
	return func(c *harnessConfig) { c.wrap = wrap }
}

// cancelOnCreate moves every new run straight to cancelling.
type cancelOnCreate struct{ memory.Store }

func (s cancelOnCreate) CreateRun(ctx context.Context, r model.Run) error {
	if err := s.Store.CreateRun(ctx, r); err != nil {
		return err
	}
	_, err := s.Store.UpdateRun(ctx, r.ID, model.RunQueued, func(run *model.Run) { run.Status = model.RunCancelling })
	return err
}

func newHarness(t *testing.T, scripts [][]provider.Step, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{store: memory.NewStore(), backend: provider.NewScripted(scripts...)}
	h.thread = model.NewThread([]string{"u1"}, nil)
	require.NoError(t, h.store.CreateThread(ctx, h.thread))

	reg := provider.NewRegistry()
	reg.Register("scripted", func(context.Context, provider.Credentials) (provider.Backend, error) { return h.backend, nil })
	reg.Register("demo", func(context.Context, provider.Credentials) (provider.Backend, error) { return provider.NewDemo(0), nil })

	toolset := tools.MustRegistry(tools.ToolDefinition{
		Name:        "get_top_k_recommendations",
		Description: "test recommender",
		InputSchema: tools.TopKDefinition.InputSchema,
		Function: func(_ context.Context, args map[string]any) (any, error) {
			h.mu.Lock()
			h.calls = append(h.calls, args)
			h.mu.Unlock()
			return map[string]any{"status": "success", "items": []map[string]any{{"id": 1, "title": "Heat"}, {"id": 2, "title": "Speed"}}}, nil
		},
	})

	settings := runner.DefaultSettings()
	settings.Provider = "scripted"
	settings.TimeoutPerChunk = time.Second
	settings.PollTimeout = time.Second
	settings.PollInterval = 5 * time.Millisecond
	settings.Retry = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	var cfg harnessConfig
	for _, o := range opts {
		o(&cfg)
	}
	var store memory.Store = h.store
	if cfg.wrap != nil {
		store = cfg.wrap(store)
	}

	h.runs = runs.New(store)
	h.chain = runner.New(runner.Deps{
		Store:      store,
		Runs:       h.runs,
		Inference:  inference.NewClient(store, reg),
		Queue:      dispatch.NewQueue(store, h.runs),
		Dispatcher: dispatch.NewDispatcher(store, toolset, cfg.dispatcher...),
		Tools:      toolset,
	}, settings)
	return h
}

func (h *harness) request(content string) runner.TurnRequest {
	return runner.TurnRequest{
		UserID:      "u1",
		ThreadID:    h.thread.ID,
		AssistantID: "asst",
		Content:     content,
		Sink: func(e runner.Event) {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		},
	}
}

func (h *harness) statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		if e.Type == runner.EventStatus {
			out = append(out, e.Status)
		}
	}
	return out
}

func (h *harness) messages(t *testing.T) []model.Message {
	t.Helper()
	msgs, err := h.store.ListMessages(context.Background(), h.thread.ID)
	require.NoError(t, err)
	return msgs
}

func roles(msgs []model.Message) []model.Role {
	out := make([]model.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestTurn_DemoRecommendationEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	req := h.request("Recommend 5 action movies for user 10")
	req.Provider = "demo"

	res, err := h.chain.Turn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Equal(t, "Here are my picks: Heat, Speed.", res.Text)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Zero(t, res.Rounds)

	want := []map[string]any{{"user": int64(10), "k": int64(5), "filters": map[string]any{"genres": []any{"action"}}}}
	if diff := cmp.Diff(want, h.calls); diff != "" {
		t.Fatalf("tool args (-want +got):\n%s", diff)
	}

	msgs := h.messages(t)
	assert.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleAssistant}, roles(msgs))
	for _, m := range msgs {
		assert.True(t, m.IsLastChunk, "message %s not finalized", m.ID)
	}
	assert.Equal(t, []string{
		runner.StatusToolExecutionComplete,
		runner.StatusGeneratingFinalResponse,
		string(model.RunCompleted),
	}, h.statuses())
}

func TestTurn_PlainAnswerCompletesWithoutTools(t *testing.T) {
	h := newHarness(t, [][]provider.Step{provider.Text("Hello", " there")})
	res, err := h.chain.Turn(context.Background(), h.request("hi"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Equal(t, "Hello there", res.Text)
	assert.Zero(t, res.ToolCalls)
	assert.Equal(t, 1, h.backend.Calls())

	// The system prompt carries the tool protocol.
	assert.Contains(t, h.backend.Requests()[0].System, "get_top_k_recommendations")
}

func TestTurn_SingleToolRoundWhenFinalHasNoBraces(t *testing.T) {
	h := newHarness(t, [][]provider.Step{
		provider.Text(toolCallJSON[:20], toolCallJSON[20:]),
		provider.Text("Heat and Speed."),
	})
	res, err := h.chain.Turn(context.Background(), h.request("recommend something"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Zero(t, res.Rounds)
	assert.Equal(t, 2, h.backend.Calls())
	assert.Len(t, h.calls, 1)

	actions, err := h.store.ListActions(context.Background(), res.Run.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionCompleted, actions[0].Status)
}

func (h *harness) correctivePrompts(t *testing.T) int {
	t.Helper()
	var n int
	for _, m := range h.messages(t) {
		if m.Role == model.RoleUser && m.Content == runner.CorrectivePrompt {
			n++
		}
	}
	return n
}

func TestTurn_TwoLooseDetectionsGiveTwoCorrectiveRounds(t *testing.T) {
	h := newHarness(t, [][]provider.Step{
		provider.Text(toolCallJSON),
		provider.Text("Picks: {Heat}"),
		provider.Text(toolCallJSON),
		provider.Text("Picks: {Heat, Speed}"),
		provider.Text("Heat and Speed."),
	})
	res, err := h.chain.Turn(context.Background(), h.request("recommend"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 2, res.ToolCalls)
	assert.Equal(t, "Heat and Speed.", res.Text)
	assert.Equal(t, 5, h.backend.Calls())
	assert.Equal(t, 2, h.correctivePrompts(t))
}

func TestTurn_MalformedThenLooseRounds(t *testing.T) {
	h := newHarness(t, [][]provider.Step{
		provider.Text(toolCallJSON + " Let me know."),
		provider.Text(toolCallJSON),
		provider.Text(`I would call {"name":"get_top_k_recommendations"} again.`),
		provider.Text(toolCallJSON),
		provider.Text("Done: Heat, Speed."),
	})
	res, err := h.chain.Turn(context.Background(), h.request("recommend"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 2, res.ToolCalls)
	assert.Equal(t, "Done: Heat, Speed.", res.Text)
	assert.Equal(t, 1, h.correctivePrompts(t))
}

func TestTurn_ProseQuotingJSONCompletes(t *testing.T) {
	h := newHarness(t, [][]provider.Step{provider.Text(`I suggest Heat. Entry: {"name": "Heat", "year": 1995}`)})
	res, err := h.chain.Turn(context.Background(), h.request("recommend"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Zero(t, res.Rounds)
	assert.Equal(t, 1, h.backend.Calls())
}

func TestTurn_RoundLimitFailsRun(t *testing.T) {
	h := newHarness(t, [][]provider.Step{provider.Text(`{"name":"x","arguments":{}} text`)})
	res, err := h.chain.Turn(context.Background(), h.request("go"))
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, res.Run.Status)
	assert.Contains(t, res.Run.LastError, "exceeded maximum of 3 corrective tool-call rounds")
	assert.Equal(t, runner.DefaultMaxCorrectiveRounds, res.Rounds)
	assert.Equal(t, runner.DefaultMaxCorrectiveRounds+1, h.backend.Calls())
}

func TestTurn_CancelledWhileQueued(t *testing.T) {
	h := newHarness(t, [][]provider.Step{provider.Text("never")},
		withStore(func(s memory.Store) memory.Store { return cancelOnCreate{s} }))

	res, err := h.chain.Turn(context.Background(), h.request("hi"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCancelled, res.Run.Status)
	assert.Zero(t, h.backend.Calls())

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	last := msgs[1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, res.Run.ID, last.RunID)
	assert.True(t, last.IsLastChunk)
	assert.Empty(t, last.Content)
}

func TestTurn_CancelledRunStopsPass(t *testing.T) {
	h := newHarness(t, [][]provider.Step{provider.Text("one", "two", "three")})
	req := h.request("hi")
	inner := req.Sink
	var once sync.Once
	req.Sink = func(e runner.Event) {
		inner(e)
		if e.Type == string(provider.FragmentContent) {
			once.Do(func() {
				_, err := h.runs.RequestCancel(context.Background(), e.RunID)
				assert.NoError(t, err)
			})
		}
	}

	res, err := h.chain.Turn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunCancelled, res.Run.Status)
	assert.Equal(t, "one", res.Text)

	msgs := h.messages(t)
	last := msgs[len(msgs)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.True(t, last.IsLastChunk)
	assert.Equal(t, "one", last.Content)
}

func TestTurn_ContextCancelBeforeFirstFragment(t *testing.T) {
	h := newHarness(t, [][]provider.Step{{{Delay: time.Second, Fragment: provider.Fragment{Type: provider.FragmentContent, Content: "late"}}}})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := h.chain.Turn(ctx, h.request("hi"))
	require.NoError(t, err)
	assert.Equal(t, model.RunCancelled, res.Run.Status)
	assert.Empty(t, res.Text)

	msgs := h.messages(t)
	last := msgs[len(msgs)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.True(t, last.IsLastChunk)
	assert.Empty(t, last.Content)
}

func TestTurn_ExpiredActionExpiresRun(t *testing.T) {
	late := func() time.Time { return time.Now().Add(time.Hour) }
	h := newHarness(t, [][]provider.Step{provider.Text(toolCallJSON)}, withDispatcherClock(late))

	res, err := h.chain.Turn(context.Background(), h.request("recommend"))
	require.NoError(t, err)
	assert.Equal(t, model.RunExpired, res.Run.Status)
	assert.NotNil(t, res.Run.ExpiredAt)
	assert.Empty(t, h.calls)

	actions, err := h.store.ListActions(context.Background(), res.Run.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionExpired, actions[0].Status)
}

func TestTurn_BackendErrorFailsRun(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.OpenErr = errors.New("401 unauthorized")

	res, err := h.chain.Turn(context.Background(), h.request("hi"))
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, res.Run.Status)
	assert.Contains(t, res.Run.LastError, "401 unauthorized")
	assert.Len(t, h.backend.Requests(), 1, "backend errors are not retried")
}

func TestTurn_RetriesAfterChunkTimeout(t *testing.T) {
	slow := []provider.Step{{Delay: 500 * time.Millisecond, Fragment: provider.Fragment{Type: provider.FragmentContent, Content: "late"}}}
	h := newHarness(t, [][]provider.Step{slow, provider.Text("on time")})
	req := h.request("hi")
	req.TimeoutPerChunk = 20 * time.Millisecond

	res, err := h.chain.Turn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, res.Run.Status)
	assert.Equal(t, "on time", res.Text)
	assert.Equal(t, 2, h.backend.Calls())
	assert.Contains(t, h.statuses(), runner.StatusRetrying)

	var assistants int
	for _, m := range h.messages(t) {
		if m.Role == model.RoleAssistant {
			assistants++
		}
	}
	assert.Equal(t, 1, assistants, "a retried pass reuses its message")
}

func TestTurn_RejectsInvalidInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.chain.Turn(context.Background(), h.request("   "))
	assert.ErrorIs(t, err, model.ErrInputValidation)

	req := h.request("hi")
	req.ThreadID = "missing"
	_, err = h.chain.Turn(context.Background(), req)
	assert.ErrorIs(t, err, memory.ErrNotFound)
	assert.Zero(t, h.backend.Calls())
}
