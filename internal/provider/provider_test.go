package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/recagent/internal/detect"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
)

func drain(t *testing.T, s provider.Stream) ([]provider.Fragment, error) {
	t.Helper()
	defer s.Close()
	var out []provider.Fragment
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

func msg(role model.Role, content string) model.Message {
	return model.Message{Role: role, Content: content, IsLastChunk: true}
}

func TestTurns_FlattensRoles(t *testing.T) {
	tool := msg(model.RoleTool, `{"status":"success"}`)
	tool.ToolName = "get_item_details"
	system, turns := provider.Turns("be brief", []model.Message{
		msg(model.RoleSystem, "extra rule"),
		msg(model.RoleUser, "hi"),
		msg(model.RoleAssistant, `{"name":"get_item_details"}`),
		tool,
		msg(model.RoleUser, "and?"),
		msg(model.RoleAssistant, ""),
	})
	assert.Equal(t, "be brief\n\nextra rule", system)
	require.Len(t, turns, 3)
	assert.False(t, turns[0].Assistant)
	assert.True(t, turns[1].Assistant)
	assert.Equal(t, "Tool result (get_item_details):\n{\"status\":\"success\"}\n\nand?", turns[2].Text)
}

func TestRegistry(t *testing.T) {
	r := provider.DefaultRegistry()
	assert.Equal(t, []string{"anthropic", "demo", "gemini", "openai"}, r.Names())

	_, err := r.Open(context.Background(), "nope", provider.Credentials{})
	require.ErrorIs(t, err, provider.ErrUnknownProvider)

	s := provider.NewScripted(provider.Text("x"))
	r.Register("scripted", func(context.Context, provider.Credentials) (provider.Backend, error) { return s, nil })
	b, err := r.Open(context.Background(), "scripted", provider.Credentials{})
	require.NoError(t, err)
	assert.Same(t, s, b)
}

func TestScripted_ReplaysScriptsInOrder(t *testing.T) {
	s := provider.NewScripted(provider.Text("a", "b"), provider.Text("c"))
	ctx := context.Background()
	for _, want := range []string{"ab", "c", "c"} {
		st, err := s.Stream(ctx, provider.Request{Model: "m"})
		require.NoError(t, err)
		frags, err := drain(t, st)
		require.NoError(t, err)
		var b strings.Builder
		for _, f := range frags {
			b.WriteString(f.Content)
		}
		assert.Equal(t, want, b.String())
	}
	assert.Equal(t, 3, s.Calls())
	assert.Len(t, s.Requests(), 3)
}

func TestScripted_ErrorStepAndCloseUnblocks(t *testing.T) {
	boom := errors.New("boom")
	s := provider.NewScripted([]provider.Step{
		{Fragment: provider.Fragment{Type: provider.FragmentContent, Content: "partial"}},
		{Err: boom},
	})
	st, _ := s.Stream(context.Background(), provider.Request{})
	frags, err := drain(t, st)
	require.ErrorIs(t, err, boom)
	require.Len(t, frags, 1)

	slow := provider.NewScripted([]provider.Step{{Delay: time.Hour}})
	st, _ = slow.Stream(context.Background(), provider.Request{})
	done := make(chan bool)
	go func() { done <- st.Next() }()
	require.NoError(t, st.Close())
	select {
	case ok := <-done:
		assert.False(t, ok)
		assert.ErrorIs(t, st.Err(), context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Next")
	}
}

func TestDemo_RecommendationRoundTrip(t *testing.T) {
	d := provider.NewDemo(0)
	st, err := d.Stream(context.Background(), provider.Request{Messages: []model.Message{
		msg(model.RoleUser, "Recommend 5 action movies for user 10"),
	}})
	require.NoError(t, err)
	frags, err := drain(t, st)
	require.NoError(t, err)
	var text strings.Builder
	for _, f := range frags {
		text.WriteString(f.Content)
	}

	det := detect.Strict(text.String())
	require.Equal(t, detect.ToolCall, det.Kind, det.Err)
	assert.Equal(t, "get_top_k_recommendations", det.Call.Name)
	assert.Equal(t, map[string]any{
		"user":    int64(10),
		"k":       int64(5),
		"filters": map[string]any{"genres": []any{"action"}},
	}, det.Call.Arguments)

	tool := msg(model.RoleTool, `{"tool":"get_top_k_recommendations","status":"success","result":{"status":"success","items":[{"title":"Heat"},{"title":"Speed"}]}}`)
	st, _ = d.Stream(context.Background(), provider.Request{Messages: []model.Message{tool}})
	frags, _ = drain(t, st)
	text.Reset()
	for _, f := range frags {
		text.WriteString(f.Content)
	}
	assert.Equal(t, "Here are my picks: Heat, Speed.", text.String())
	assert.False(t, detect.Loose(text.String()))
}

func sse(t *testing.T, events string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, events)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropic_StreamsTextAndThinking(t *testing.T) {
	srv := sse(t, ""+
		"event: content_block_delta\n"+
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`+"\n\n"+
		"event: content_block_delta\n"+
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hello"}}`+"\n\n"+
		"event: message_stop\n"+
		`data: {"type":"message_stop"}`+"\n\n")

	b, err := provider.NewAnthropic(context.Background(), provider.Credentials{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)
	st, err := b.Stream(context.Background(), provider.Request{Model: "m", Messages: []model.Message{msg(model.RoleUser, "hi")}})
	require.NoError(t, err)
	frags, err := drain(t, st)
	require.NoError(t, err)
	assert.Equal(t, []provider.Fragment{
		{Type: provider.FragmentReasoning, Content: "hmm"},
		{Type: provider.FragmentContent, Content: "Hello"},
	}, frags)
}

func TestOpenAI_StreamsDeltas(t *testing.T) {
	chunk := func(s string) string {
		return `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"` + s + `"}}]}` + "\n\n"
	}
	srv := sse(t, chunk("Hel")+chunk("")+chunk("lo")+"data: [DONE]\n\n")

	b, err := provider.NewOpenAI(context.Background(), provider.Credentials{APIKey: "test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	st, err := b.Stream(context.Background(), provider.Request{Model: "m", Messages: []model.Message{msg(model.RoleUser, "hi")}})
	require.NoError(t, err)
	frags, err := drain(t, st)
	require.NoError(t, err)
	assert.Equal(t, []provider.Fragment{
		{Type: provider.FragmentContent, Content: "Hel"},
		{Type: provider.FragmentContent, Content: "lo"},
	}, frags)
}
