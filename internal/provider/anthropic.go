package provider

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when a request names no model.
const DefaultAnthropicModel = anthropic.ModelClaude3_7SonnetLatest

const defaultMaxTokens = 1024

type anthropicBackend struct {
	client anthropic.Client
}

// NewAnthropic builds a Messages API backend. An empty key falls back to ANTHROPIC_API_KEY.
func NewAnthropic(_ context.Context, creds Credentials) (Backend, error) {
	var opts []option.RequestOption
	if creds.APIKey != "" {
		opts = append(opts, option.WithAPIKey(creds.APIKey))
	}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return &anthropicBackend{client: anthropic.NewClient(opts...)}, nil
}

func (b *anthropicBackend) Stream(ctx context.Context, req Request) (Stream, error) {
	system, turns := Turns(req.System, req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if req.Model == "" {
		params.Model = DefaultAnthropicModel
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaultMaxTokens
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range turns {
		if t.Assistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	return &anthropicStream{raw: b.client.Messages.NewStreaming(ctx, params)}, nil
}

type anthropicStream struct {
	raw sdkStream[anthropic.MessageStreamEventUnion]
	cur Fragment
}

// Next skips framing events and surfaces text and thinking deltas.
func (s *anthropicStream) Next() bool {
	for s.raw.Next() {
		ev, ok := s.raw.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		switch d := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			s.cur = Fragment{Type: FragmentContent, Content: d.Text}
			return true
		case anthropic.ThinkingDelta:
			s.cur = Fragment{Type: FragmentReasoning, Content: d.Thinking}
			return true
		}
	}
	return false
}

func (s *anthropicStream) Current() Fragment { return s.cur }
func (s *anthropicStream) Err() error        { return s.raw.Err() }
func (s *anthropicStream) Close() error      { return s.raw.Close() }
