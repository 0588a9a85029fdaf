package provider

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// DefaultOpenAIModel is used when a request names no model.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

type openAIBackend struct {
	client openai.Client
}

// NewOpenAI builds a Chat Completions backend. An empty key falls back to OPENAI_API_KEY.
func NewOpenAI(_ context.Context, creds Credentials) (Backend, error) {
	var opts []option.RequestOption
	if creds.APIKey != "" {
		opts = append(opts, option.WithAPIKey(creds.APIKey))
	}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return &openAIBackend{client: openai.NewClient(opts...)}, nil
}

func (b *openAIBackend) Stream(ctx context.Context, req Request) (Stream, error) {
	system, turns := Turns(req.System, req.Messages)
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, t := range turns {
		if t.Assistant {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Model == "" {
		params.Model = DefaultOpenAIModel
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	return &openAIStream{raw: b.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

type openAIStream struct {
	raw sdkStream[openai.ChatCompletionChunk]
	cur Fragment
}

func (s *openAIStream) Next() bool {
	for s.raw.Next() {
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.cur = Fragment{Type: FragmentContent, Content: chunk.Choices[0].Delta.Content}
		return true
	}
	return false
}

func (s *openAIStream) Current() Fragment { return s.cur }
func (s *openAIStream) Err() error        { return s.raw.Err() }
func (s *openAIStream) Close() error      { return s.raw.Close() }
