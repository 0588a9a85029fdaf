package provider

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when a request names no model.
const DefaultGeminiModel = "gemini-2.5-flash"

type geminiBackend struct {
	client *genai.Client
}

// NewGemini builds a Gemini API backend. An empty key falls back to GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGemini(ctx context.Context, creds Credentials) (Backend, error) {
	cfg := &genai.ClientConfig{APIKey: creds.APIKey, Backend: genai.BackendGeminiAPI}
	if creds.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = creds.BaseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}
	return &geminiBackend{client: client}, nil
}

func (b *geminiBackend) Stream(ctx context.Context, req Request) (Stream, error) {
	system, turns := Turns(req.System, req.Messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Assistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	modelName := req.Model
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	next, stop := iter.Pull2(b.client.Models.GenerateContentStream(ctx, modelName, contents, cfg))
	return &geminiStream{next: next, stop: stop}, nil
}

// geminiStream turns the SDK's push iterator into the pull shape.
// One response may carry several parts, so fragments are queued.
type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []Fragment
	cur     Fragment
	err     error
}

func (s *geminiStream) Next() bool {
	for len(s.pending) == 0 {
		if s.err != nil {
			return false
		}
		resp, err, ok := s.next()
		if !ok {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		s.pending = partsOf(resp)
	}
	s.cur, s.pending = s.pending[0], s.pending[1:]
	return true
}

func partsOf(resp *genai.GenerateContentResponse) []Fragment {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []Fragment
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Text == "" {
			continue
		}
		typ := FragmentContent
		if p.Thought {
			typ = FragmentReasoning
		}
		out = append(out, Fragment{Type: typ, Content: p.Text})
	}
	return out
}

func (s *geminiStream) Current() Fragment { return s.cur }
func (s *geminiStream) Err() error        { return s.err }

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}
