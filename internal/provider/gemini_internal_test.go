package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestPartsOf_SplitsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: ""},
			{Text: "answer"},
		}},
	}}}
	assert.Equal(t, []Fragment{
		{Type: FragmentReasoning, Content: "thinking"},
		{Type: FragmentContent, Content: "answer"},
	}, partsOf(resp))
	assert.Nil(t, partsOf(nil))
	assert.Nil(t, partsOf(&genai.GenerateContentResponse{}))
}

func TestGeminiStream_PullsQueuedParts(t *testing.T) {
	responses := []*genai.GenerateContentResponse{
		{Candidates: []*genai.Candidate{{Content: genai.NewContentFromText("a", genai.RoleModel)}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "b"}, {Text: "c"}}}}}},
	}
	i := 0
	stopped := false
	s := &geminiStream{
		next: func() (*genai.GenerateContentResponse, error, bool) {
			if i == len(responses) {
				return nil, nil, false
			}
			i++
			return responses[i-1], nil, true
		},
		stop: func() { stopped = true },
	}
	var got []string
	for s.Next() {
		got = append(got, s.Current().Content)
	}
	assert.NoError(t, s.Err())
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.NoError(t, s.Close())
	assert.True(t, stopped)
}
