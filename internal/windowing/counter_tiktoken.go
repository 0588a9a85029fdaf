package windowing

import (
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"

	"github.com/petasbytes/recagent/internal/model"
)

// TiktokenCounter counts BPE tokens with the o200k_base encoding plus the
// same per-message overhead as HeuristicCounter.
type TiktokenCounter struct {
	enc tokenizer.Codec
}

// NewTiktokenCounter loads the encoder. Callers fall back to HeuristicCounter on error.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (t *TiktokenCounter) CountMessage(m model.Message) int {
	n := t.count(m.Content) + blockOverhead
	if m.Role == model.RoleTool {
		n += t.count(m.ToolName)
	}
	return n
}

func (t *TiktokenCounter) CountGroup(g Group, all []model.Message) int {
	return sumGroup(t, g, all)
}

func (t *TiktokenCounter) count(s string) int {
	if s == "" {
		return 0
	}
	ids, _, err := t.enc.Encode(s)
	if err != nil {
		return utf8.RuneCountInString(s)
	}
	return len(ids)
}

// DefaultCounter prefers the tiktoken encoder and degrades to the heuristic.
func DefaultCounter() TokenCounter {
	if c, err := NewTiktokenCounter(); err == nil {
		return c
	}
	vlogf("counter: tiktoken unavailable, using heuristic")
	return HeuristicCounter{}
}
