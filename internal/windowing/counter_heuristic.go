package windowing

import (
	"unicode/utf8"

	"github.com/petasbytes/recagent/internal/model"
)

// TokenCounter estimates input-token cost for messages or groups.
type TokenCounter interface {
	CountMessage(m model.Message) int
	CountGroup(g Group, all []model.Message) int
}

// HeuristicCounter is the deterministic default estimator.
// Rules:
// - content: rune count
// - tool messages also count the tool name, which backends render as a prefix
// - a fixed per-message overhead for role markers
type HeuristicCounter struct{}

// Fixed per-message overhead for deterministic counts; changing this requires updating the guard test.
const blockOverhead = 4

func (HeuristicCounter) CountMessage(m model.Message) int {
	n := utf8.RuneCountInString(m.Content) + blockOverhead
	if m.Role == model.RoleTool {
		n += utf8.RuneCountInString(m.ToolName)
	}
	return n
}

func (h HeuristicCounter) CountGroup(g Group, all []model.Message) int {
	return sumGroup(h, g, all)
}

func sumGroup(c TokenCounter, g Group, all []model.Message) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += c.CountMessage(all[i])
	}
	return total
}
