package windowing

import "github.com/petasbytes/recagent/internal/model"

// Stats summarizes the result of window preparation.
//
// Fields:
// - Total: estimated tokens for included groups only.
// - Budget: the input token budget used.
// - IncludedGroups: number of groups included.
// - SkippedGroups: total groups minus IncludedGroups.
// - OverBudgetNewest: true when the newest single group alone exceeds Budget.
type Stats struct {
	Total            int
	Budget           int
	IncludedGroups   int
	SkippedGroups    int
	OverBudgetNewest bool
}

// Sendable drops messages a backend must not see: the in-progress assistant
// message identified by exclude and every assistant message not yet finalized.
func Sendable(msgs []model.Message, exclude string) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == exclude {
			continue
		}
		if m.Role == model.RoleAssistant && !m.IsLastChunk {
			continue
		}
		out = append(out, m)
	}
	return out
}

// PrepareSendWindow returns the newest suffix of msgs (kept oldest→newest) that
// fits budget under c, never splitting a group.
//
// Rules:
// - Whole groups are taken newest→oldest until the next one would overflow.
// - If the newest group alone exceeds budget the window is empty and OverBudgetNewest is set.
// - A budget ≤ 0 yields an empty window (OverBudgetNewest set when any groups exist).
func PrepareSendWindow(msgs []model.Message, budget int, c TokenCounter) ([]model.Message, Stats) {
	if len(msgs) == 0 {
		return nil, Stats{Budget: budget}
	}
	groups := GroupBlocks(msgs)
	if budget <= 0 {
		return nil, Stats{Budget: budget, SkippedGroups: len(groups), OverBudgetNewest: true}
	}

	total, included := 0, 0
	start := len(groups)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := c.CountGroup(groups[gi], msgs)
		if included == 0 && cost > budget {
			vlogf("reason=over_budget_newest_group budget=%d cost=%d", budget, cost)
			return nil, Stats{Budget: budget, SkippedGroups: len(groups), OverBudgetNewest: true}
		}
		if total+cost > budget {
			break
		}
		total += cost
		included++
		start = gi
	}

	return msgs[groups[start].Start:], Stats{
		Total:          total,
		Budget:         budget,
		IncludedGroups: included,
		SkippedGroups:  len(groups) - included,
	}
}
