package windowing_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/windowing"
)

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestPrepareSendWindow_BudgetRespected_OrderPreserved(t *testing.T) {
	msgs := []model.Message{
		User("old"),         // G0: 3 + 4 = 7
		Asst("r", "a"),      // G1: (1 + 4)
		Tool("r", "T", "r"), //     + (1 + 1 + 4) = 11
		User("tail"),        // G2: 4 + 4 = 8
	}
	budget := 19

	window, stats := windowing.PrepareSendWindow(msgs, budget, windowing.HeuristicCounter{})

	if stats.Total != 19 || stats.IncludedGroups != 2 || stats.SkippedGroups != 1 || stats.OverBudgetNewest {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if diff := cmp.Diff([]string{"a", "r", "tail"}, contents(window)); diff != "" {
		t.Fatalf("window (-want +got):\n%s", diff)
	}
}

func TestPrepareSendWindow_NeverSplitsPair(t *testing.T) {
	msgs := []model.Message{
		Asst("r", "a"),      // 5
		Tool("r", "T", "r"), // 6, pair = 11
		User("tail"),        // 8
	}
	// 8 fits the newest group, 8+11 does not, and the tool message alone is never taken.
	window, stats := windowing.PrepareSendWindow(msgs, 14, windowing.HeuristicCounter{})
	if diff := cmp.Diff([]string{"tail"}, contents(window)); diff != "" {
		t.Fatalf("window (-want +got):\n%s", diff)
	}
	if stats.IncludedGroups != 1 || stats.SkippedGroups != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPrepareSendWindow_NewestGroupOverBudget(t *testing.T) {
	msgs := []model.Message{User("old"), Asst("r", "a"), Tool("r", "T", "xxxxxx")}
	window, stats := windowing.PrepareSendWindow(msgs, 10, windowing.HeuristicCounter{})
	if len(window) != 0 {
		t.Fatalf("expected empty window; got=%d", len(window))
	}
	if !stats.OverBudgetNewest || stats.IncludedGroups != 0 || stats.SkippedGroups != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPrepareSendWindow_NoCapacityBudget(t *testing.T) {
	window, stats := windowing.PrepareSendWindow([]model.Message{User("x")}, 0, windowing.HeuristicCounter{})
	if len(window) != 0 || !stats.OverBudgetNewest || stats.SkippedGroups != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPrepareSendWindow_EmptyMsgs(t *testing.T) {
	window, stats := windowing.PrepareSendWindow(nil, 123, windowing.HeuristicCounter{})
	if window != nil || stats.Budget != 123 || stats.Total != 0 || stats.OverBudgetNewest {
		t.Fatalf("unexpected result: window=%v stats=%+v", window, stats)
	}
}

func TestPrepareSendWindow_AllFit(t *testing.T) {
	msgs := []model.Message{User("oldest"), User("mid"), User("new")} // 10 + 7 + 7
	window, stats := windowing.PrepareSendWindow(msgs, 24, windowing.HeuristicCounter{})
	if stats.IncludedGroups != 3 || stats.SkippedGroups != 0 || stats.Total != 24 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if diff := cmp.Diff(contents(msgs), contents(window)); diff != "" {
		t.Fatalf("window (-want +got):\n%s", diff)
	}
}

func TestSendable(t *testing.T) {
	inProgress := model.Message{ID: "cur", Role: model.RoleAssistant}
	stale := model.Message{ID: "stale", Role: model.RoleAssistant, Content: "partial"}
	msgs := []model.Message{User("q"), stale, Asst("r", "done"), inProgress}
	got := windowing.Sendable(msgs, "cur")
	if diff := cmp.Diff([]string{"q", "done"}, contents(got)); diff != "" {
		t.Fatalf("sendable (-want +got):\n%s", diff)
	}
}
