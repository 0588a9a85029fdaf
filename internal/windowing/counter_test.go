package windowing_test

import (
	"testing"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/windowing"
)

func TestHeuristicCounter_CountsRunes(t *testing.T) {
	h := windowing.HeuristicCounter{}
	overhead := h.CountMessage(User(""))
	if overhead != 4 {
		t.Fatalf("per-message overhead changed: %d", overhead)
	}
	// "héllo 世界" is 8 runes.
	if got := h.CountMessage(User("héllo 世界")); got != 8+overhead {
		t.Fatalf("got=%d want=%d", got, 8+overhead)
	}
}

func TestHeuristicCounter_ToolMessageCountsName(t *testing.T) {
	h := windowing.HeuristicCounter{}
	got := h.CountMessage(Tool("r", "abc", "xyz"))
	if got != 3+3+4 {
		t.Fatalf("got=%d want=10", got)
	}
}

func TestHeuristicCounter_CountGroup_SumsMessages(t *testing.T) {
	h := windowing.HeuristicCounter{}
	msgs := []model.Message{User("a"), Asst("r", "bc"), Tool("r", "T", "xyz")}
	g := windowing.Group{Kind: windowing.GroupPair, Start: 1, End: 3}
	if got, want := h.CountGroup(g, msgs), (2+4)+(1+3+4); got != want {
		t.Fatalf("got=%d want=%d", got, want)
	}
	// End past the slice is clamped.
	if got := h.CountGroup(windowing.Group{Start: 2, End: 9}, msgs); got != 1+3+4 {
		t.Fatalf("clamped group: got=%d", got)
	}
}

func TestTiktokenCounter(t *testing.T) {
	c, err := windowing.NewTiktokenCounter()
	if err != nil {
		t.Skipf("encoder unavailable: %v", err)
	}
	empty := c.CountMessage(User(""))
	if empty != 4 {
		t.Fatalf("empty message: got=%d want=4", empty)
	}
	short := c.CountMessage(User("hello"))
	long := c.CountMessage(User("hello there, please recommend three action movies from the nineties"))
	if short <= empty || long <= short {
		t.Fatalf("counts not monotonic: empty=%d short=%d long=%d", empty, short, long)
	}
}

func TestDefaultCounter_NotNil(t *testing.T) {
	if windowing.DefaultCounter() == nil {
		t.Fatal("nil counter")
	}
}
