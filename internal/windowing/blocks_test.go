package windowing_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/windowing"
)

func TestGroupBlocks_Invariants(t *testing.T) {
	single := func(i int) windowing.Group {
		return windowing.Group{Kind: windowing.GroupSingleton, Start: i, End: i + 1}
	}
	pair := func(i int) windowing.Group {
		return windowing.Group{Kind: windowing.GroupPair, Start: i, End: i + 2}
	}
	tests := []struct {
		name string
		msgs []model.Message
		want []windowing.Group
	}{
		{
			name: "tool call followed by its result",
			msgs: []model.Message{Asst("r1", `{"name":"T"}`), Tool("r1", "T", "{}")},
			want: []windowing.Group{pair(0)},
		},
		{
			name: "failure result pairs the same way",
			msgs: []model.Message{Asst("r1", `{"name":"T"}`), Tool("r1", "T", `{"status":"failure"}`)},
			want: []windowing.Group{pair(0)},
		},
		{
			name: "result from another run breaks the pair",
			msgs: []model.Message{Asst("r1", "x"), Tool("r2", "T", "{}")},
			want: []windowing.Group{single(0), single(1)},
		},
		{
			name: "intervening user message invalidates adjacency",
			msgs: []model.Message{Asst("r1", "x"), User("hm"), Tool("r1", "T", "{}")},
			want: []windowing.Group{single(0), single(1), single(2)},
		},
		{
			name: "assistant not followed by tool",
			msgs: []model.Message{Asst("r1", "x")},
			want: []windowing.Group{single(0)},
		},
		{
			name: "restored messages without run ids still pair",
			msgs: []model.Message{User("q"), Asst("", "x"), Tool("", "T", "{}"), Asst("", "done")},
			want: []windowing.Group{single(0), pair(1), single(3)},
		},
		{
			name: "orphan tool message is a singleton",
			msgs: []model.Message{Tool("r1", "T", "{}"), User("q")},
			want: []windowing.Group{single(0), single(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := windowing.GroupBlocks(tt.msgs)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("groups (-want +got):\n%s", diff)
			}
		})
	}
}
