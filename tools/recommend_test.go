package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/petasbytes/recagent/tools"
)

const testCatalog = `{
  "items": [
    {"id": 1, "title": "Heat", "genres": ["Action", "Crime"], "year": 1995, "popularity": 9.1},
    {"id": 2, "title": "Speed", "genres": ["Action"], "year": 1994, "popularity": 8.0},
    {"id": 3, "title": "Amelie", "genres": ["Romance"], "year": 2001, "popularity": 8.5},
    {"id": 4, "title": "Die Hard", "genres": ["action"], "year": 1988, "popularity": 9.5},
    {"id": 5, "title": "Ronin", "genres": ["Action"], "year": 1998, "popularity": 7.2},
    {"id": 6, "title": "Face/Off", "genres": ["Action"], "year": 1997, "popularity": 7.2}
  ],
  "history": {"10": [4]}
}`

func itemIDs(t *testing.T, out any) []int {
	t.Helper()
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	items, ok := m["items"].([]tools.Item)
	if !ok {
		t.Fatalf("items missing: %v", m)
	}
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestTopK_FiltersHistoryAndOrders(t *testing.T) {
	writeData(t, rel(t, "catalog.json"), testCatalog)
	out, err := tools.TopK(context.Background(), map[string]any{
		"user":    int64(10),
		"k":       int64(3),
		"filters": map[string]any{"genres": []any{"action"}},
		"catalog": rel(t, "catalog.json"),
	})
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	// Die Hard is in user 10's history; Ronin and Face/Off tie and break on id.
	got := itemIDs(t, out)
	want := []int{1, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestTopK_YearFilterNoMatchIsFailurePayload(t *testing.T) {
	writeData(t, rel(t, "catalog.json"), testCatalog)
	out, err := tools.TopK(context.Background(), map[string]any{
		"user": 1, "k": 5,
		"filters": map[string]any{"min_year": 2020},
		"catalog": rel(t, "catalog.json"),
	})
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if out.(map[string]any)["status"] != "failure" {
		t.Fatalf("want failure payload, got %v", out)
	}
}

func TestTopK_InvalidK(t *testing.T) {
	if _, err := tools.TopK(context.Background(), map[string]any{"user": 1, "k": 0}); err == nil {
		t.Fatal("expected error for k=0")
	}
}

func TestTopK_MissingCatalogIsFailurePayload(t *testing.T) {
	out, err := tools.TopK(context.Background(), map[string]any{"user": 1, "k": 1, "catalog": rel(t, "nope.json")})
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if out.(map[string]any)["status"] != "failure" {
		t.Fatalf("want failure payload, got %v", out)
	}
}

func TestItemDetails(t *testing.T) {
	writeData(t, rel(t, "catalog.json"), testCatalog)
	out, err := tools.ItemDetails(context.Background(), map[string]any{
		"item_ids": []any{3, 99},
		"catalog":  rel(t, "catalog.json"),
	})
	if err != nil {
		t.Fatalf("ItemDetails: %v", err)
	}
	if ids := itemIDs(t, out); len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("found ids: %v", ids)
	}
	missing := out.(map[string]any)["missing"].([]int)
	if len(missing) != 1 || missing[0] != 99 {
		t.Fatalf("missing ids: %v", missing)
	}

	if _, err := tools.ItemDetails(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for empty item_ids")
	}
}

func TestTopK_ThroughRegistryWrapsDecodeErrors(t *testing.T) {
	r := tools.MustRegistry(tools.Defaults()...)
	_, err := r.Execute(context.Background(), "get_top_k_recommendations", map[string]any{"user": "ten", "k": 1})
	var te *tools.ToolExecutionError
	if !errors.As(err, &te) {
		t.Fatalf("want ToolExecutionError, got %v", err)
	}
}
