package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/tools"
)

func TestDefaults_ToolNames(t *testing.T) {
	r := tools.MustRegistry(tools.Defaults()...)
	want := []string{"get_item_details", "get_top_k_recommendations", "list_catalogs"}
	got := r.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("names: got %v want %v", got, want)
	}
	for _, d := range r.Definitions() {
		var schema map[string]any
		if err := json.Unmarshal(d.Parameters, &schema); err != nil {
			t.Fatalf("%s: schema is not JSON: %v", d.Name, err)
		}
		if schema["type"] != "object" {
			t.Errorf("%s: schema type = %v", d.Name, schema["type"])
		}
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	if _, err := tools.NewRegistry(tools.ToolDefinition{Name: "", Function: noop}); !errors.Is(err, model.ErrInputValidation) {
		t.Fatalf("empty name: got %v", err)
	}
	if _, err := tools.NewRegistry(tools.ToolDefinition{Name: "T"}); !errors.Is(err, model.ErrInputValidation) {
		t.Fatalf("nil executor: got %v", err)
	}
	d := tools.ToolDefinition{Name: "T", Function: noop}
	if _, err := tools.NewRegistry(d, d); !errors.Is(err, tools.ErrDuplicateTool) {
		t.Fatalf("duplicate: got %v", err)
	}
}

func TestExecute(t *testing.T) {
	var calls int
	var gotArgs map[string]any
	r := tools.MustRegistry(
		tools.ToolDefinition{Name: "T", Function: func(_ context.Context, args map[string]any) (any, error) {
			calls++
			gotArgs = args
			return map[string]any{"ok": true}, nil
		}},
		tools.ToolDefinition{Name: "boom", Function: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("backend unavailable")
		}},
		tools.ToolDefinition{Name: "panics", Function: func(context.Context, map[string]any) (any, error) {
			panic("nil map")
		}},
	)
	ctx := context.Background()

	out, err := r.Execute(ctx, "T", map[string]any{"x": int64(1)})
	if err != nil || calls != 1 || gotArgs["x"] != int64(1) {
		t.Fatalf("Execute T: out=%v err=%v calls=%d args=%v", out, err, calls, gotArgs)
	}

	if _, err := r.Execute(ctx, "missing", nil); !errors.Is(err, tools.ErrToolNotFound) {
		t.Fatalf("missing: want ErrToolNotFound, got %v", err)
	}

	var te *tools.ToolExecutionError
	if _, err := r.Execute(ctx, "boom", nil); !errors.As(err, &te) || te.Tool != "boom" {
		t.Fatalf("boom: want ToolExecutionError, got %v", err)
	}
	if _, err := r.Execute(ctx, "panics", nil); !errors.As(err, &te) || !strings.Contains(te.Error(), "panic") {
		t.Fatalf("panics: want recovered ToolExecutionError, got %v", err)
	}
}

func TestProtocol_ListsTools(t *testing.T) {
	r := tools.MustRegistry(tools.Defaults()...)
	p := r.Protocol()
	for _, name := range r.Names() {
		if !strings.Contains(p, name) {
			t.Errorf("protocol misses %s", name)
		}
	}
	if tools.MustRegistry().Protocol() != "" {
		t.Fatal("empty registry renders no protocol")
	}
}

func TestClampRunes(t *testing.T) {
	if s, cut := tools.ClampRunes("héllo", 10); cut || s != "héllo" {
		t.Fatalf("short input changed: %q %v", s, cut)
	}
	s, cut := tools.ClampRunes("héllo wörld", 5)
	if !cut || s != "héllo"+tools.TruncationSentinel {
		t.Fatalf("unexpected clamp: %q %v", s, cut)
	}
}
