package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/petasbytes/recagent/internal/model"
)

// Registry maps tool names to definitions. It is built once and read-only afterwards,
// so concurrent lookups need no locking.
type Registry struct {
	defs  map[string]ToolDefinition
	names []string
}

// NewRegistry rejects empty names, nil executors and duplicates.
func NewRegistry(defs ...ToolDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]ToolDefinition, len(defs))}
	for _, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, model.Invalidf("tool name is empty")
		}
		if d.Function == nil {
			return nil, model.Invalidf("tool %s has no executor", d.Name)
		}
		if _, ok := r.defs[d.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
		}
		r.defs[d.Name] = d
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// MustRegistry panics on an invalid definition set.
func MustRegistry(defs ...ToolDefinition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (ToolDefinition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Definitions returns the wire descriptions, sorted by name.
func (r *Registry) Definitions() []model.Tool {
	out := make([]model.Tool, 0, len(r.names))
	for _, n := range r.names {
		d := r.defs[n]
		out = append(out, model.Tool{Name: d.Name, Description: d.Description, Parameters: d.InputSchema})
	}
	return out
}

// Execute runs the named tool. Unknown names yield ErrToolNotFound; executor
// errors and panics yield *ToolExecutionError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result any, err error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, &ToolExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	out, err := d.Function(ctx, args)
	if err != nil {
		return nil, &ToolExecutionError{Tool: name, Err: err}
	}
	return out, nil
}

// Protocol renders the tool-call instructions appended to every system prompt.
func (r *Registry) Protocol() string {
	if len(r.names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You can call tools. To call one, reply with ONLY a JSON object of the form\n")
	b.WriteString(`{"name": "<tool name>", "arguments": {...}}` + "\n")
	b.WriteString("and nothing else. Otherwise answer in plain prose without JSON.\n\nTools:\n")
	for _, t := range r.Definitions() {
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", t.Name, t.Description, t.Parameters)
	}
	return b.String()
}
