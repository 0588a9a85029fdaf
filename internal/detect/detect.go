// Package detect decides whether model output is a tool call.
//
// Strict is the first-pass decision: the whole output must be one JSON object
// in the tool-call shape. Loose is the regenerate decision after a tool round
// and only looks for braces. It is deliberately weak and produces false
// positives on any prose that happens to contain "{" and "}".
package detect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/petasbytes/recagent/internal/model"
)

// ErrToolCallFormat marks output that looks like a tool call but cannot be decoded as one.
var ErrToolCallFormat = errors.New("tool call format")

// Kind classifies a model output.
type Kind int

const (
	NoToolCall Kind = iota
	ToolCall
	Malformed
)

func (k Kind) String() string {
	switch k {
	case ToolCall:
		return "tool_call"
	case Malformed:
		return "malformed"
	default:
		return "no_tool_call"
	}
}

// Detection is the result of Strict. Call is set for ToolCall, Err for Malformed.
type Detection struct {
	Kind Kind
	Call model.ToolCall
	Err  error
}

func malformed(format string, args ...any) Detection {
	return Detection{Kind: Malformed, Err: fmt.Errorf("%w: %s", ErrToolCallFormat, fmt.Sprintf(format, args...))}
}

// Strict classifies text. Accepted shapes:
//
//	{"name": "T", "arguments": {...}}
//	{"function": {"name": "T", "arguments": {...}}}
//
// arguments may also be a JSON string holding an object. A single surrounding
// markdown code fence is tolerated.
func Strict(text string) Detection {
	s := unfence(strings.TrimSpace(text))
	if s == "" {
		return Detection{Kind: NoToolCall}
	}
	if !strings.HasPrefix(s, "{") || !gjson.Valid(s) {
		return classifyInvalid(s)
	}

	root := gjson.Parse(s)
	name, fn := root.Get("name"), root.Get("function")
	switch {
	case !name.Exists() && !fn.Exists():
		return Detection{Kind: NoToolCall}
	case name.Exists() && fn.Exists():
		return malformed("both name and function keys present")
	}

	args := root.Get("arguments")
	if fn.Exists() {
		if !fn.IsObject() {
			return malformed("function must be an object")
		}
		name, args = fn.Get("name"), fn.Get("arguments")
	}
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return malformed("name must be a non-empty string")
	}
	decoded, err := decodeArguments(args)
	if err != nil {
		return malformed("%s: %v", name.Str, err)
	}
	return Detection{Kind: ToolCall, Call: model.ToolCall{Name: strings.TrimSpace(name.Str), Arguments: decoded}}
}

// Loose reports whether text contains both an opening and a closing brace.
func Loose(text string) bool {
	return strings.Contains(text, "{") && strings.Contains(text, "}")
}

// classifyInvalid handles text that is not a single JSON object. Only text
// that opens as an object can be a malformed call; prose quoting JSON is prose.
func classifyInvalid(s string) Detection {
	if !strings.HasPrefix(s, "{") {
		return Detection{Kind: NoToolCall}
	}
	if c := objectCandidates(s); len(c) > 0 && gjson.Valid(c[0]) {
		if gjson.Get(c[0], "name").Exists() || gjson.Get(c[0], "function.name").Exists() {
			return malformed("text after tool call object")
		}
	}
	if strings.Contains(s, `"name"`) {
		return malformed("incomplete tool call object")
	}
	return Detection{Kind: NoToolCall}
}

func decodeArguments(r gjson.Result) (map[string]any, error) {
	if !r.Exists() {
		return nil, errors.New("arguments missing")
	}
	if r.Type == gjson.String {
		if !gjson.Valid(r.Str) {
			return nil, errors.New("arguments string is not valid JSON")
		}
		r = gjson.Parse(r.Str)
	}
	if !r.IsObject() {
		return nil, errors.New("arguments must be an object")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Raw)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalize(out).(map[string]any), nil
}

// normalize converts json.Number values to int64 when integral, float64 otherwise.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// unfence strips one ``` or ```json fence wrapping the whole text.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.Contains(inner[:nl], "{") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
