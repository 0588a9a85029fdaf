package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ErrToolNotFound is returned when a call names a tool the registry does not hold.
var ErrToolNotFound = errors.New("tool not found")

// ErrDuplicateTool is returned when two definitions share a name.
var ErrDuplicateTool = errors.New("duplicate tool")

// ToolExecutionError wraps a failure raised by a tool executor.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Func executes a tool with decoded arguments. The returned value must be JSON-encodable.
type Func func(ctx context.Context, args map[string]any) (any, error)

// ToolDefinition describes one callable tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Function    Func
}

// GenerateSchema derives a closed JSON Schema from T's json and jsonschema tags.
func GenerateSchema[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	b, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %T: %v", v, err))
	}
	return b
}

// decodeArgs re-encodes args into T so executors work with typed input.
func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(args)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("invalid arguments: %w", err)
	}
	return out, nil
}

// Failure is the payload tools return for expected "not applicable" outcomes.
func Failure(msg string) map[string]any {
	return map[string]any{"status": "failure", "message": msg}
}
