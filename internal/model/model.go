package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a Message. The set is closed.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// ParseRole lower-cases s and validates it against the role set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", Invalidf("invalid role %q", s)
	}
	return r, nil
}

// Thread is a conversation container. It is mutated only by appending messages.
type Thread struct {
	ID             string         `json:"id"`
	ParticipantIDs []string       `json:"participant_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	MetaData       map[string]any `json:"meta_data,omitempty"`
}

// NewThread returns a Thread with a fresh id.
func NewThread(participantIDs []string, meta map[string]any) Thread {
	return Thread{
		ID:             uuid.NewString(),
		ParticipantIDs: append([]string(nil), participantIDs...),
		CreatedAt:      time.Now().UTC(),
		MetaData:       meta,
	}
}

// Message is one entry in a thread.
//
// Assistant messages are created empty with IsLastChunk=false and finalized
// exactly once per stream pass. Every other role is complete on creation.
type Message struct {
	ID          string     `json:"id"`
	ThreadID    string     `json:"thread_id"`
	AssistantID string     `json:"assistant_id,omitempty"`
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	RunID       string     `json:"run_id,omitempty"`
	ToolName    string     `json:"tool_name,omitempty"`
	IsLastChunk bool       `json:"is_last_chunk"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewMessage validates its inputs before building a complete (non-streaming) message.
func NewMessage(threadID string, role Role, content string) (Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return Message{}, Invalidf("thread id is required")
	}
	if !role.Valid() {
		return Message{}, Invalidf("invalid role %q", role)
	}
	if role == RoleUser && strings.TrimSpace(content) == "" {
		return Message{}, Invalidf("user message content is empty")
	}
	now := time.Now().UTC()
	return Message{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		Role:        role,
		Content:     content,
		IsLastChunk: true,
		CreatedAt:   now,
		CompletedAt: &now,
	}, nil
}

// NewAssistantMessage returns the empty, run-bound placeholder a stream pass fills.
func NewAssistantMessage(threadID, assistantID, runID string) Message {
	return Message{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		AssistantID: assistantID,
		Role:        RoleAssistant,
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
	}
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunActionRequired RunStatus = "action_required"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunExpired        RunStatus = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// Run is one execution of the assistant against a thread.
type Run struct {
	ID          string     `json:"id"`
	ThreadID    string     `json:"thread_id"`
	AssistantID string     `json:"assistant_id"`
	Status      RunStatus  `json:"status"`
	Provider    string     `json:"provider,omitempty"`
	Model       string     `json:"model,omitempty"`
	Tools       []string   `json:"tools,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionProcessing ActionStatus = "processing"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionExpired    ActionStatus = "expired"
	ActionCancelled  ActionStatus = "cancelled"
	ActionRetrying   ActionStatus = "retrying"
)

// IsResolved reports whether the action can no longer be dispatched.
func (s ActionStatus) IsResolved() bool {
	switch s {
	case ActionCompleted, ActionFailed, ActionExpired, ActionCancelled:
		return true
	}
	return false
}

// Action is a pending or resolved tool invocation requested by a run.
type Action struct {
	ID           string          `json:"id"`
	RunID        string          `json:"run_id"`
	ToolName     string          `json:"tool_name"`
	FunctionArgs map[string]any  `json:"function_args"`
	Status       ActionStatus    `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	TriggeredAt  time.Time       `json:"triggered_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	IsProcessed  bool            `json:"is_processed"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// Expired reports whether the action's deadline has passed at now.
func (a Action) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}

// Tool is the wire description of a callable tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Assistant configures the model binding and system instructions of a run.
type Assistant struct {
	ID           string `json:"id" mapstructure:"id" yaml:"id"`
	Name         string `json:"name" mapstructure:"name" yaml:"name"`
	Instructions string `json:"instructions" mapstructure:"instructions" yaml:"instructions"`
	Provider     string `json:"provider,omitempty" mapstructure:"provider" yaml:"provider,omitempty"`
	Model        string `json:"model,omitempty" mapstructure:"model" yaml:"model,omitempty"`
}

// ToolCall is a parsed request from the model to invoke a named tool.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
