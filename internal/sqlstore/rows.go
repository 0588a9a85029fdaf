package sqlstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/petasbytes/recagent/internal/model"
)

type threadRow struct {
	ID             string         `gorm:"primaryKey;size:36;column:id"`
	ParticipantIDs datatypes.JSON `gorm:"column:participant_ids"`
	MetaData       datatypes.JSON `gorm:"column:meta_data"`
	CreatedAt      time.Time      `gorm:"not null;column:created_at"`
}

func (threadRow) TableName() string { return "threads" }

// messageRow keeps append order in Seq; MessageID is the public id.
type messageRow struct {
	Seq         uint       `gorm:"primaryKey;autoIncrement;column:seq"`
	MessageID   string     `gorm:"uniqueIndex:idx_messages_message_id;size:36;not null;column:message_id"`
	ThreadID    string     `gorm:"index:idx_messages_thread_id;size:36;not null;column:thread_id"`
	AssistantID string     `gorm:"size:64;column:assistant_id"`
	Role        string     `gorm:"size:16;not null;column:role"`
	Content     string     `gorm:"type:text;column:content"`
	RunID       string     `gorm:"index:idx_messages_run_id;size:36;column:run_id"`
	ToolName    string     `gorm:"size:128;column:tool_name"`
	IsLastChunk bool       `gorm:"not null;column:is_last_chunk"`
	CreatedAt   time.Time  `gorm:"not null;column:created_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (messageRow) TableName() string { return "messages" }

type runRow struct {
	ID          string         `gorm:"primaryKey;size:36;column:id"`
	ThreadID    string         `gorm:"index:idx_runs_thread_id;size:36;not null;column:thread_id"`
	AssistantID string         `gorm:"size:64;column:assistant_id"`
	Status      string         `gorm:"size:32;not null;column:status"`
	Provider    string         `gorm:"size:32;column:provider"`
	Model       string         `gorm:"size:128;column:model"`
	Tools       datatypes.JSON `gorm:"column:tools"`
	CreatedAt   time.Time      `gorm:"not null;column:created_at"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	FailedAt    *time.Time     `gorm:"column:failed_at"`
	CancelledAt *time.Time     `gorm:"column:cancelled_at"`
	ExpiredAt   *time.Time     `gorm:"column:expired_at"`
	LastError   string         `gorm:"type:text;column:last_error"`
}

func (runRow) TableName() string { return "runs" }

type actionRow struct {
	Seq          uint           `gorm:"primaryKey;autoIncrement;column:seq"`
	ActionID     string         `gorm:"uniqueIndex:idx_actions_action_id;size:36;not null;column:action_id"`
	RunID        string         `gorm:"index:idx_actions_run_id;size:36;not null;column:run_id"`
	ToolName     string         `gorm:"size:128;not null;column:tool_name"`
	FunctionArgs datatypes.JSON `gorm:"column:function_args"`
	Status       string         `gorm:"size:32;not null;column:status"`
	Result       datatypes.JSON `gorm:"column:result"`
	TriggeredAt  time.Time      `gorm:"not null;column:triggered_at"`
	ExpiresAt    *time.Time     `gorm:"column:expires_at"`
	IsProcessed  bool           `gorm:"not null;column:is_processed"`
	ProcessedAt  *time.Time     `gorm:"column:processed_at"`
}

func (actionRow) TableName() string { return "actions" }

func toThreadRow(th model.Thread) (threadRow, error) {
	ids, err := json.Marshal(th.ParticipantIDs)
	if err != nil {
		return threadRow{}, err
	}
	row := threadRow{ID: th.ID, ParticipantIDs: ids, CreatedAt: th.CreatedAt}
	if th.MetaData != nil {
		if row.MetaData, err = json.Marshal(th.MetaData); err != nil {
			return threadRow{}, err
		}
	}
	return row, nil
}

func (r threadRow) toModel() (model.Thread, error) {
	th := model.Thread{ID: r.ID, CreatedAt: r.CreatedAt}
	if err := unmarshalJSON(r.ParticipantIDs, &th.ParticipantIDs); err != nil {
		return model.Thread{}, err
	}
	if err := unmarshalJSON(r.MetaData, &th.MetaData); err != nil {
		return model.Thread{}, err
	}
	return th, nil
}

func toMessageRow(m model.Message) messageRow {
	return messageRow{
		MessageID:   m.ID,
		ThreadID:    m.ThreadID,
		AssistantID: m.AssistantID,
		Role:        string(m.Role),
		Content:     m.Content,
		RunID:       m.RunID,
		ToolName:    m.ToolName,
		IsLastChunk: m.IsLastChunk,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
}

func (r messageRow) toModel() model.Message {
	return model.Message{
		ID:          r.MessageID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Role:        model.Role(r.Role),
		Content:     r.Content,
		RunID:       r.RunID,
		ToolName:    r.ToolName,
		IsLastChunk: r.IsLastChunk,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

func toRunRow(r model.Run) (runRow, error) {
	tools, err := json.Marshal(r.Tools)
	if err != nil {
		return runRow{}, err
	}
	return runRow{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      string(r.Status),
		Provider:    r.Provider,
		Model:       r.Model,
		Tools:       tools,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		FailedAt:    r.FailedAt,
		CancelledAt: r.CancelledAt,
		ExpiredAt:   r.ExpiredAt,
		LastError:   r.LastError,
	}, nil
}

func (r runRow) toModel() (model.Run, error) {
	run := model.Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AssistantID: r.AssistantID,
		Status:      model.RunStatus(r.Status),
		Provider:    r.Provider,
		Model:       r.Model,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		FailedAt:    r.FailedAt,
		CancelledAt: r.CancelledAt,
		ExpiredAt:   r.ExpiredAt,
		LastError:   r.LastError,
	}
	if err := unmarshalJSON(r.Tools, &run.Tools); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

// columns lists every mutable run column for a compare-and-set update.
func (r runRow) columns() map[string]any {
	return map[string]any{
		"status":       r.Status,
		"provider":     r.Provider,
		"model":        r.Model,
		"tools":        r.Tools,
		"started_at":   r.StartedAt,
		"completed_at": r.CompletedAt,
		"failed_at":    r.FailedAt,
		"cancelled_at": r.CancelledAt,
		"expired_at":   r.ExpiredAt,
		"last_error":   r.LastError,
	}
}

func toActionRow(a model.Action) (actionRow, error) {
	args, err := json.Marshal(a.FunctionArgs)
	if err != nil {
		return actionRow{}, err
	}
	return actionRow{
		ActionID:     a.ID,
		RunID:        a.RunID,
		ToolName:     a.ToolName,
		FunctionArgs: args,
		Status:       string(a.Status),
		Result:       datatypes.JSON(a.Result),
		TriggeredAt:  a.TriggeredAt,
		ExpiresAt:    a.ExpiresAt,
		IsProcessed:  a.IsProcessed,
		ProcessedAt:  a.ProcessedAt,
	}, nil
}

func (r actionRow) toModel() (model.Action, error) {
	a := model.Action{
		ID:          r.ActionID,
		RunID:       r.RunID,
		ToolName:    r.ToolName,
		Status:      model.ActionStatus(r.Status),
		TriggeredAt: r.TriggeredAt,
		ExpiresAt:   r.ExpiresAt,
		IsProcessed: r.IsProcessed,
		ProcessedAt: r.ProcessedAt,
	}
	if len(r.Result) > 0 {
		a.Result = json.RawMessage(r.Result)
	}
	if err := unmarshalJSON(r.FunctionArgs, &a.FunctionArgs); err != nil {
		return model.Action{}, err
	}
	if a.FunctionArgs != nil {
		a.FunctionArgs = normalizeNumbers(a.FunctionArgs).(map[string]any)
	}
	return a, nil
}

func (r actionRow) columns() map[string]any {
	return map[string]any{
		"status":       r.Status,
		"result":       r.Result,
		"expires_at":   r.ExpiresAt,
		"is_processed": r.IsProcessed,
		"processed_at": r.ProcessedAt,
	}
}

func unmarshalJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// normalizeNumbers turns integral float64 values back into int64 so stored
// arguments read back the way the tool-call decoder produced them.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	default:
		return v
	}
}
