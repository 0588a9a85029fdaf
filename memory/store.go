package memory

import (
	"context"
	"errors"

	"github.com/petasbytes/recagent/internal/model"
)

var (
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict is returned when a compare-and-set finds a different stored status.
	ErrStatusConflict = errors.New("status conflict")
)

// Store persists the engine's records.
type Store interface {
	CreateThread(ctx context.Context, th model.Thread) error
	GetThread(ctx context.Context, id string) (model.Thread, error)

	AppendMessage(ctx context.Context, m model.Message) error
	GetMessage(ctx context.Context, id string) (model.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]model.Message, error)
	// FinalizeMessage sets the full content and marks the message as the last chunk.
	FinalizeMessage(ctx context.Context, id, content string) (model.Message, error)

	CreateRun(ctx context.Context, r model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, error)
	// UpdateRun applies mutate only if the stored status equals from.
	UpdateRun(ctx context.Context, id string, from model.RunStatus, mutate func(*model.Run)) (model.Run, error)

	CreateAction(ctx context.Context, a model.Action) error
	GetAction(ctx context.Context, id string) (model.Action, error)
	ListActions(ctx context.Context, runID string) ([]model.Action, error)
	// PendingAction returns the oldest pending action of a run, or ErrNotFound.
	PendingAction(ctx context.Context, runID string) (model.Action, error)
	// UnresolvedAction returns any action of a run that is not yet resolved, or ErrNotFound.
	UnresolvedAction(ctx context.Context, runID string) (model.Action, error)
	// UpdateAction applies mutate only if the stored status equals from.
	UpdateAction(ctx context.Context, id string, from model.ActionStatus, mutate func(*model.Action)) (model.Action, error)
}
