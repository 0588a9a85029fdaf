package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/petasbytes/recagent/internal/model"
)

// MemStore is a process-local Store guarded by a single RWMutex.
type MemStore struct {
	mu       sync.RWMutex
	threads  map[string]model.Thread
	messages map[string]model.Message
	order    map[string][]string // thread id -> message ids in append order
	runs     map[string]model.Run
	actions  map[string]model.Action
	seq      map[string]int // action id -> creation sequence
	next     int
}

var _ Store = (*MemStore)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *MemStore {
	return &MemStore{
		threads:  make(map[string]model.Thread),
		messages: make(map[string]model.Message),
		order:    make(map[string][]string),
		runs:     make(map[string]model.Run),
		actions:  make(map[string]model.Action),
		seq:      make(map[string]int),
	}
}

func (s *MemStore) CreateThread(_ context.Context, th model.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[th.ID]; ok {
		return nil
	}
	s.threads[th.ID] = th
	return nil
}

func (s *MemStore) GetThread(_ context.Context, id string) (model.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[id]
	if !ok {
		return model.Thread{}, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return th, nil
}

func (s *MemStore) AppendMessage(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[m.ThreadID]; !ok {
		return fmt.Errorf("thread %s: %w", m.ThreadID, ErrNotFound)
	}
	if _, ok := s.messages[m.ID]; ok {
		return nil
	}
	s.messages[m.ID] = m
	s.order[m.ThreadID] = append(s.order[m.ThreadID], m.ID)
	return nil
}

func (s *MemStore) GetMessage(_ context.Context, id string) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (s *MemStore) ListMessages(_ context.Context, threadID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	ids := s.order[threadID]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	return out, nil
}

func (s *MemStore) FinalizeMessage(_ context.Context, id, content string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	now := time.Now().UTC()
	m.Content = content
	m.IsLastChunk = true
	m.CompletedAt = &now
	s.messages[id] = m
	return m, nil
}

func (s *MemStore) CreateRun(_ context.Context, r model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[r.ThreadID]; !ok {
		return fmt.Errorf("thread %s: %w", r.ThreadID, ErrNotFound)
	}
	if _, ok := s.runs[r.ID]; ok {
		return nil
	}
	s.runs[r.ID] = r
	return nil
}

func (s *MemStore) GetRun(_ context.Context, id string) (model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return model.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemStore) UpdateRun(_ context.Context, id string, from model.RunStatus, mutate func(*model.Run)) (model.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return model.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if r.Status != from {
		return r, fmt.Errorf("run %s is %s, not %s: %w", id, r.Status, from, ErrStatusConflict)
	}
	mutate(&r)
	s.runs[id] = r
	return r, nil
}

func (s *MemStore) CreateAction(_ context.Context, a model.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[a.RunID]; !ok {
		return fmt.Errorf("run %s: %w", a.RunID, ErrNotFound)
	}
	if _, ok := s.actions[a.ID]; ok {
		return nil
	}
	s.actions[a.ID] = a
	s.next++
	s.seq[a.ID] = s.next
	return nil
}

func (s *MemStore) GetAction(_ context.Context, id string) (model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return model.Action{}, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *MemStore) ListActions(_ context.Context, runID string) ([]model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runActionsLocked(runID), nil
}

func (s *MemStore) PendingAction(_ context.Context, runID string) (model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.runActionsLocked(runID) {
		if a.Status == model.ActionPending {
			return a, nil
		}
	}
	return model.Action{}, fmt.Errorf("pending action for run %s: %w", runID, ErrNotFound)
}

func (s *MemStore) UnresolvedAction(_ context.Context, runID string) (model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.runActionsLocked(runID) {
		if !a.Status.IsResolved() {
			return a, nil
		}
	}
	return model.Action{}, fmt.Errorf("unresolved action for run %s: %w", runID, ErrNotFound)
}

func (s *MemStore) UpdateAction(_ context.Context, id string, from model.ActionStatus, mutate func(*model.Action)) (model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return model.Action{}, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if a.Status != from {
		return a, fmt.Errorf("action %s is %s, not %s: %w", id, a.Status, from, ErrStatusConflict)
	}
	mutate(&a)
	s.actions[id] = a
	return a, nil
}

// runActionsLocked returns a run's actions in creation order. Callers hold mu.
func (s *MemStore) runActionsLocked(runID string) []model.Action {
	var out []model.Action
	for _, a := range s.actions {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out
}
