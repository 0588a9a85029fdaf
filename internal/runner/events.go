package runner

import "github.com/petasbytes/recagent/internal/provider"

// Event types. Fragment events reuse the fragment type names.
const (
	EventStatus = "status"

	StatusToolExecutionComplete   = "tool_execution_complete"
	StatusGeneratingFinalResponse = "generating_final_response"
	StatusCorrectiveRound         = "corrective_round"
	StatusRetrying                = "retrying"
)

// Event is one progress line of a turn.
type Event struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Sink receives turn progress. It is called from the turn's goroutine.
type Sink func(Event)

func (s Sink) fragment(runID string, f provider.Fragment) {
	if s != nil {
		s(Event{Type: string(f.Type), RunID: runID, Content: f.Content})
	}
}

func (s Sink) status(runID, status string) {
	if s != nil {
		s(Event{Type: EventStatus, RunID: runID, Status: status})
	}
}
