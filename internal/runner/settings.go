package runner

import (
	"time"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/retry"
)

// DefaultMaxCorrectiveRounds bounds corrective prompts per turn.
const DefaultMaxCorrectiveRounds = 3

// Settings are the per-process defaults a turn runs with.
type Settings struct {
	Provider            string
	Model               string
	TimeoutPerChunk     time.Duration
	PollTimeout         time.Duration
	PollInterval        time.Duration
	MaxCorrectiveRounds int
	Retry               retry.Policy
	Instructions        string
}

// DefaultSettings returns the demo provider with conservative timeouts.
func DefaultSettings() Settings {
	return Settings{
		Provider:            "demo",
		TimeoutPerChunk:     30 * time.Second,
		PollTimeout:         30 * time.Second,
		PollInterval:        100 * time.Millisecond,
		MaxCorrectiveRounds: DefaultMaxCorrectiveRounds,
		Retry:               retry.DefaultPolicy(),
		Instructions:        "You are a movie recommendation assistant. Use the tools to look up recommendations and answer in short prose.",
	}
}

// merge applies per-turn overrides and validates the result.
func (s Settings) merge(req TurnRequest) (Settings, error) {
	if req.Provider != "" {
		s.Provider = req.Provider
	}
	if req.Model != "" {
		s.Model = req.Model
	}
	if req.TimeoutPerChunk != 0 {
		s.TimeoutPerChunk = req.TimeoutPerChunk
	}
	if req.PollTimeout != 0 {
		s.PollTimeout = req.PollTimeout
	}
	if req.PollInterval != 0 {
		s.PollInterval = req.PollInterval
	}
	if req.Instructions != "" {
		s.Instructions = req.Instructions
	}
	switch {
	case s.Provider == "":
		return s, model.Invalidf("provider is required")
	case s.TimeoutPerChunk <= 0:
		return s, model.Invalidf("timeout per chunk must be positive")
	case s.PollTimeout <= 0 || s.PollInterval <= 0:
		return s, model.Invalidf("poll timeout and interval must be positive")
	case s.MaxCorrectiveRounds < 0:
		return s, model.Invalidf("max corrective rounds must not be negative")
	}
	return s, nil
}
