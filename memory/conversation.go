package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/petasbytes/recagent/internal/model"
)

// Transcript is the on-disk form of one thread: its identity plus finalized messages.
type Transcript struct {
	Thread   model.Thread    `json:"thread"`
	Messages []model.Message `json:"messages"`
}

// LoadTranscript reads a transcript file. A missing file returns nil, nil.
func LoadTranscript(path string) (*Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var tr Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// SaveTranscript writes tr as indented JSON.
func SaveTranscript(path string, tr Transcript) error {
	b, err := MarshalTranscript(tr)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// MarshalTranscript encodes tr the way SaveTranscript writes it.
func MarshalTranscript(tr Transcript) ([]byte, error) {
	return json.MarshalIndent(tr, "", " ")
}

// Snapshot builds a transcript of thread id from s, keeping finalized messages only.
func Snapshot(ctx context.Context, s Store, threadID string) (Transcript, error) {
	th, err := s.GetThread(ctx, threadID)
	if err != nil {
		return Transcript{}, err
	}
	msgs, err := s.ListMessages(ctx, threadID)
	if err != nil {
		return Transcript{}, err
	}
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsLastChunk {
			out = append(out, m)
		}
	}
	return Transcript{Thread: th, Messages: out}, nil
}

// Restore loads tr into s. Existing ids are left untouched.
func Restore(ctx context.Context, s Store, tr Transcript) error {
	if err := s.CreateThread(ctx, tr.Thread); err != nil {
		return err
	}
	for _, m := range tr.Messages {
		if err := s.AppendMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
