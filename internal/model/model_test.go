package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/petasbytes/recagent/internal/model"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    model.Role
		wantErr bool
	}{
		{"user", model.RoleUser, false},
		{"Assistant", model.RoleAssistant, false},
		{" SYSTEM ", model.RoleSystem, false},
		{"tool", model.RoleTool, false},
		{"function", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := model.ParseRole(tc.in)
		if tc.wantErr {
			if !errors.Is(err, model.ErrInputValidation) {
				t.Errorf("ParseRole(%q): want ErrInputValidation, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseRole(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestNewMessage_Validation(t *testing.T) {
	if _, err := model.NewMessage("", model.RoleUser, "hi"); !errors.Is(err, model.ErrInputValidation) {
		t.Fatalf("empty thread: want ErrInputValidation, got %v", err)
	}
	if _, err := model.NewMessage("t1", model.Role("bot"), "hi"); !errors.Is(err, model.ErrInputValidation) {
		t.Fatalf("bad role: want ErrInputValidation, got %v", err)
	}
	if _, err := model.NewMessage("t1", model.RoleUser, "   "); !errors.Is(err, model.ErrInputValidation) {
		t.Fatalf("blank user content: want ErrInputValidation, got %v", err)
	}
	m, err := model.NewMessage("t1", model.RoleUser, "hello")
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if m.ID == "" || !m.IsLastChunk || m.CompletedAt == nil {
		t.Fatalf("user message should be complete on creation: %+v", m)
	}
}

func TestNewAssistantMessage_StartsUnfinalized(t *testing.T) {
	m := model.NewAssistantMessage("t1", "a1", "r1")
	if m.IsLastChunk || m.Content != "" || m.CompletedAt != nil {
		t.Fatalf("assistant placeholder should be empty and open: %+v", m)
	}
	if m.Role != model.RoleAssistant || m.RunID != "r1" {
		t.Fatalf("unexpected binding: %+v", m)
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	terminal := map[model.RunStatus]bool{
		model.RunQueued:         false,
		model.RunInProgress:     false,
		model.RunActionRequired: false,
		model.RunCancelling:     false,
		model.RunCancelled:      true,
		model.RunCompleted:      true,
		model.RunFailed:         true,
		model.RunExpired:        true,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestAction_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	a := model.Action{ExpiresAt: &past}
	if !a.Expired(now) {
		t.Fatal("want expired")
	}
	if (model.Action{}).Expired(now) {
		t.Fatal("action without deadline never expires")
	}
	if !model.ActionCancelled.IsResolved() || model.ActionRetrying.IsResolved() {
		t.Fatal("unexpected IsResolved results")
	}
}
