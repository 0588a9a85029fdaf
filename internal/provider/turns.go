package provider

import (
	"fmt"
	"strings"

	"github.com/petasbytes/recagent/internal/model"
)

// Turn is a flattened chat turn: user or assistant only.
type Turn struct {
	Assistant bool
	Text      string
}

// Turns flattens thread messages for chat backends. Tool messages become user
// turns prefixed "Tool result (<name>):", system messages are appended to the
// system prompt, and consecutive same-side turns are merged.
func Turns(system string, msgs []model.Message) (string, []Turn) {
	var sys []string
	if strings.TrimSpace(system) != "" {
		sys = append(sys, system)
	}
	var out []Turn
	for _, m := range msgs {
		var t Turn
		switch m.Role {
		case model.RoleSystem:
			sys = append(sys, m.Content)
			continue
		case model.RoleAssistant:
			t = Turn{Assistant: true, Text: m.Content}
		case model.RoleTool:
			t = Turn{Text: fmt.Sprintf("Tool result (%s):\n%s", m.ToolName, m.Content)}
		default:
			t = Turn{Text: m.Content}
		}
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Assistant == t.Assistant {
			out[n-1].Text += "\n\n" + t.Text
			continue
		}
		out = append(out, t)
	}
	return strings.Join(sys, "\n\n"), out
}
