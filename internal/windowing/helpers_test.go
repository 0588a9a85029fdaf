package windowing_test

import (
	"github.com/petasbytes/recagent/internal/model"
)

// User message constructor
func User(text string) model.Message {
	return model.Message{Role: model.RoleUser, Content: text, IsLastChunk: true}
}

// Asst returns a finalized assistant message bound to run.
func Asst(run, text string) model.Message {
	return model.Message{Role: model.RoleAssistant, RunID: run, Content: text, IsLastChunk: true}
}

// Tool returns the dispatcher's tool message for run.
func Tool(run, name, content string) model.Message {
	return model.Message{Role: model.RoleTool, RunID: run, ToolName: name, Content: content, IsLastChunk: true}
}
