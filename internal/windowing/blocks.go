package windowing

import (
	"fmt"
	"os"

	"github.com/petasbytes/recagent/internal/model"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of messages [Start, End) in the original slice.
// Kind indicates whether it is a singleton or a validated pair.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// GroupBlocks groups messages into atomic units that keep a tool call next to its result.
// Invariants:
// - A pair is exactly two adjacent messages: an assistant tool-call message, then the
// tool message the dispatcher appended for it.
// - Both messages must belong to the same run; a tool message from another run breaks the pair.
// - Failed tool results pair the same way as successful ones.
func GroupBlocks(msgs []model.Message) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		m := msgs[i]
		if m.Role == model.RoleAssistant && i+1 < len(msgs) && msgs[i+1].Role == model.RoleTool {
			if sameRun(m, msgs[i+1]) {
				groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
				i += 2
				continue
			}
			vlogf("exclude pair: reason=run_mismatch idx=%d", i)
		}
		if m.Role == model.RoleTool {
			vlogf("orphan tool message idx=%d", i)
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// sameRun treats messages without a run id (restored transcripts) as belonging together.
func sameRun(a, b model.Message) bool {
	if a.RunID == "" || b.RunID == "" {
		return true
	}
	return a.RunID == b.RunID
}

// minimal verbose logging when AGT_VERBOSE_WINDOW_LOGS=1
var verbose = os.Getenv("AGT_VERBOSE_WINDOW_LOGS") == "1"

func vlogf(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[windowing] "+format+"\n", args...)
	}
}
