package runs

import "github.com/petasbytes/recagent/internal/model"

// allowed lists every legal Run status edge.
var allowed = map[model.RunStatus][]model.RunStatus{
	model.RunQueued:         {model.RunInProgress, model.RunCancelling},
	model.RunInProgress:     {model.RunActionRequired, model.RunCompleted, model.RunFailed, model.RunCancelling},
	model.RunActionRequired: {model.RunInProgress, model.RunExpired, model.RunCancelling},
	model.RunCancelling:     {model.RunCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to model.RunStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsCancelling reports whether a status means the run must stop at the next checkpoint.
func IsCancelling(s model.RunStatus) bool {
	return s == model.RunCancelling || s == model.RunCancelled
}
