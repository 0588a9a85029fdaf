package telemetry

import (
	"context"

	"github.com/petasbytes/recagent/internal/metrics"
)

// EmitTextFeatures records size features of text under kind (e.g. "user", "assistant").
// The text itself is never written.
func EmitTextFeatures(ctx context.Context, kind, text string) {
	if !(FeaturesEnabled() && ObserveEnabled()) {
		return
	}
	runID, _ := RunIDFromContext(ctx)
	f := metrics.CountFeatures(text)
	Emit("text_features", map[string]any{
		"run_id":           runID,
		"features_version": "1",
		"kind":             kind,
		kind:               f.Map(),
	})
}
