package inference

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/metrics"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/runs"
	"github.com/petasbytes/recagent/internal/telemetry"
)

// StatusFunc reads the current run status at a checkpoint.
type StatusFunc func(ctx context.Context) (model.RunStatus, error)

// Sink receives every fragment as it is consumed.
type Sink func(provider.Fragment)

// PassResult is what a consumed pass produced. Text is kept even when Err is set.
type PassResult struct {
	Text      string
	Reasoning string
	Fragments int
	Cancelled bool
	Err       error
}

// Consume drains the pass, checking status before the first fragment and after
// each one. A cancelling or cancelled run stops the pass without error.
func (p *Pass) Consume(ctx context.Context, status StatusFunc, sink Sink, providerName, modelName string, timeoutPerChunk time.Duration) (res PassResult) {
	var text, reasoning strings.Builder
	stats := metrics.NewStreamStats(time.Now())
	defer func() {
		res.Text, res.Reasoning = text.String(), reasoning.String()
		p.report(ctx, providerName, modelName, stats, res)
	}()

	if res.Cancelled, res.Err = cancelled(ctx, status); res.Cancelled || res.Err != nil {
		return res
	}
	for frag, err := range p.StreamChunks(ctx, providerName, modelName, timeoutPerChunk) {
		if err != nil {
			res.Err = err
			break
		}
		stats.Observe(string(frag.Type), time.Now())
		res.Fragments++
		switch frag.Type {
		case provider.FragmentContent:
			text.WriteString(frag.Content)
		case provider.FragmentReasoning:
			reasoning.WriteString(frag.Content)
		}
		if sink != nil {
			sink(frag)
		}
		if res.Cancelled, res.Err = cancelled(ctx, status); res.Cancelled || res.Err != nil {
			break
		}
	}
	return res
}

func cancelled(ctx context.Context, status StatusFunc) (bool, error) {
	if status == nil {
		return false, nil
	}
	s, err := status(ctx)
	if err != nil {
		return false, err
	}
	return runs.IsCancelling(s), nil
}

func (p *Pass) report(ctx context.Context, providerName, modelName string, stats *metrics.StreamStats, res PassResult) {
	fields := stats.Fields()
	fields["run_id"] = p.binding.RunID
	fields["provider"] = providerName
	fields["model"] = modelName
	fields["cancelled"] = res.Cancelled
	fields["text_features"] = metrics.CountFeatures(res.Text).Map()
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	} else {
		fields["error"] = nil
	}
	telemetry.Emit("stream_pass", fields)
	telemetry.EmitTextFeatures(ctx, "assistant", res.Text)

	p.client.log.Debug("stream pass done",
		zap.String("run_id", p.binding.RunID),
		zap.String("provider", providerName),
		zap.Int("fragments", res.Fragments),
		zap.Bool("cancelled", res.Cancelled),
		zap.Error(res.Err),
	)
}
