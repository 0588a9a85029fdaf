// Package inference runs one streaming model pass over a thread and
// accumulates its output.
package inference

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/logging"
	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/telemetry"
	"github.com/petasbytes/recagent/internal/windowing"
	"github.com/petasbytes/recagent/memory"
)

// DefaultTokenBudget is the input budget used when none is configured.
const DefaultTokenBudget = 8000

// Binding fixes the conversational context of one pass.
type Binding struct {
	UserID      string
	ThreadID    string
	AssistantID string
	// MessageID is the in-progress assistant message, excluded from context.
	MessageID   string
	RunID       string
	System      string
	Credentials provider.Credentials
}

// Client opens stream passes. It is safe for concurrent use.
type Client struct {
	store     memory.Store
	providers *provider.Registry
	counter   windowing.TokenCounter
	budget    int
	maxTokens int64
	log       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTokenBudget sets the input token budget for context windows.
func WithTokenBudget(n int) Option { return func(c *Client) { c.budget = n } }

// WithCounter replaces the token counter.
func WithCounter(tc windowing.TokenCounter) Option { return func(c *Client) { c.counter = tc } }

// WithMaxTokens caps output tokens per pass.
func WithMaxTokens(n int64) Option { return func(c *Client) { c.maxTokens = n } }

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = logging.OrNop(l) } }

// NewClient returns a Client reading thread context from store.
func NewClient(store memory.Store, providers *provider.Registry, opts ...Option) *Client {
	c := &Client{
		store:     store,
		providers: providers,
		counter:   windowing.HeuristicCounter{},
		budget:    DefaultTokenBudget,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Setup binds a new, single-use pass.
func (c *Client) Setup(b Binding) *Pass {
	return &Pass{client: c, binding: b}
}

// Pass is one streaming model call. It can be iterated only once.
type Pass struct {
	client   *Client
	binding  Binding
	consumed atomic.Bool
}

type pumped struct {
	frag provider.Fragment
	err  error
}

// StreamChunks lazily streams the pass. A second iteration yields ErrPassConsumed.
// Each fragment must arrive within timeoutPerChunk of the previous one, else the
// sequence yields ErrChunkTimeout and ends.
func (p *Pass) StreamChunks(ctx context.Context, providerName, modelName string, timeoutPerChunk time.Duration) iter.Seq2[provider.Fragment, error] {
	return func(yield func(provider.Fragment, error) bool) {
		if !p.consumed.CompareAndSwap(false, true) {
			yield(provider.Fragment{}, ErrPassConsumed)
			return
		}
		if timeoutPerChunk <= 0 {
			yield(provider.Fragment{}, model.Invalidf("timeout per chunk must be positive, got %s", timeoutPerChunk))
			return
		}
		req, err := p.request(ctx, modelName)
		if err != nil {
			yield(provider.Fragment{}, err)
			return
		}
		backend, err := p.client.providers.Open(ctx, providerName, p.binding.Credentials)
		if err != nil {
			yield(provider.Fragment{}, fmt.Errorf("%w: %w", ErrBackend, err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stream, err := backend.Stream(ctx, req)
		if err != nil {
			yield(provider.Fragment{}, classify(err))
			return
		}

		items := make(chan pumped)
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(items)
			for stream.Next() {
				select {
				case items <- pumped{frag: stream.Current()}:
				case <-done:
					return
				}
			}
			if err := stream.Err(); err != nil {
				select {
				case items <- pumped{err: err}:
				case <-done:
				}
			}
		}()
		defer func() {
			close(done)
			cancel()
			wg.Wait()
			_ = stream.Close()
		}()

		timer := time.NewTimer(timeoutPerChunk)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				yield(provider.Fragment{}, ctx.Err())
				return
			case <-timer.C:
				telemetry.Emit("chunk_timeout", map[string]any{
					"run_id":     p.binding.RunID,
					"provider":   providerName,
					"timeout_ms": timeoutPerChunk.Milliseconds(),
				})
				yield(provider.Fragment{}, fmt.Errorf("%w (%s)", ErrChunkTimeout, timeoutPerChunk))
				return
			case it, ok := <-items:
				if !ok {
					return
				}
				if it.err != nil {
					if ctx.Err() != nil {
						yield(provider.Fragment{}, ctx.Err())
					} else {
						yield(provider.Fragment{}, classify(it.err))
					}
					return
				}
				if !yield(sanitize(it.frag), nil) {
					return
				}
				timer.Reset(timeoutPerChunk)
			}
		}
	}
}

// request builds the windowed backend request from the stored thread.
func (p *Pass) request(ctx context.Context, modelName string) (provider.Request, error) {
	c := p.client
	msgs, err := c.store.ListMessages(ctx, p.binding.ThreadID)
	if err != nil {
		return provider.Request{}, fmt.Errorf("load thread %s: %w", p.binding.ThreadID, err)
	}
	window, stats := windowing.PrepareSendWindow(windowing.Sendable(msgs, p.binding.MessageID), c.budget, c.counter)

	telemetry.Emit("window_prepared", map[string]any{
		"run_id":             p.binding.RunID,
		"model":              modelName,
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"over_budget_newest": stats.OverBudgetNewest,
	})
	c.log.Debug("window prepared",
		zap.String("run_id", p.binding.RunID),
		zap.Int("budget", stats.Budget),
		zap.Int("total", stats.Total),
		zap.Int("groups_in", stats.IncludedGroups),
		zap.Int("groups_skipped", stats.SkippedGroups),
	)

	if stats.OverBudgetNewest {
		return provider.Request{}, fmt.Errorf("%w: newest message group exceeds token budget %d", ErrBackend, c.budget)
	}
	return provider.Request{
		Model:     modelName,
		System:    p.binding.System,
		Messages:  window,
		MaxTokens: c.maxTokens,
	}, nil
}

// sanitize turns unknown types and invalid UTF-8 into error fragments.
func sanitize(f provider.Fragment) provider.Fragment {
	if !f.Type.Valid() {
		return provider.Fragment{Type: provider.FragmentError, Content: fmt.Sprintf("unknown fragment type %q", f.Type)}
	}
	if !utf8.ValidString(f.Content) {
		return provider.Fragment{Type: provider.FragmentError, Content: "fragment is not valid UTF-8"}
	}
	return f
}
