package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/petasbytes/recagent/internal/config"
	"github.com/petasbytes/recagent/internal/dispatch"
	"github.com/petasbytes/recagent/internal/inference"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/runner"
	"github.com/petasbytes/recagent/internal/runs"
	"github.com/petasbytes/recagent/internal/sqlstore"
	"github.com/petasbytes/recagent/internal/statuscache"
	"github.com/petasbytes/recagent/internal/windowing"
	"github.com/petasbytes/recagent/memory"
	"github.com/petasbytes/recagent/tools"
)

// app is the process-wide object graph. Build it once per command.
type app struct {
	store   memory.Store
	runs    *runs.Controller
	chain   *runner.Chain
	closers []func() error
}

func openStore(c config.StoreConfig) (memory.Store, func() error, error) {
	if c.Driver == "memory" {
		return memory.NewStore(), nil, nil
	}
	s, err := sqlstore.Open(c.Driver, c.DSN)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func counterFor(name string) windowing.TokenCounter {
	if name == "heuristic" {
		return windowing.HeuristicCounter{}
	}
	return windowing.DefaultCounter()
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	a := &app{}
	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	runOpts := []runs.Option{runs.WithLogger(log)}
	if cfg.Cache.RedisAddr != "" {
		cache, err := statuscache.Dial(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		runOpts = append(runOpts, runs.WithCache(cache))
	}
	a.runs = runs.New(store, runOpts...)

	toolset, err := tools.NewRegistry(tools.Defaults()...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	client := inference.NewClient(store, provider.DefaultRegistry(),
		inference.WithTokenBudget(cfg.Inference.TokenBudget),
		inference.WithCounter(counterFor(cfg.Inference.Tokenizer)),
		inference.WithMaxTokens(cfg.Inference.MaxTokens),
		inference.WithLogger(log),
	)
	a.chain = runner.New(runner.Deps{
		Store:     store,
		Runs:      a.runs,
		Inference: client,
		Queue:     dispatch.NewQueue(store, a.runs, dispatch.WithQueueLogger(log)),
		Dispatcher: dispatch.NewDispatcher(store, toolset,
			dispatch.WithLogger(log),
			dispatch.WithMaxResultRunes(cfg.Actions.MaxResultRunes),
		),
		Tools: toolset,
		Log:   log,
	}, chainSettings(cfg))
	return a, nil
}

func chainSettings(cfg config.Config) runner.Settings {
	s := runner.DefaultSettings()
	s.Provider = cfg.Inference.Provider
	s.Model = cfg.Inference.Model
	if cfg.Assistant.Provider != "" {
		s.Provider = cfg.Assistant.Provider
	}
	if cfg.Assistant.Model != "" {
		s.Model = cfg.Assistant.Model
	}
	if cfg.Assistant.Instructions != "" {
		s.Instructions = cfg.Assistant.Instructions
	}
	s.TimeoutPerChunk = cfg.Inference.TimeoutPerChunk
	s.PollTimeout = cfg.Actions.PollTimeout
	s.PollInterval = cfg.Actions.PollInterval
	s.MaxCorrectiveRounds = cfg.Chain.MaxCorrectiveRounds
	s.Retry = cfg.Retry
	return s
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
