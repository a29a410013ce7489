package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/aiqueue"
	"github.com/paperkey/unlock-cli/internal/candidates"
	"github.com/paperkey/unlock-cli/internal/extractor"
	"github.com/paperkey/unlock-cli/internal/monitoring"
	"github.com/paperkey/unlock-cli/internal/store"
	"github.com/paperkey/unlock-cli/internal/unlock"
	anthropicpkg "github.com/paperkey/unlock-cli/pkg/anthropic"
)

// unlockEnv holds the initialized components shared by the unlock, batch,
// check and serve commands.
type unlockEnv struct {
	Store   store.Store
	Runner  extractor.Runner
	Queue   *aiqueue.Queue // nil when no API key is configured
	Service *unlock.Service
	Metrics *monitoring.Collector
}

// Close releases resources held by the environment.
func (e *unlockEnv) Close() {
	if e.Queue != nil {
		e.Queue.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the extractor, call queue, generator, orchestrator and
// journal store. Callers should defer env.Close(). withJournal=false skips
// the store for read-only commands.
func initEnv(ctx context.Context, withJournal bool) (*unlockEnv, error) {
	env := &unlockEnv{
		Runner:  extractor.NewSubprocess(cfg.Extractor),
		Metrics: monitoring.NewCollector(),
	}

	var submitter candidates.Submitter
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		env.Queue = aiqueue.New(cfg.AIQueue, cfg.Anthropic, client, env.Metrics)
		submitter = env.Queue
	} else {
		zap.L().Warn("UNLOCK_ANTHROPIC_KEY not set, model-assisted guessing disabled")
	}

	generator := candidates.NewGenerator(submitter, env.Metrics)
	orch := unlock.New(env.Runner, generator, cfg.Unlock, env.Metrics)

	var journal unlock.Journal
	if withJournal {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Store = st
		journal = st
	}

	env.Service = unlock.NewService(orch, journal)
	return env, nil
}
