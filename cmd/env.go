package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/batching"
	"github.com/atelier-north/studio-ops/internal/engine"
	"github.com/atelier-north/studio-ops/internal/learning"
	"github.com/atelier-north/studio-ops/internal/store"
	"github.com/atelier-north/studio-ops/pkg/claude"
)

// engineEnv wires the store, handler registry, learning engine and batch
// engine for one command invocation.
type engineEnv struct {
	store    store.Store
	registry *engine.Registry
	learner  *learning.Engine
	service  *engine.Service
	batcher  *batching.Engine
}

func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	learner := learning.NewEngine(st)
	reg := engine.DefaultRegistry(learner)

	return &engineEnv{
		store:    st,
		registry: reg,
		learner:  learner,
		service:  engine.NewService(st, reg, learner),
		batcher: batching.NewEngine(st, learner, batching.Config{
			InternalDomains: cfg.Batch.InternalDomains,
			Concurrency:     cfg.Batch.Concurrency,
		}),
	}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DSN, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DSN)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *engineEnv) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// newDetector builds the Claude-backed entity detector from config.
func newDetector() (*claude.Detector, error) {
	if cfg.Anthropic.APIKey == "" {
		return nil, eris.New("anthropic api key is required (STUDIO_ANTHROPIC_API_KEY)")
	}
	return claude.NewDetector(claude.NewClient(cfg.Anthropic.APIKey), cfg.Anthropic.Model), nil
}
