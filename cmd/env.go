package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quality-engine/internal/eval"
	"github.com/sells-group/quality-engine/internal/runner"
	"github.com/sells-group/quality-engine/internal/store"
	"github.com/sells-group/quality-engine/pkg/agents"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// engineEnv bundles the evaluation engine's wired components for commands.
type engineEnv struct {
	store      store.Store
	evaluator  *eval.Evaluator
	controller *runner.Controller
}

func (e *engineEnv) Close() {
	_ = e.store.Close()
}

// initEngine opens the store, runs migrations, and wires the evaluator and
// iteration controller.
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	thresholds := cfg.Evaluation.Thresholds
	evaluator := eval.New(thresholds)
	executor := runner.NewProjectExecutor(evaluator, st)
	controller := runner.NewController(executor, st, st, thresholds)

	return &engineEnv{
		store:      st,
		evaluator:  evaluator,
		controller: controller,
	}, nil
}

// initAgents creates the extraction-agent client from config.
func initAgents() agents.Client {
	opts := []agents.Option{
		agents.WithBaseURL(cfg.Agents.BaseURL),
	}
	if cfg.Agents.RequestsPerSecond > 0 {
		opts = append(opts, agents.WithRateLimit(cfg.Agents.RequestsPerSecond, cfg.Agents.Burst))
	}
	if cfg.Agents.TimeoutSecs > 0 {
		opts = append(opts, agents.WithHTTPClient(newHTTPClient(time.Duration(cfg.Agents.TimeoutSecs)*time.Second)))
	}
	return agents.NewClient(cfg.Agents.Key, opts...)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
