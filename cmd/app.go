package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	orchestratorx "github.com/tanpawarit/PolicyPilot/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/PolicyPilot/agent/agents/specialist"
	ingestx "github.com/tanpawarit/PolicyPilot/agent/ingest"
	llmx "github.com/tanpawarit/PolicyPilot/agent/llm"
	policyx "github.com/tanpawarit/PolicyPilot/agent/policy"
	providerx "github.com/tanpawarit/PolicyPilot/agent/provider"
	statex "github.com/tanpawarit/PolicyPilot/agent/state"
	toolx "github.com/tanpawarit/PolicyPilot/agent/tool"
	configx "github.com/tanpawarit/PolicyPilot/pkg/config"
	embeddingx "github.com/tanpawarit/PolicyPilot/pkg/embedding"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

type AppConfig struct {
	StateBackend  string `envconfig:"STATE_BACKEND" split_words:"true" default:"memory"`
	ProvidersFile string `envconfig:"PROVIDERS_FILE" split_words:"true"`
	GuardrailText string `envconfig:"GUARDRAIL_TEXT" split_words:"true"`
}

// app is the wired runtime shared by the commands.
type app struct {
	cfg          AppConfig
	index        *policyx.Index
	store        statex.Store
	orchestrator *orchestratorx.Orchestrator
	closers      []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newIndex() (*policyx.Index, error) {
	embedCfg, err := configx.New[embeddingx.Config]("EMBEDDING")
	if err != nil {
		return nil, fmt.Errorf("load embedding config: %w", err)
	}
	embedder, err := embeddingx.New(*embedCfg)
	if err != nil {
		return nil, err
	}
	indexCfg, err := configx.New[policyx.Config]("INDEX")
	if err != nil {
		return nil, fmt.Errorf("load index config: %w", err)
	}
	return policyx.New(*indexCfg, embedder.Func())
}

func newIngestor(index ingestx.Indexer) (*ingestx.Ingestor, error) {
	cfg, err := configx.New[ingestx.Config]("INGEST")
	if err != nil {
		return nil, fmt.Errorf("load ingest config: %w", err)
	}
	return ingestx.New(*cfg, index)
}

func newStore(ctx context.Context, backend string) (statex.Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", backendMemory:
		return statex.NewMemoryStore(), noop, nil
	case backendRedis:
		cfg, err := configx.New[statex.UpstashRedisConfig]("REDIS")
		if err != nil {
			return nil, nil, fmt.Errorf("load redis config: %w", err)
		}
		store, err := statex.NewUpstashRedisStore(*cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case backendPostgres:
		cfg, err := configx.New[statex.PostgresConfig]("POSTGRES")
		if err != nil {
			return nil, nil, fmt.Errorf("load postgres config: %w", err)
		}
		store, err := statex.OpenPostgres(ctx, *cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q (want %s, %s or %s)", backend, backendMemory, backendRedis, backendPostgres)
	}
}

// newApp wires config, the index, the state store and the agents.
func newApp(ctx context.Context) (*app, error) {
	appCfg, err := configx.New[AppConfig]("")
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}

	providers, err := providerx.Load(appCfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	index, err := newIndex()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: *appCfg, index: index}

	store, closeStore, err := newStore(ctx, appCfg.StateBackend)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	registry, err := specialistx.NewRegistry(ctx, *llmCfg, toolx.Dependencies{
		Providers: providers,
		Policies:  index,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	orch, err := orchestratorx.New(store, registry, orchestratorx.Config{GuardrailText: appCfg.GuardrailText})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.orchestrator = orch
	return a, nil
}
