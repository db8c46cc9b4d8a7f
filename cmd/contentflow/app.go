package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/cache"
	"github.com/dshills/contentflow/graph/emit"
	"github.com/dshills/contentflow/graph/model"
	"github.com/dshills/contentflow/graph/model/anthropic"
	"github.com/dshills/contentflow/graph/model/google"
	"github.com/dshills/contentflow/graph/model/openai"
	"github.com/dshills/contentflow/graph/route"
	"github.com/dshills/contentflow/graph/runlog"
	"github.com/dshills/contentflow/graph/store"
	"github.com/dshills/contentflow/graph/tool"
	"github.com/dshills/contentflow/internal/config"
	"github.com/dshills/contentflow/pipeline"
)

// app holds the wired services of one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	engine  *graph.Engine[pipeline.State]
	store   store.Store[pipeline.State]
	records pipeline.Records
	runlogs runlog.Store

	// sqlStore is set when checkpoints live in SQLite or MySQL.
	sqlStore *store.SQLStore[pipeline.State]

	closers []func() error
}

// Close releases every opened connection, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// newApp wires storage, logging, caching, routing and the LLM collaborators
// from cfg. The returned app must be closed.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, emitters ...emit.Emitter) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var rdb backend.UniversalClient
	if cfg.UsesRedis() {
		client := backend.NewClient(&backend.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		a.onClose(client.Close)
		rdb = client
	}

	if a.store, err = a.openStore(rdb); err != nil {
		return nil, err
	}
	if a.records, err = a.openRecords(ctx); err != nil {
		return nil, err
	}
	if a.runlogs, err = a.openRunLog(rdb); err != nil {
		return nil, err
	}

	router := route.Default()
	if cfg.Router.Path != "" {
		if router, err = route.Load(cfg.Router.Path); err != nil {
			return nil, err
		}
	}

	tiers, gemini, err := a.openModels(ctx)
	if err != nil {
		return nil, err
	}

	metrics := graph.NewPrometheusMetrics(a.registry)
	llmOpts := []pipeline.LLMOption{
		pipeline.WithRetryMetrics(metrics),
		pipeline.WithLLMLogger(logger.With(zap.String("component", "llm"))),
		pipeline.WithRetryPolicy(graph.RetryPolicy{
			MaxAttempts: cfg.LLM.MaxAttempts,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			Retryable:   graph.IsTransient,
		}),
	}

	deps := pipeline.Deps{
		Curator:    pipeline.NewLLMCurator(tiers, llmOpts...),
		Designer:   pipeline.NewLLMDesigner(tiers, llmOpts...),
		Retriever:  a.retriever(),
		Generator:  pipeline.NewLLMGenerator(tiers, llmOpts...),
		Enricher:   pipeline.SourceEnricher{},
		Judge:      pipeline.NewLLMJudge(tiers, llmOpts...),
		Records:    a.records,
		Store:      a.store,
		Router:     router,
		TierModels: cfg.LLM.Tiers,
		Cache:      a.cacheManager(gemini, rdb),
		RunLog:     runlog.NewInstrumenter(a.runlogs, logger),
		Logger:     logger,
		Options: []graph.Option{
			graph.WithMaxSteps(cfg.Engine.MaxSteps),
			graph.WithMetrics(metrics),
			graph.WithEmitter(append(emit.MultiEmitter{emit.NewLogEmitter(logger)}, emitters...)),
		},
	}
	if a.engine, err = pipeline.Build(deps, nil); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(rdb backend.UniversalClient) (store.Store[pipeline.State], error) {
	c := a.cfg.Store
	switch c.Backend {
	case "sqlite":
		st, err := store.NewSQLiteStore[pipeline.State](c.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(st.Close)
		a.sqlStore = st
		return st, nil
	case "mysql":
		st, err := store.NewMySQLStore[pipeline.State](c.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(st.Close)
		a.sqlStore = st
		return st, nil
	case "redis":
		return store.NewRedisStore[pipeline.State](rdb, store.WithKeyPrefix(c.KeyPrefix)), nil
	default:
		a.logger.Warn("using in-memory checkpoints; threads do not survive this process")
		return store.NewMemStore[pipeline.State](), nil
	}
}

func (a *app) openRecords(ctx context.Context) (pipeline.Records, error) {
	c := a.cfg.Records
	if a.sqlStore != nil && a.sharesStoreDB() {
		return pipeline.NewSQLRecords(ctx, a.sqlStore.DB(), c.Backend)
	}
	var (
		db  *sql.DB
		err error
	)
	switch c.Backend {
	case "sqlite":
		db, err = store.OpenSQLite(c.Path)
	case "mysql":
		db, err = store.OpenMySQL(c.DSN)
	default:
		return pipeline.NewMemoryRecords(), nil
	}
	if err != nil {
		return nil, err
	}
	a.onClose(db.Close)
	return pipeline.NewSQLRecords(ctx, db, c.Backend)
}

// sharesStoreDB reports whether records and checkpoints name the same
// database.
func (a *app) sharesStoreDB() bool {
	r, s := a.cfg.Records, a.cfg.Store
	if r.Backend != s.Backend {
		return false
	}
	switch r.Backend {
	case "sqlite":
		return r.Path == s.Path
	case "mysql":
		return r.DSN == s.DSN
	}
	return false
}

func (a *app) openRunLog(rdb backend.UniversalClient) (runlog.Store, error) {
	c := a.cfg.RunLog
	switch c.Backend {
	case "file":
		return runlog.NewFileStore(c.Dir, a.logger)
	case "redis":
		return runlog.NewRedisStore(rdb, a.cfg.Store.KeyPrefix, c.TTL), nil
	default:
		return runlog.NewMemoryStore(), nil
	}
}

// openModels returns the model of every configured tier. For the google
// provider it also returns the client, which backs the context cache.
func (a *app) openModels(ctx context.Context) (*pipeline.Tiers, *genai.Client, error) {
	c := a.cfg.LLM
	apiKey := os.Getenv(c.APIKeyEnv)

	var client *genai.Client
	models := make(map[string]model.ChatModel, len(c.Tiers))
	for tier, name := range c.Tiers {
		switch c.Provider {
		case "google":
			if client == nil {
				var err error
				var m *google.ChatModel
				if m, client, err = google.NewChatModel(ctx, apiKey, name); err != nil {
					return nil, nil, err
				}
				a.onClose(client.Close)
				models[tier] = m
				continue
			}
			models[tier] = google.NewChatModelWithClient(client, name)
		case "openai":
			models[tier] = openai.NewChatModel(apiKey, name)
		case "anthropic":
			models[tier] = anthropic.NewChatModel(apiKey, name)
		}
	}
	tiers, err := pipeline.NewTiers(c.FallbackTier, models)
	if err != nil {
		return nil, nil, err
	}
	return tiers, client, nil
}

// cacheManager returns nil unless caching is enabled and the provider
// supports cached contents.
func (a *app) cacheManager(gemini *genai.Client, rdb backend.UniversalClient) *cache.Manager {
	c := a.cfg.Cache
	if !c.Enabled {
		return nil
	}
	if gemini == nil {
		a.logger.Info("context caching is only available with the google provider; disabled")
		return nil
	}
	var registry cache.Registry
	if c.Registry == "redis" {
		registry = cache.NewRedisRegistry(rdb, a.cfg.Store.KeyPrefix)
	}
	return cache.NewManager(cache.NewGeminiProvider(gemini), registry,
		cache.WithLogger(a.logger),
		cache.WithMetrics(cache.NewMetrics(a.registry)),
		cache.WithThreshold(c.MinTokens, c.CharsPerToken),
		cache.WithTTL(c.TTL),
	)
}

func (a *app) retriever() pipeline.Retriever {
	c := a.cfg.Retrieval
	if c.BaseURL == "" {
		a.logger.Info("retrieval.base_url not set; drafts are generated without source material")
		return noSources{}
	}
	opts := []tool.HTTPOption{tool.WithHTTPClient(&http.Client{Timeout: c.Timeout})}
	if c.APIKeyEnv != "" {
		opts = append(opts, tool.WithHeader("Authorization", "Bearer "+os.Getenv(c.APIKeyEnv)))
	}
	r := pipeline.NewToolRetriever(tool.NewHTTPTool("post_search", c.BaseURL, opts...), a.logger.With(zap.String("component", "retrieval")))
	r.LimitPerTerm = c.LimitPerTerm
	r.MaxContexts = c.MaxContexts
	return r
}

// noSources is the retriever used when no search service is configured.
type noSources struct{}

func (noSources) Retrieve(context.Context, []string) ([]pipeline.SourceContext, []tool.Call, error) {
	return []pipeline.SourceContext{}, nil, nil
}
