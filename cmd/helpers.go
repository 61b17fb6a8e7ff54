package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/analytics"
	"github.com/ziadkadry99/assistd/internal/assistant"
	"github.com/ziadkadry99/assistd/internal/audit"
	"github.com/ziadkadry99/assistd/internal/config"
	"github.com/ziadkadry99/assistd/internal/db"
	"github.com/ziadkadry99/assistd/internal/guardrail"
	"github.com/ziadkadry99/assistd/internal/intent"
	"github.com/ziadkadry99/assistd/internal/llm"
	"github.com/ziadkadry99/assistd/internal/logging"
	"github.com/ziadkadry99/assistd/internal/ratelimit"
	"github.com/ziadkadry99/assistd/internal/stream"
	"github.com/ziadkadry99/assistd/internal/vectordb"
	"github.com/ziadkadry99/assistd/internal/workers"
)

// auditWorkers sizes the pool that writes audit records.
const auditWorkers = 16

// loadConfig loads .env, the config file and environment overrides, and
// validates the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `assistd init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// app holds the components shared by the commands. Close releases them
// in reverse order of creation.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	log        *zap.SugaredLogger
	source     vectordb.Source
	retriever  vectordb.Retriever
	classifier intent.Classifier
	closers    []func()
}

// newApp builds the logger, retriever and classifier.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		logger: logger,
		log:    logger.Sugar(),
		source: vectordb.DirSource(cfg.Content.Dir, cfg.Content.Patterns),
	}
	a.onClose(func() { _ = logger.Sync() })

	if err := a.buildRetriever(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildClassifier(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// Close releases everything the app opened.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// persistDir is where the chromem index is written by ingest.
func persistDir(cfg *config.Config) string {
	if cfg.Retriever.PersistDir != "" {
		return cfg.Retriever.PersistDir
	}
	return filepath.Join(cfg.DataDir, "index")
}

func (a *app) buildRetriever(ctx context.Context) error {
	switch a.cfg.Retriever.Backend {
	case config.RetrieverChromem:
		idx, err := vectordb.NewChromemIndex(a.source, a.log)
		if err != nil {
			return fmt.Errorf("creating chromem index: %w", err)
		}
		dir := persistDir(a.cfg)
		if err := idx.Load(ctx, dir); err != nil {
			a.log.Warnw("no persisted index, building from content on first search", "dir", dir, "error", err)
		} else {
			a.log.Infow("loaded persisted index", "dir", dir, "documents", idx.Count())
		}
		a.retriever = idx
	default:
		a.retriever = vectordb.NewIndex(a.source, a.log)
	}
	return nil
}

func (a *app) buildClassifier(ctx context.Context) error {
	table := intent.DefaultTable()
	if a.cfg.Intent.TableFile != "" {
		t, err := intent.LoadTable(a.cfg.Intent.TableFile)
		if err != nil {
			return err
		}
		table = t
	}

	opts := intent.Options{Threshold: a.cfg.Intent.Threshold}
	if a.cfg.Intent.Strategy == config.IntentWeighted {
		docs, err := a.source(ctx)
		if err != nil {
			a.log.Warnw("weighted intents without content boost", "error", err)
		} else {
			opts.Content = intent.ContentRefs(docs)
		}
	}

	c, err := intent.New(intent.Strategy(a.cfg.Intent.Strategy), table, opts)
	if err != nil {
		return fmt.Errorf("building intent classifier: %w", err)
	}
	a.classifier = c
	return nil
}

// database opens the audit and analytics store.
func (a *app) database(ctx context.Context) (*db.DB, error) {
	var (
		database *db.DB
		err      error
	)
	switch a.cfg.Audit.Driver {
	case config.AuditPostgres:
		database, err = db.OpenPostgres(ctx, db.DefaultPostgresConfig(a.cfg.Audit.DSN))
	default:
		path := a.cfg.Audit.DSN
		if path == "" {
			if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data dir: %w", err)
			}
			path = filepath.Join(a.cfg.DataDir, "assistd.db")
		}
		database, err = db.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.onClose(func() { database.Close() })
	return database, nil
}

// generator returns the configured text generator. Hosted models are
// throttled to generator.requests_per_minute.
func (a *app) generator() (llm.Provider, error) {
	p, err := llm.NewProvider(string(a.cfg.Generator.Provider), a.cfg.Generator.Model)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	if a.cfg.Generator.Provider == config.GeneratorTemplate {
		return p, nil
	}
	return llm.NewRateLimitedProvider(p, a.cfg.Generator.RequestsPerMinute), nil
}

func (a *app) pool(name string, capacity int) (*workers.Pool, error) {
	p, err := workers.New(name, workers.DefaultConfig(capacity), a.log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		if err := p.Release(5 * time.Second); err != nil {
			a.log.Warnw("worker pool did not drain", "pool", name, "error", err)
		}
	})
	return p, nil
}

// limiter returns the configured rate-limit backend.
func (a *app) limiter(ctx context.Context) (ratelimit.Limiter, error) {
	switch a.cfg.RateLimit.Backend {
	case config.RateLimitRedis:
		l, err := ratelimit.NewRedisLimiterFromURL(ctx, a.cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting rate limiter: %w", err)
		}
		a.onClose(func() { l.Close() })
		return l, nil
	default:
		l := ratelimit.NewMemoryLimiter(a.cfg.RateLimit.Window)
		a.onClose(l.Stop)
		return l, nil
	}
}

// stack is a fully wired assistant with its stores.
type stack struct {
	service    *assistant.Service
	auditStore *audit.Store
	analytics  *analytics.Dispatcher
}

// assistantStack wires the assistant service. limiter may be nil for
// in-process use.
func (a *app) assistantStack(ctx context.Context, limiter ratelimit.Limiter) (*stack, error) {
	database, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	generator, err := a.generator()
	if err != nil {
		return nil, err
	}
	auditPool, err := a.pool("audit", auditWorkers)
	if err != nil {
		return nil, err
	}
	analyticsPool, err := a.pool("analytics", a.cfg.Analytics.Workers)
	if err != nil {
		return nil, err
	}

	var persister analytics.Persister
	if a.cfg.Analytics.Persist {
		persister = analytics.NewStore(database)
	}
	dispatcher := analytics.NewDispatcher(analytics.NewBuffer(a.cfg.Analytics.BufferSize), persister, analyticsPool, a.log)

	auditStore := audit.NewStore(database)
	writer := audit.NewWriter(auditStore, a.log,
		audit.WithMaxResponseChars(a.cfg.Audit.MaxResponseChars),
		audit.WithFallbackConfidence(a.cfg.Audit.FallbackConfidence),
	)

	rl := a.cfg.RateLimit
	svc, err := assistant.New(assistant.Deps{
		Limiter:    limiter,
		Guard:      guardrail.New(guardrail.DefaultMaxLength, nil),
		Classifier: a.classifier,
		Retriever:  a.retriever,
		Generator:  generator,
		Audit:      writer,
		Analytics:  dispatcher,
		Pool:       auditPool,
		Logger:     a.log,
	}, assistant.Options{
		Model:              a.cfg.Generator.Model,
		SearchLimit:        a.cfg.Retriever.Limit,
		RetrievalTimeout:   a.cfg.Retriever.Timeout,
		GenerationTimeout:  a.cfg.Generator.Timeout,
		FallbackConfidence: a.cfg.Audit.FallbackConfidence,
		Stream:             stream.Options{ChunkSize: a.cfg.Stream.ChunkSize, Delay: a.cfg.Stream.Delay},
		AssistantPolicy:    ratelimit.Policy{Prefix: "assistant", Window: rl.Window, Max: rl.Max},
		SearchPolicy:       ratelimit.Policy{Prefix: "search", Window: rl.Window, Max: rl.Max},
		AllowAllOrigins:    a.cfg.Server.AllowAllOrigins,
	})
	if err != nil {
		return nil, err
	}
	return &stack{service: svc, auditStore: auditStore, analytics: dispatcher}, nil
}
