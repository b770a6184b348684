package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/scttfrdmn/catering-agent-go/adapter/llm"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/approval"
	"github.com/scttfrdmn/catering-agent-go/catalog"
	"github.com/scttfrdmn/catering-agent-go/catering"
	"github.com/scttfrdmn/catering-agent-go/config"
	"github.com/scttfrdmn/catering-agent-go/export"
	"github.com/scttfrdmn/catering-agent-go/knowledge"
	"github.com/scttfrdmn/catering-agent-go/memory"
	"github.com/scttfrdmn/catering-agent-go/middleware"
	"github.com/scttfrdmn/catering-agent-go/observability"
	"github.com/scttfrdmn/catering-agent-go/session"
)

const hashEmbedderDim = 256

// app holds every wired component and the resources to release on exit.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	audit     *observability.AuditLogger
	metrics   *observability.Metrics
	recorder  *observability.Recorder
	model     llm.LLM
	catalog   *catalog.Service
	exporter  *export.Exporter
	knowledge *knowledge.Service
	approvals *approval.Workflow
	toolkit   *catering.Toolkit
	root      agenkit.Agent
	assistant *catering.Assistant

	closers []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closer(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}

// newApp builds the assistant from cfg. On error everything acquired so far
// is released.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	logger, err := observability.ConfigureLogging(cfg.Logging(logOut))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.initTelemetry(ctx); err != nil {
		return nil, err
	}
	if err := a.initAudit(); err != nil {
		return nil, err
	}
	if a.model, err = llm.Open(ctx, cfg.Provider()); err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	if c, ok := a.model.(io.Closer); ok {
		a.onClose(closer(c))
	}
	if err := a.initCatalog(ctx); err != nil {
		return nil, err
	}
	if err := a.initExporter(ctx); err != nil {
		return nil, err
	}
	if cfg.Knowledge.Enabled {
		if err := a.initKnowledge(ctx); err != nil {
			return nil, err
		}
	}

	a.approvals, err = approval.New(approval.Config{
		Catalog:  a.catalog,
		Exporter: a.exporter,
		Recorder: a.recorder,
		Audit:    a.audit,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if a.toolkit, err = catering.NewToolkit(a.catalog, a.exporter, a.knowledge, time.Now); err != nil {
		return nil, err
	}

	retry := middleware.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Agent.RetryAttempts
	retry.Logger = logger
	a.root, err = catering.Build(catering.Config{
		Model:    a.model,
		Toolkit:  a.toolkit,
		Approval: a.approvals,
		Retry:    retry,
		Timeout:  cfg.Agent.Timeout,
		MaxSteps: cfg.Agent.MaxSteps,
		Metrics:  a.metrics != nil,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	sessions, mem, err := a.initSessions()
	if err != nil {
		return nil, err
	}
	a.assistant = catering.NewAssistant(a.root, sessions, mem,
		catering.WithHistoryLimit(cfg.Agent.HistoryLimit),
		catering.WithAudit(a.audit),
		catering.WithAssistantLogger(logger))
	return a, nil
}

func (a *app) initTelemetry(ctx context.Context) error {
	tp, err := observability.InitTracing(ctx, a.cfg.Tracing())
	if err != nil {
		return err
	}
	a.onClose(func(ctx context.Context) error { return shutdownTracer(ctx, tp) })

	if !a.cfg.Telemetry.Metrics {
		return nil
	}
	if a.metrics, err = observability.InitMetrics(ctx, a.cfg.Telemetry.ServiceName); err != nil {
		return err
	}
	a.onClose(a.metrics.Shutdown)
	a.recorder, err = observability.NewRecorder()
	return err
}

func shutdownTracer(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}

func (a *app) initAudit() error {
	var adapters []observability.AuditAdapter
	if path := a.cfg.Export.AuditLogPath; path != "" {
		file, err := observability.NewFileAuditAdapter(path, true)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		a.onClose(closer(file))
		adapters = append(adapters, file)
	}
	a.audit = observability.NewAuditLogger(a.logger, adapters...)
	return nil
}

func (a *app) initCatalog(ctx context.Context) error {
	var store catalog.Store = catalog.NewMemoryStore()
	if dsn := a.cfg.Storage.CatalogDSN; dsn != "" {
		sqlStore, err := catalog.OpenSQLStore(ctx, dsn)
		if err != nil {
			return err
		}
		a.onClose(closer(sqlStore))
		store = sqlStore
	}
	a.catalog = catalog.NewService(store, a.logger)
	return nil
}

func (a *app) initExporter(ctx context.Context) error {
	var sink export.Sink
	if a.cfg.Export.S3Bucket != "" {
		s3, err := export.DialS3Sink(ctx, a.cfg.S3())
		if err != nil {
			return err
		}
		sink = s3
	} else {
		local, err := export.NewLocalSink(a.cfg.Export.Dir)
		if err != nil {
			return err
		}
		sink = local
	}
	a.exporter = export.New(sink,
		export.WithLogger(a.logger),
		export.WithHook(func(ctx context.Context, kind, location string, err error) {
			a.recorder.Export(ctx, kind, err)
			a.audit.LogExport(ctx, "", kind, location, err)
		}))
	return nil
}

func (a *app) initKnowledge(ctx context.Context) error {
	kc := a.cfg.Knowledge
	var embedder knowledge.EmbeddingProvider
	switch kc.Embedder {
	case config.EmbedderOpenAI:
		embedder = knowledge.NewOpenAIEmbedder(a.cfg.LLM.OpenAIKey, kc.EmbeddingModel)
	case config.EmbedderAzure:
		azure := a.cfg.Provider().Azure
		azure.Deployment = a.cfg.LLM.Azure.EmbeddingDeployment
		e, err := knowledge.NewAzureOpenAIEmbedder(azure)
		if err != nil {
			return err
		}
		embedder = e
	case config.EmbedderGemini:
		e, err := knowledge.NewGeminiEmbedder(ctx, a.cfg.LLM.GeminiKey, kc.EmbeddingModel)
		if err != nil {
			return err
		}
		a.onClose(closer(e))
		embedder = e
	default:
		embedder = knowledge.NewHashEmbedder(hashEmbedderDim)
	}

	var store knowledge.VectorStore = knowledge.NewMemoryVectorStore()
	if kc.StorePath != "" {
		s, err := knowledge.OpenSQLiteVectorStore(ctx, kc.StorePath)
		if err != nil {
			return err
		}
		a.onClose(closer(s))
		store = s
	}

	opts := []knowledge.Option{knowledge.WithLogger(a.logger)}
	if kc.Rerank == config.RerankLLM {
		opts = append(opts, knowledge.WithReranker(&knowledge.LLMReranker{Model: a.model}))
	}
	a.knowledge = knowledge.NewService(embedder, store, opts...)
	return nil
}

func (a *app) initSessions() (session.Service, memory.Memory, error) {
	st := a.cfg.Storage
	if st.RedisURL == "" {
		return session.NewMemoryService(), nil, nil
	}
	sessions, err := session.DialRedisService(st.RedisURL, st.SessionTTL)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(closer(sessions))
	mem, err := memory.DialRedisMemory(st.RedisURL, memory.RedisOptions{TTL: st.SessionTTL})
	if err != nil {
		return nil, nil, err
	}
	a.onClose(closer(mem))
	return sessions, mem, nil
}

// loadApp loads the configuration named by the --config flag and builds
// the app.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return newApp(ctx, cfg, os.Stderr)
}
