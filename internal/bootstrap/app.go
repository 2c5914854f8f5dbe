package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"contract-backend/internal/detect"
	"contract-backend/internal/knowledge"
	"contract-backend/internal/llm"
	openai "contract-backend/internal/llm/openai"
	"contract-backend/internal/pipeline"
	"contract-backend/internal/queue"
	"contract-backend/internal/report"
	"contract-backend/internal/risk"
	"contract-backend/internal/shared/config"
	"contract-backend/internal/shared/server"
	"contract-backend/internal/shared/storage/db"
	"contract-backend/internal/shared/storage/object"
	localstore "contract-backend/internal/shared/storage/object/local"
	s3store "contract-backend/internal/shared/storage/object/s3"
	"contract-backend/internal/suggest"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Queue  queue.Client

	Knowledge       *knowledge.Base
	Dispatcher      pipeline.ReportDispatcher
	PipelineService *pipeline.Service
	PipelineHandler *pipeline.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   app.Config,
		Handlers: []server.RouteRegistrar{app.PipelineHandler},
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repository")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repository: %v", err)
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.ReportQueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.ReportQueueURL)
}

func buildServices(app *App) error {
	cfg := app.Config

	var repo pipeline.Repo
	if app.DB != nil {
		repo = &pipeline.PGRepo{DB: app.DB}
	} else {
		repo = pipeline.NewMemoryRepo()
	}

	var searcher knowledge.Searcher
	base, err := knowledge.LoadBase(cfg.KnowledgeFile)
	if err != nil {
		// Retrieval degrades to empty matches without a base; the pipeline
		// still runs.
		log.Printf("bootstrap: knowledge base unavailable (%v); retrieval disabled", err)
	} else {
		app.Knowledge = base
		searcher = knowledge.NewKeywordSearcher(base)
	}

	scorer, err := risk.NewScorer(risk.DefaultWeights())
	if err != nil {
		return fmt.Errorf("risk scorer: %w", err)
	}

	llmClient := llm.Client(llm.PlaceholderClient{})
	if cfg.LLMProvider == "openai" && strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "" {
		openaiClient, err := openai.NewClient(os.Getenv("OPENAI_API_KEY"), cfg.LLMModel)
		if err != nil {
			return err
		}
		llmClient = openaiClient
	}

	var dispatcher pipeline.ReportDispatcher = report.LogDispatcher{}
	if cfg.SendGridAPIKey != "" {
		sg, err := report.NewSendGridDispatcher(cfg.SendGridAPIKey, cfg.EmailSender)
		if err != nil {
			return err
		}
		dispatcher = sg
	}
	app.Dispatcher = dispatcher

	orchestrator := &pipeline.Orchestrator{
		Detector:             detect.New(detect.DefaultConfig()),
		Retriever:            knowledge.NewRetriever(searcher, cfg.TopKDefault),
		Scorer:               scorer,
		Suggester:            suggest.NewGenerator(llmClient, cfg.MaxInFlightCalls, cfg.CapabilityTimeout),
		RetrievalConcurrency: cfg.MaxInFlightCalls,
	}

	app.PipelineService = &pipeline.Service{
		Repo:         repo,
		Store:        app.Store,
		Orchestrator: orchestrator,
		Queue:        app.Queue,
		Dispatcher:   dispatcher,
		TopKDefault:  cfg.TopKDefault,
	}
	app.PipelineHandler = &pipeline.Handler{
		Service:        app.PipelineService,
		MaxUploadBytes: int64(cfg.MaxFileMB) * 1024 * 1024,
	}
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
