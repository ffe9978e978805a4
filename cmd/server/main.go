package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/cost-model-service/internal/articles"
	"github.com/jimdaga/cost-model-service/internal/config"
	"github.com/jimdaga/cost-model-service/internal/costmodel"
	"github.com/jimdaga/cost-model-service/internal/database"
	"github.com/jimdaga/cost-model-service/internal/extraction"
	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/jimdaga/cost-model-service/internal/llm"
	"github.com/jimdaga/cost-model-service/internal/processing"
	"github.com/jimdaga/cost-model-service/internal/server"
	"github.com/jimdaga/cost-model-service/internal/streams"
	"github.com/jimdaga/cost-model-service/internal/worker"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Init(ctx, cfg.DatabaseURL, cfg.WorkerConcurrency*2+8)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	if cfg.Env == "development" {
		if err := database.SeedDevData(ctx, db); err != nil {
			logger.Warn("Failed to seed dev data", "error", err)
		}
	}
	if _, err := indices.InitCatalog(ctx, db, cfg.IndexCatalogPath); err != nil {
		log.Fatalf("index catalog: %v", err)
	}

	store := articles.NewStore(db)
	provider := indices.NewProvider(db)

	logger.Info("Starting cost model service", "mode", cfg.Mode, "queue", cfg.QueueBackend, "llm_provider", cfg.LLM.Provider)

	switch cfg.Mode {
	case "worker":
		processor, closeProcessor := newProcessor(ctx, cfg, store, provider, logger)
		defer closeProcessor()

		queue, err := worker.NewAsynqQueue(cfg.RedisURL, cfg.TaskTimeout)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		defer queue.Close()

		stopScheduler, err := worker.StartScheduler(cfg)
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
		defer stopScheduler()

		if err := worker.Run(cfg, worker.Deps{Processor: processor, Pending: store, Queue: queue}); err != nil {
			logger.Error("Worker stopped with error", "error", err)
		}

	case "server":
		queue, err := worker.NewAsynqQueue(cfg.RedisURL, cfg.TaskTimeout)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		defer queue.Close()

		serve(ctx, cfg, db, store, provider, queue, logger)

	default: // embedded
		processor, closeProcessor := newProcessor(ctx, cfg, store, provider, logger)
		defer closeProcessor()

		var queue worker.JobQueue
		if cfg.QueueBackend == config.QueueBackendAsynq {
			asynqQueue, err := worker.NewAsynqQueue(cfg.RedisURL, cfg.TaskTimeout)
			if err != nil {
				log.Fatalf("queue: %v", err)
			}
			defer asynqQueue.Close()

			stopWorker, err := worker.Start(cfg, worker.Deps{Processor: processor, Pending: store, Queue: asynqQueue})
			if err != nil {
				log.Fatalf("worker: %v", err)
			}
			defer stopWorker()

			stopScheduler, err := worker.StartScheduler(cfg)
			if err != nil {
				log.Fatalf("scheduler: %v", err)
			}
			defer stopScheduler()

			queue = asynqQueue
		} else {
			memQueue := worker.NewMemoryQueue(processor.Process, cfg.WorkerConcurrency, cfg.QueueCapacity, cfg.TaskTimeout, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := memQueue.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Job queue did not drain before shutdown", "error", err)
				}
			}()

			// Jobs of a previous process died with it. Nothing serves requests
			// yet, so every pending article is orphaned, however young.
			if _, err := processing.RecoverPending(ctx, store, memQueue, 0, logger); err != nil {
				logger.Error("Failed to recover pending articles", "error", err)
			}

			queue = memQueue
		}

		serve(ctx, cfg, db, store, provider, queue, logger)
	}

	logger.Info("Shutdown complete")
}

// newProcessor builds the state machine with the configured model provider
// and, when enabled, the lifecycle event publisher.
func newProcessor(ctx context.Context, cfg *config.Config, store *articles.Store, provider *indices.Provider, logger *slog.Logger) (*processing.Processor, func()) {
	completer, closeLLM, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("llm: %v", err)
	}

	var notifier processing.Notifier
	var publisher *streams.Publisher
	if cfg.EventsEnabled {
		publisher, err = streams.NewPublisher(cfg.RedisURL)
		if err != nil {
			log.Fatalf("streams: %v", err)
		}
		notifier = publisher
	}

	processor := processing.NewProcessor(
		store,
		extraction.NewExtractor(completer, cfg.DocumentCharLimit, logger),
		costmodel.NewGenerator(completer, logger),
		provider,
		notifier,
		logger,
	)

	return processor, func() {
		if publisher != nil {
			publisher.Close()
		}
		if err := closeLLM(); err != nil {
			logger.Warn("Failed to close LLM client", "error", err)
		}
	}
}

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, db *gorm.DB, store *articles.Store, provider *indices.Provider, queue articles.JobScheduler, logger *slog.Logger) {
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	router := server.NewRouter(server.Deps{
		Articles: articles.NewHandlers(store, queue, cfg.MaxUploadBytes, logger),
		Indices:  provider,
		DB:       sqlDB,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
}
