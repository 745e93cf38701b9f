package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/blociq/blociq-backend/internal/compliance/events"
	"github.com/blociq/blociq-backend/internal/compliance/handler"
	"github.com/blociq/blociq-backend/internal/compliance/processor"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
	"github.com/blociq/blociq-backend/internal/compliance/repository"
	"github.com/blociq/blociq-backend/internal/compliance/service"
	"github.com/blociq/blociq-backend/internal/compliance/storage"
	"github.com/blociq/blociq-backend/pkg/config"
	"github.com/blociq/blociq-backend/pkg/database"
	"github.com/blociq/blociq-backend/pkg/httputil"
	"github.com/blociq/blociq-backend/pkg/logger"
	"github.com/blociq/blociq-backend/pkg/messaging"
)

const serviceName = "compliance-service"

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.IsDevelopment()).WithLevel(cfg.Log.Level)
	log.Info().Msg("starting Compliance Service")

	// Fail fast on a broken rule set rather than on the first document.
	loader := regexmap.NewDirLoader(cfg.Compliance.RegexDir,
		regexmap.WithVersion(cfg.Compliance.RegexVersion),
		regexmap.WithLogger(log),
	)
	rules, err := loader.Load("")
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Compliance.RegexDir).Msg("failed to load compliance rule set")
	}
	log.Info().
		Str("regex_version", rules.Tag).
		Int("types", len(rules.Types)).
		Msg("compliance rule set loaded")

	engine := processor.NewEngine(loader, log)
	jobs := storage.NewJobStore(cfg.Compliance.JobTTL)
	defer jobs.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []service.Option
	var assetRepo *repository.AssetRepository
	health := map[string]func(context.Context) map[string]string{}

	if cfg.Compliance.PersistPatches {
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx, repository.Migrations()); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}

		assetRepo = repository.NewAssetRepository(db)
		opts = append(opts,
			service.WithAssetStore(assetRepo),
			service.WithAuditStore(repository.NewAuditRepository(db)),
		)
		health["database"] = db.Health
	}

	var rmq *messaging.RabbitMQ
	if cfg.Compliance.PublishEvents || cfg.Compliance.ConsumeDocuments {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()
		health["rabbitmq"] = func(context.Context) map[string]string { return rmq.Health() }
	}

	emitter := events.NewEmitter(nil, log)
	if cfg.Compliance.PublishEvents {
		publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeComplianceEvents, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		emitter = events.NewEmitter(publisher, log)
	}
	opts = append(opts, service.WithEmitter(emitter))

	if assetRepo != nil && cfg.Compliance.ReminderInterval > 0 {
		reminders := service.NewReminderScheduler(assetRepo, emitter, cfg.Compliance.ReminderInterval, cfg.Compliance.ReminderWindow, log)
		reminders.Start(ctx)
		defer reminders.Stop()
	}

	complianceService := service.NewService(engine, jobs, log, opts...)

	if cfg.Compliance.ConsumeDocuments {
		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		consumer, err := messaging.NewConsumer(rmq, cfg.RabbitMQ.DocumentQueue, cfg.RabbitMQ.MaxRetries, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create document consumer")
		}
		if err := consumer.Subscribe(messaging.ExchangeComplianceEvents, messaging.EventDocumentExtracted); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe document consumer")
		}
		consumer.RegisterHandler(messaging.EventDocumentExtracted, complianceService.HandleDocumentExtracted)
		if err := consumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start document consumer")
		}
	}

	complianceHandler := handler.NewHandler(complianceService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":        "healthy",
			"service":       serviceName,
			"regex_version": rules.Tag,
			"jobs":          jobs.Len(),
		}
		for name, check := range health {
			status[name] = check(r.Context())
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	complianceHandler.Register(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop consumers before draining HTTP.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
