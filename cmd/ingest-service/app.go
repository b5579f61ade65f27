package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"triage/internal/config"
	"triage/internal/constants"
	"triage/internal/directory"
	"triage/internal/entities"
	"triage/internal/ingest"
	"triage/internal/logger"
	"triage/internal/rules"
	"triage/pkg/bootstrap"
	"triage/pkg/health"
	"triage/pkg/logging"
	"triage/pkg/metrics"
	"triage/pkg/migrations"
	"triage/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	postgresDB     *sql.DB
	handler        *ingest.Handler
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingest-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initPostgreSQL(ctx); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	if err := a.initRedis(ctx); err != nil {
		initCtx := logging.WithServiceName(ctx, "ingest-service")
		a.Logger.WarnwCtx(initCtx, "Redis initialization failed, directory cache disabled",
			"error", err,
		)
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := a.InitBroker("ingest-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "ingest-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initPostgreSQL(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.postgresDB = db

	if a.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db, a.Config.Database.MigrationsPath, a.Logger); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) initRedis(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb
	return nil
}

func (a *App) initPipeline(ctx context.Context) error {
	initCtx := logging.WithServiceName(ctx, "ingest-service")

	ruleSet, err := rules.Load(a.Config.Rules.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load classification rules: %w", err)
	}

	classifier, err := rules.NewClassifier(ruleSet, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to compile classification rules: %w", err)
	}

	entitySet, err := entities.Load(a.Config.Rules.EntitiesPath)
	if err != nil {
		return fmt.Errorf("failed to load entity patterns: %w", err)
	}
	extractor := entities.NewExtractor(entitySet, a.Logger)

	a.Logger.InfowCtx(initCtx, "Rule artifacts loaded",
		"ruleset_version", ruleSet.Version,
		"rules", len(ruleSet.Rules),
		"codes", len(ruleSet.Taxonomy),
		"entity_types", len(entitySet.Groups),
	)

	enricher := a.buildEnricher()

	repo := ingest.NewPostgresRepository(a.postgresDB, a.Logger)
	service := ingest.NewService(classifier, extractor, enricher, repo, a.Logger)

	var limiter *rate.Limiter
	if a.Config.Ingest.RateLimit.Enabled && a.Config.Ingest.RateLimit.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(a.Config.Ingest.RateLimit.RPS), a.Config.Ingest.RateLimit.Burst)
	}

	outputTopic := a.Config.Broker.Kafka.OutputTopic
	if outputTopic == "" {
		outputTopic = constants.DefaultOutputTopic
	}

	a.handler = ingest.NewHandler(
		service,
		nil, // producer attached in Run once the broker is up
		outputTopic,
		ingest.RolesFromConfig(a.Config.Users),
		limiter,
		a.Logger,
	)

	return nil
}

func (a *App) buildEnricher() *directory.Enricher {
	td := a.Config.Enrichment.TerminalDirectory
	if !td.Enabled {
		return nil
	}

	var lookup directory.Lookup = directory.NewPostgresLookup(a.postgresDB)

	if a.Config.CircuitBreaker.Enabled {
		lookup = directory.NewBreakerLookup(lookup, a.Config.CircuitBreaker)
	}

	if a.redis != nil {
		lookup = directory.NewCachedLookup(lookup, a.redis, td.CacheTTLSeconds, a.Logger)
	}

	policy := directory.Policy{
		Enabled:            td.Enabled,
		RequireUniqueMatch: td.RequireUniqueMatch,
		WriteTID:           td.WriteTID,
		WriteIP:            td.WriteIP,
		TIDConfidence:      td.Confidence.TID,
		IPConfidence:       td.Confidence.IP,
	}

	return directory.NewEnricher(lookup, policy, a.Logger)
}

func (a *App) initHTTPServer(_ context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	if a.postgresDB != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	a.handler.SetProducer(a.Producer)

	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	inputTopic := a.Config.Broker.Kafka.InputTopic
	if inputTopic == "" {
		inputTopic = constants.DefaultInputTopic
	}

	g.Go(func() error {
		return a.Consumer.Consume(gCtx, inputTopic, a.handler.Handle)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "ingest-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down ingest service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			srvCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(srvCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.postgresDB)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
