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

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/datopian/flowmanager/config"
	"github.com/datopian/flowmanager/external"
	"github.com/datopian/flowmanager/external/descriptorstore"
	"github.com/datopian/flowmanager/external/eventbus"
	"github.com/datopian/flowmanager/external/httpplanner"
	"github.com/datopian/flowmanager/external/httprunner"
	"github.com/datopian/flowmanager/external/jwtverify"
	"github.com/datopian/flowmanager/external/searchindex"
	"github.com/datopian/flowmanager/flowlock"
	"github.com/datopian/flowmanager/infrastructure/postgres"
	"github.com/datopian/flowmanager/internal/health"
	ctxlog "github.com/datopian/flowmanager/internal/log"
	"github.com/datopian/flowmanager/internal/metrics"
	"github.com/datopian/flowmanager/scheduler"
	"github.com/datopian/flowmanager/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	datasets := postgres.NewDatasetRepository(pool)
	revisions := postgres.NewRevisionRepository(pool)
	pipelines := postgres.NewPipelineRepository(pool)

	verifyer := jwtverify.New(cfg.AuthServer, []byte(cfg.JWTSecret))
	planner := httpplanner.New(cfg.PlannerURL)
	runner := httprunner.New(cfg.RunnerURL)
	events := eventbus.New(cfg.EventsURL, cfg.IncidentsURL, logger)

	descriptors, err := newDescriptorStore(ctx, cfg)
	if err != nil {
		stop()
		log.Fatalf("descriptor store: %v", err)
	}
	index, err := newSearchIndexer(cfg)
	if err != nil {
		stop()
		log.Fatalf("search index: %v", err)
	}

	locks := flowlock.NewTable()
	fanout := usecase.NewFailureFanout(events, events, descriptors, index, revisions, logger, cfg.FanoutQueueSize)
	reducer := usecase.NewStatusReducer(datasets, revisions, pipelines, locks, fanout, logger)
	submission := usecase.NewSubmissionService(
		datasets, revisions, pipelines,
		verifyer, planner, runner,
		fanout, reducer,
		cfg.AllowedTypes, cfg.FlowmanagerVerbosity, cfg.RunnerRefreshURL,
		logger,
	)

	loop := scheduler.NewLoop(
		datasets, submission,
		time.Duration(cfg.SchedulerTickIntervalSec)*time.Second,
		time.Duration(cfg.SchedulerSleepStepSec)*time.Second,
		logger,
	)
	go loop.Run(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newDescriptorStore(ctx context.Context, cfg *config.Config) (external.DescriptorStore, error) {
	if cfg.PkgstoreEndpoint == "" {
		return noopDescriptorStore{}, nil
	}
	return descriptorstore.New(ctx, descriptorstore.Config{
		Endpoint:  cfg.PkgstoreEndpoint,
		AccessKey: cfg.PkgstoreAccessKey,
		SecretKey: cfg.PkgstoreSecretKey,
		Bucket:    cfg.PkgstoreBucket,
		UseSSL:    cfg.PkgstoreUseSSL,
	})
}

func newSearchIndexer(cfg *config.Config) (external.SearchIndexer, error) {
	if cfg.EventsElasticsearchHost == "" {
		return noopSearchIndexer{}, nil
	}
	return searchindex.New([]string{cfg.EventsElasticsearchHost}, cfg.DatasetsIndexName)
}

type noopDescriptorStore struct{}

func (noopDescriptorStore) GetDescriptor(context.Context, string) (map[string]any, error) {
	return nil, nil
}

type noopSearchIndexer struct{}

func (noopSearchIndexer) Index(context.Context, external.DatasetDocument) error { return nil }

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
