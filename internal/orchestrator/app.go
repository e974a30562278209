package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/calderhq/calder/internal/db"
	calderhttp "github.com/calderhq/calder/internal/http"
	"github.com/calderhq/calder/internal/http/handlers"
	"github.com/calderhq/calder/internal/jobs/monitor"
	"github.com/calderhq/calder/internal/metrics"
	"github.com/calderhq/calder/internal/observability"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/services"
)

// App wires the orchestrator: Postgres-backed repos, the scheduler, the
// liveness monitor and the HTTP API. Everything stateful lives in the
// database, so any number of replicas of this app can run side by side.
type App struct {
	Log    *logger.Logger
	Config Config

	monitor      *monitor.Monitor
	server       *http.Server
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	chainRepo := repos.NewChainRepo(pg.DB(), log)
	fragmentRepo := repos.NewFragmentRepo(pg.DB(), log)
	workerRepo := repos.NewWorkerRepo(pg.DB(), log)

	schedulerSvc := services.NewSchedulerService(log, chainRepo, fragmentRepo, workerRepo)
	workerSvc := services.NewWorkerService(log, workerRepo)
	queueSvc := services.NewQueueService(log, fragmentRepo, workerRepo)

	m := metrics.New(serviceName)

	liveness := monitor.New(monitor.Config{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		CheckInterval:    cfg.CheckInterval,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
	}, log, workerRepo, schedulerSvc, m)

	router := newRouter(cfg, routerDeps{
		log:     log,
		metrics: m,
		health:  handlers.NewHealthHandler(serviceName),
		workers: handlers.NewWorkerHandler(workerSvc, m),
		work:    handlers.NewWorkHandler(schedulerSvc, m),
		queue:   handlers.NewQueueHandler(queueSvc),
	})

	return &App{
		Log:          log,
		Config:       cfg,
		monitor:      liveness,
		server:       calderhttp.NewServer(cfg.Addr(), router),
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	a.monitor.Start(monitorCtx)

	a.Log.Info("orchestrator listening", "addr", a.Config.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		if a.otelShutdown != nil {
			_ = a.otelShutdown(shutdownCtx)
		}
		a.Log.Sync()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
