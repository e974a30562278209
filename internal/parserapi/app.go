package parserapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/calderhq/calder/internal/compiler"
	"github.com/calderhq/calder/internal/db"
	calderhttp "github.com/calderhq/calder/internal/http"
	"github.com/calderhq/calder/internal/http/handlers"
	"github.com/calderhq/calder/internal/http/middleware"
	"github.com/calderhq/calder/internal/metrics"
	"github.com/calderhq/calder/internal/observability"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/repos"
	"github.com/calderhq/calder/internal/services"
)

const serviceName = "calder-parser-api"

// App is the parse API: it compiles workflow documents and persists the
// resulting chains. Imports are rejected in this mode — fetching remote
// content inside a request handler is not allowed.
type App struct {
	Log    *logger.Logger
	Config Config

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

	compilerSvc := compiler.NewService(compiler.RejectFetcher{}, log)
	chainSvc := services.NewChainService(log, compilerSvc, chainRepo, fragmentRepo)

	m := metrics.New(serviceName)

	router := newRouter(cfg, log, m,
		handlers.NewHealthHandler(serviceName),
		handlers.NewChainHandler(chainSvc, m))

	return &App{
		Log:          log,
		Config:       cfg,
		server:       calderhttp.NewServer(cfg.Addr(), router),
		otelShutdown: otelShutdown,
	}, nil
}

func newRouter(cfg Config, log *logger.Logger, m *metrics.Metrics, health *handlers.HealthHandler, chains *handlers.ChainHandler) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.RequestLogger(log))

	r.GET("/health", health.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/parse", chains.Parse)
	r.GET("/chains/:id", chains.Get)

	return r
}

func (a *App) Run(ctx context.Context) error {
	a.Log.Info("parser api listening", "addr", a.Config.Addr())

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
