package orchestrator

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/calderhq/calder/internal/http/handlers"
	"github.com/calderhq/calder/internal/http/middleware"
	"github.com/calderhq/calder/internal/metrics"
	"github.com/calderhq/calder/internal/platform/logger"
)

const serviceName = "calder-orchestrator"

type routerDeps struct {
	log     *logger.Logger
	metrics *metrics.Metrics

	health  *handlers.HealthHandler
	workers *handlers.WorkerHandler
	work    *handlers.WorkHandler
	queue   *handlers.QueueHandler
}

func newRouter(cfg Config, d routerDeps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.Metrics(d.metrics))
	r.Use(middleware.RequestLogger(d.log))

	r.GET("/health", d.health.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/workers/register", d.workers.Register)
	r.POST("/workers/heartbeat", d.workers.Heartbeat)
	r.GET("/workers/:id/busy", d.workers.Busy)

	r.POST("/work/request", d.work.Request)
	r.POST("/work/result", d.work.Report)

	r.GET("/queue/metrics", d.queue.Metrics)

	return r
}
