package app

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/qbank-api/internal/handler"
	"github.com/noah-isme/qbank-api/internal/middleware"
	"github.com/noah-isme/qbank-api/internal/service"
	"github.com/noah-isme/qbank-api/pkg/config"
	"github.com/noah-isme/qbank-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/qbank-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/qbank-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Materials  *handler.MaterialHandler
	Generation *handler.GenerationHandler
	Metrics    *handler.MetricsHandler
}

// NewRouter mounts the public probes and the authenticated API under cfg.APIPrefix.
func NewRouter(cfg *config.Config, h Handlers, metrics *service.MetricsService, log *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(middleware.NewTokenValidator(cfg.JWT.Secret)))

	materials := api.Group("/materials")
	materials.POST("", h.Materials.Upload)
	materials.GET("", h.Materials.List)
	materials.GET("/:id", h.Materials.Get)
	materials.POST("/:id/process", h.Materials.Process)

	generation := api.Group("/generation-jobs")
	generation.POST("", h.Generation.Submit)
	generation.GET("/:id", h.Generation.Status)
	generation.GET("/:id/questions", h.Generation.Questions)
	generation.GET("/:id/questions/export", h.Generation.Export)

	return r
}

// Router builds the API router for the container.
func (c *Container) Router() *gin.Engine {
	deps := map[string]handler.Pinger{"postgres": c.DB}
	if c.Redis != nil {
		client := c.Redis
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return NewRouter(c.Cfg, Handlers{
		Materials:  handler.NewMaterialHandler(c.Materials, c.Cfg.Storage.MaxUploadBytes),
		Generation: handler.NewGenerationHandler(c.Generation, c.Export, c.Cfg.APIPrefix),
		Metrics:    handler.NewMetricsHandler(c.Metrics, deps),
	}, c.Metrics, c.Logger)
}
