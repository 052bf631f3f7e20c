package v1

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"stockpile/internal/domain/grn"
	"stockpile/internal/infrastructure/http/v1/handlers"
	"stockpile/internal/infrastructure/http/v1/middleware"
	"stockpile/internal/infrastructure/metrics"
	"stockpile/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// GRNService runs the intake workflow
	GRNService *grn.Service

	// Logger for request logging
	Logger *logger.Logger

	// Storage names the active backend ("postgres" or "memory") for health output
	Storage string

	// DB is pinged by the readiness probe; nil for in-memory storage
	DB handlers.Pinger

	// Metrics, when set, records request latencies and serves GET /metrics
	Metrics *metrics.Metrics

	// Debug switches gin to debug mode
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	// promhttp negotiates its own encoding
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	router.Use(middleware.ErrorHandler())

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	healthHandler := handlers.NewHealthHandler(cfg.Storage, cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	{
		baseHandler := handlers.NewBaseHandler()
		grnHandler := handlers.NewGRNHandler(baseHandler, cfg.GRNService)
		RegisterGRNRoutes(v1.Group("/grn"), grnHandler)
	}

	return router
}
