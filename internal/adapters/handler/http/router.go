package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/comitanigiacomo/kanso-resilience-engine/docs"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/handler/http/middleware"
)

type RouterDependencies struct {
	AuthHandler        *AuthHandler
	ReplicaHandler     *ReplicaHandler
	EntitlementHandler *EntitlementHandler
	Tokens             middleware.TokenValidator

	// DB and Redis are optional; nil means the in-memory setup.
	DB    *sqlx.DB
	Redis *redis.Client

	AllowedOrigins []string
	RateLimit      int
	RateWindow     time.Duration
	StartTime      time.Time
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Verification-Key"}
	cfg.MaxAge = 12 * time.Hour

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.New(corsConfig(deps.AllowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "in-memory"
		if deps.DB != nil {
			dbStatus = "connected"
			if err := deps.DB.PingContext(ctx); err != nil {
				dbStatus = "unreachable"
			}
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "connected"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "unreachable"
			}
		}

		statusCode := http.StatusOK
		if dbStatus == "unreachable" || redisStatus == "unreachable" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":   "ok",
			"database": dbStatus,
			"redis":    redisStatus,
			"uptime":   time.Since(deps.StartTime).String(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limit := func() gin.HandlerFunc {
		if deps.Redis == nil || deps.RateLimit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiterMiddleware(deps.Redis, deps.RateLimit, deps.RateWindow)
	}

	apiV1 := router.Group("/api/v1")

	public := apiV1.Group("")
	public.Use(limit())
	{
		deps.AuthHandler.RegisterRoutes(public)
		deps.EntitlementHandler.RegisterRoutes(public)
	}

	protected := apiV1.Group("")
	protected.Use(middleware.AuthMiddleware(deps.Tokens), limit())
	{
		deps.ReplicaHandler.RegisterRoutes(protected)
	}

	return router
}
