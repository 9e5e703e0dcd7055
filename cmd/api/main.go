// @title           Kanso Resilience Engine API
// @version         1.0
// @description     Remote replica server for the Kanso habit resilience engine.
// @BasePath        /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/cache"
	adapterHTTP "github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/config"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/services"
)

func main() {
	startTime := time.Now()

	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Critical: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Critical: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db          *sqlx.DB
		replicaRepo domain.ReplicaRepository
		userRepo    domain.UserRepository
	)

	if cfg.Database.Driver == "" || cfg.Database.Driver == "memory" {
		log.Println("DB_DRIVER is memory: replicas will not survive a restart.")
		replicaRepo = repository.NewInMemoryReplicaRepository()
		userRepo = repository.NewInMemoryUserRepository()
	} else {
		log.Println("Connecting to database...")

		db, err = sqlx.Connect(cfg.Database.Driver, cfg.Database.DSN())
		if err != nil {
			log.Fatalf("Critical: Failed to connect to database: %v", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatalf("Critical: %v", err)
		}
		log.Println("Database connected successfully.")

		replicaRepo = repository.NewPostgresReplicaRepository(db)
		userRepo = repository.NewPostgresUserRepository(db)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Printf("Redis unavailable, continuing without cache and rate limiting: %v", err)
			rdb = nil
		} else {
			defer rdb.Close()
			replicaRepo = repository.NewCachedReplicaRepository(replicaRepo, rdb)
		}
	}

	authService := services.NewAuthService(userRepo)
	tokenService := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, userRepo)
	replicaService := services.NewReplicaService(replicaRepo, cfg.Auth.VerificationKey)
	if cfg.Auth.VerificationKey == "" {
		log.Println("ENTITLEMENT_VERIFICATION_KEY not set: entitlement updates are disabled.")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		AuthHandler:        adapterHTTP.NewAuthHandler(authService, tokenService),
		ReplicaHandler:     adapterHTTP.NewReplicaHandler(replicaService),
		EntitlementHandler: adapterHTTP.NewEntitlementHandler(replicaService),
		Tokens:             tokenService,
		DB:                 db,
		Redis:              rdb,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RateLimit:          cfg.Server.RateLimit,
		RateWindow:         cfg.Server.RateWindow,
		StartTime:          startTime,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Kanso replica server running on http://localhost:%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Critical server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Stop signal received. Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Forced shutdown error:", err)
	}

	log.Println("Server stopped gracefully.")
}
