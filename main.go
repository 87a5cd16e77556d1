package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bazaar/bazaar/backend/identity/handlers"
	"github.com/bazaar/bazaar/backend/identity/internal/audit"
	"github.com/bazaar/bazaar/backend/identity/internal/auth"
	"github.com/bazaar/bazaar/backend/identity/internal/config"
	"github.com/bazaar/bazaar/backend/identity/internal/database"
	"github.com/bazaar/bazaar/backend/identity/internal/refreshtokens"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/internal/tokens"
	"github.com/bazaar/bazaar/backend/identity/internal/users"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/bazaar/bazaar/backend/identity/pkg/metrics"
	"github.com/bazaar/bazaar/backend/identity/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v jwt_secret_set=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.JWT.Secret != "")
	if cfg.Redis.Host == "" {
		logger.Fatalf("REDIS_HOST is required: sessions and refresh tokens live in Redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := database.ConnectRedis(ctx, database.RedisOptions{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatalf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
	}
	defer func() { _ = rdb.Close() }()
	logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)

	// Mongo is optional: it backs the user directory and the persistent audit trail.
	var userSvc *users.Service
	recorder := audit.Recorder(audit.LogRecorder{})
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("continuing without MongoDB: %v", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			db := client.Database(cfg.MongoDB.Database)
			userSvc = users.NewService(users.NewMongoUserRepository(db.Collection("users")))
			recorder = audit.Multi(recorder, audit.NewMongoRecorder(db.Collection("security_events")))
		}
	}

	policy := sessions.PolicyFromConfig(cfg.Session)
	sessionStore := sessions.NewRedisStore(rdb, policy)
	blacklist := sessions.NewBlacklist(rdb)
	issuer := tokens.NewIssuer(cfg)
	deps := auth.Deps{
		Sessions:  sessionStore,
		Refresh:   refreshtokens.NewRedisStore(rdb, sessionStore, policy, cfg.JWT.RefreshTokenTTL),
		Issuer:    issuer,
		Blacklist: blacklist,
		Audit:     recorder,
	}
	if userSvc != nil {
		deps.Users = userSvc
	}
	authSvc := auth.NewService(deps)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := gin.New()
	r.Use(cors(), gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readiness(rdb, userSvc != nil))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	bearer := middleware.AuthMiddleware(issuer.Verifier(), blacklist)
	handlers.NewAuthHandler(authSvc).Register(r.Group("/"), bearer, authLimiters(cfg.RateLimit, rdb)...)

	api := r.Group("/api/v1")
	if userSvc != nil {
		api.GET("/me", bearer, handlers.Me(userSvc))
	} else {
		api.GET("/me", bearer, handlers.Me(nil))
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting identity service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// cors sets permissive headers for browser clients and answers preflight
// requests. Device headers must be allowed or fingerprints degrade to unknown.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Platform, X-Device-Model, X-Timezone, X-App-Version, X-Screen-Resolution")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// authLimiters guards the token endpoints. Redis counters are shared across
// replicas; the in-memory limiter is per process.
func authLimiters(rl config.RateLimitConfig, rdb *redis.Client) []gin.HandlerFunc {
	if !rl.Enabled {
		return nil
	}
	if rl.UseRedis {
		win := time.Duration(rl.WindowSeconds) * time.Second
		return []gin.HandlerFunc{middleware.RedisRateLimitMiddleware(rdb, "auth", rl.RPS, rl.Burst, win)}
	}
	return []gin.HandlerFunc{middleware.RateLimitMiddleware("auth", rl.RPS, rl.Burst)}
}

// readiness reports 200 only while Redis answers. Users are informational.
func readiness(rdb *redis.Client, users bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := gin.H{"redis": true, "users": users}
		status, code := "ready", http.StatusOK
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnw("readiness: redis ping failed", "error", err)
			deps["redis"] = false
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	}
}
