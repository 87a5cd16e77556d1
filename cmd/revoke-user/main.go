// Command revoke-user signs a user out of every device. Operators use it when
// an account is reported compromised.
//
//	revoke-user --user-id u_123 [--reason "support ticket 4411"]
package main

import (
	"context"
	"os"
	"time"

	"github.com/bazaar/bazaar/backend/identity/internal/audit"
	"github.com/bazaar/bazaar/backend/identity/internal/auth"
	"github.com/bazaar/bazaar/backend/identity/internal/config"
	"github.com/bazaar/bazaar/backend/identity/internal/database"
	"github.com/bazaar/bazaar/backend/identity/internal/refreshtokens"
	"github.com/bazaar/bazaar/backend/identity/internal/sessions"
	"github.com/bazaar/bazaar/backend/identity/internal/tokens"
	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/spf13/pflag"
)

func main() {
	userID := pflag.String("user-id", "", "user whose sessions are revoked (required)")
	reason := pflag.String("reason", "", "free-text reason written to the log")
	timeout := pflag.Duration("timeout", 30*time.Second, "overall deadline")
	pflag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	if *userID == "" {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rdb, err := database.ConnectRedis(ctx, database.RedisOptions{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatalf("failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	policy := sessions.PolicyFromConfig(cfg.Session)
	store := sessions.NewRedisStore(rdb, policy)
	revoker := auth.NewRevoker(
		store,
		refreshtokens.NewRedisStore(rdb, store, policy, cfg.JWT.RefreshTokenTTL),
		tokens.NewIssuer(cfg),
		sessions.NewBlacklist(rdb),
		audit.LogRecorder{},
	)

	n, err := revoker.RevokeUser(ctx, *userID, "", time.Time{}, auth.TriggerAdmin)
	if err != nil {
		logger.Fatalf("revoke %s: %v", *userID, err)
	}
	logger.Infow("user revoked", "userId", *userID, "keysRemoved", n, "reason", *reason)
}
