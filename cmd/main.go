package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/api"
	"github.com/vkazarin/tokenguard/internal/controller"
	"github.com/vkazarin/tokenguard/internal/migrations"
	"github.com/vkazarin/tokenguard/internal/service"
	"github.com/vkazarin/tokenguard/internal/storage"
	"github.com/vkazarin/tokenguard/internal/storage/postgres"
	redisstorage "github.com/vkazarin/tokenguard/internal/storage/redis"
	"github.com/vkazarin/tokenguard/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		logger.Fatal(zap.Error(err))
	}

	cleanupFuncs := []func(){dbCleanup}

	blacklistConfig := util.NewBlacklistConfig()
	var primary storage.RevocationBackend
	if blacklistConfig.RedisEnabled {
		// The blacklist service owns the connection and closes it on Shutdown.
		redisClient, _, err := util.NewRedisClient(logger, util.NewRedisConfig())
		if err != nil {
			logger.Fatal(zap.Error(err))
		}
		primary = redisstorage.NewTokenBlacklistStorage(redisClient)
	} else {
		logger.Warn("Redis disabled, blacklist runs on the in-process fallback only")
	}

	store := postgres.NewStorage(db)

	tokenService := service.NewTokenService(util.NewTokenConfig())
	webhookService := service.NewWebhookService(logger, util.GetWebhookURL())
	blacklistService := service.NewBlacklistService(blacklistConfig, primary, logger)
	cleanupFuncs = append(cleanupFuncs, blacklistService.Shutdown)

	throttleService := service.NewThrottleService(util.NewThrottleConfig(), webhookService, logger)
	activityService := service.NewActivityService(webhookService, logger)

	authService := service.NewAuthService(tokenService, store, blacklistService, throttleService, activityService, logger)

	c := controller.NewController(logger, authService)

	apiServer := api.NewAPI(c, authService, util.NewServerConfig(), logger, cleanupFuncs)
	apiServer.Run(ctx)
}
