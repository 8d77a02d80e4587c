package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"inventario-backend/internal/config"
	"inventario-backend/internal/database"
	"inventario-backend/internal/locker"
	"inventario-backend/internal/server"
)

func main() {
	cfg := config.Load()
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db, err := database.Open(cfg)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("database connection failed: " + err.Error())
	}
	if err := database.Migrate(db); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal("migration failed: " + err.Error())
	}

	var (
		locks locker.Locker = locker.NewLocal()
		rdb   *redis.Client
	)
	if cfg.RedisAddress != "" {
		pingCtx, cancel := context.WithTimeout(sigCtx, 5*time.Second)
		redisLocks, client, err := locker.NewRedis(pingCtx, cfg.RedisAddress)
		cancel()
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Fatal("redis connection failed: " + err.Error())
		}
		locks, rdb = redisLocks, client
	}

	app := server.New(cfg, db, locks)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"field": "http", "port": cfg.HTTPPort}).Info("server listening")
		serverErr <- app.Listen(":" + cfg.HTTPPort)
	}()

	select {
	case <-sigCtx.Done():
		logger.WithFields(logrus.Fields{"field": "http"}).Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// best-effort
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
