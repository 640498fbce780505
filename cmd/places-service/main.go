package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arnav/places_service/internal/api"
	"github.com/arnav/places_service/internal/config"
	"github.com/arnav/places_service/internal/email"
	"github.com/arnav/places_service/internal/export"
	"github.com/arnav/places_service/internal/pkg/logger"
	"github.com/arnav/places_service/internal/provider"
	"github.com/arnav/places_service/internal/search"
	"github.com/arnav/places_service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	db, err := sql.Open("postgres", cfg.PostgresURL())
	if err != nil {
		zlog.Fatal("db open", zap.Error(err))
	}
	// simple ping + wait (db might be starting in docker)
	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		zlog.Warn("waiting for db", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		zlog.Fatal("could not connect to db", zap.Error(err))
	}

	// ensure tables exist (run migrations)
	if err := store.RunMigrations(db); err != nil {
		zlog.Fatal("migrations", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis ping failed, caching disabled in effect", zap.Error(err))
	}

	repo := store.NewPgStore(db)

	prov := provider.NewClient(cfg.ScraperBaseURL, cfg.ScraperAPIKey, nil, zlog)
	crawler := email.NewClient(cfg.EmailServiceURL, nil, zlog)

	searchSvc := search.NewService(repo, prov, rdb, zlog)
	exportSvc, err := export.NewService(repo, cfg.ExportDir, zlog)
	if err != nil {
		zlog.Fatal("export dir", zap.Error(err))
	}
	emailSvc := email.NewService(crawler, repo, searchSvc.InvalidateResults, zlog)

	handler := api.NewHandler(searchSvc, exportSvc, emailSvc, prov, zlog, cfg.Development())

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.RegisterRoutes(router, handler)

	zlog.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := router.Run(":" + cfg.Port); err != nil {
		zlog.Fatal("server failed", zap.Error(err))
	}
}
