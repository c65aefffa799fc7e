package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"devquest/config"
	"devquest/handlers"
	"devquest/logger"
	"devquest/middleware"
	"devquest/models"
	"devquest/services"
	"devquest/utils"
	"devquest/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg, envLoaded, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	if !envLoaded {
		logger.Warn().Msg("No .env file found, reading environment variables directly")
	}

	utils.SetJWTSecret(cfg.JWT.Secret)

	db, err := models.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatalf("failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	localStore := utils.NewLocalStore(cfg.UploadDir)
	if err := localStore.EnsureDir(); err != nil {
		logger.Fatalf("failed to ensure upload dir: %v", err)
	}
	var store services.FileStore = localStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Store(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.CDNBaseURL)
		if err != nil {
			logger.Fatalf("failed to initialize R2 client: %v", err)
		}
		store = r2
		logger.Info().Str("bucket", cfg.R2.Bucket).Msg("uploads go to R2")
	} else {
		logger.Info().Str("dir", cfg.UploadDir).Msg("uploads go to local disk")
	}

	progressionService := services.NewProgressionService(db, cfg.LevelPolicy)
	userService := services.NewUserService(db, cfg.JWT.ExpireHour)
	projectService := services.NewProjectService(db, progressionService, cfg.DefaultProjectXP)
	taskService := services.NewTaskService(db, progressionService, store)
	badgeService := services.NewBadgeService(db, store)

	sched, err := services.StartScheduler(ctx, progressionService, cfg.ProgressSweepInterval)
	if err != nil {
		logger.Fatalf("failed to start scheduler: %v", err)
	}
	workers.NewProjectCounterWorker(projectService, cfg.CounterSyncInterval).Start(ctx)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
	})
	app.Use(logger.FiberRecovery())
	app.Use(logger.FiberLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	api := app.Group("/api")
	loginLimiter := middleware.NewRateLimiter(ctx, cfg.LoginRateRPS, cfg.LoginRateBurst)
	handlers.SetupUserRoutes(api, userService, loginLimiter.Handler())
	handlers.SetupProgressionRoutes(api, progressionService)
	handlers.SetupProjectRoutes(api, projectService)
	handlers.SetupTaskRoutes(api, taskService)
	handlers.SetupBadgeRoutes(api, badgeService, userService)

	app.Static("/uploads", cfg.UploadDir)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Errorf("Server error: %v", err)
		}
	}()

	logger.Info().
		Str("port", cfg.Port).
		Str("level_policy", cfg.LevelPolicy).
		Strs("origins", cfg.AllowedOrigins).
		Msg("✅ Server running")

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		logger.Warnf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warnf("server shutdown: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
