package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veildata/api/internal/client"
	"github.com/veildata/api/internal/config"
	"github.com/veildata/api/internal/handler"
	"github.com/veildata/api/internal/middleware"
	"github.com/veildata/api/internal/pipeline"
	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/internal/store"
	"github.com/veildata/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := newLogger(&cfg.Server)
	defer zlog.Sync() //nolint:errcheck

	// Database
	db, err := store.Open(&cfg.Database, zlog)
	if err != nil {
		if cfg.Server.Env != "development" {
			zlog.Fatalw("failed to connect to postgres", "error", err)
		}
		zlog.Warnw("postgres unavailable, using in-memory sqlite", "error", err)
		db, err = store.OpenMemory()
		if err != nil {
			zlog.Fatalw("failed to open in-memory store", "error", err)
		}
	}

	// Redis is optional: without it the pipeline runs on in-process
	// goroutines and rate limiting is disabled.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisAvailable := true
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		zlog.Warnw("redis not available, falling back to in-process dispatch", "error", err)
		redisAvailable = false
		redisClient = nil
	}

	// Repositories
	userRepo := store.NewUserRepo(db)
	projectRepo := store.NewProjectRepo(db)
	sourceRepo := store.NewSourceRepo(db)
	jobRepo := store.NewJobRepo(db)
	datasetRepo := store.NewDatasetRepo(db)

	guard := service.NewAccessGuard(projectRepo, sourceRepo, jobRepo, datasetRepo)

	// Object storage is optional: without credentials dataset content is
	// served straight from the database.
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" {
		r2, err := client.NewR2Client(&cfg.Storage)
		if err != nil {
			zlog.Fatalw("failed to initialize object storage", "error", err)
		}
		storageClient = r2
	}

	// Pipeline
	registry := pipeline.NewRegistry()
	datasetService := service.NewDatasetService(datasetRepo, jobRepo, guard, storageClient, zlog)
	executor := pipeline.NewExecutor(
		jobRepo,
		sourceRepo,
		datasetService,
		registry,
		pipeline.DefaultStages(),
		time.Duration(cfg.Pipeline.StageDelayMS)*time.Millisecond,
		zlog,
	)

	var dispatcher service.Dispatcher
	var asynqClient *asynq.Client
	if redisAvailable {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		dispatcher = worker.NewAsynqDispatcher(asynqClient)
		go startWorkerServer(cfg, executor, zlog)
	} else {
		dispatcher = worker.NewGoDispatcher(executor, zlog)
	}

	// Services
	authService := service.NewAuthService(userRepo, &cfg.JWT)
	projectService := service.NewProjectService(projectRepo, guard)
	sourceService := service.NewSourceService(sourceRepo, jobRepo, guard)
	jobService := service.NewJobService(jobRepo, sourceRepo, guard, dispatcher, registry, zlog)

	// Handlers
	validate := validator.New()
	authHandler := handler.NewAuthHandler(authService, validate)
	projectHandler := handler.NewProjectHandler(projectService, validate)
	sourceHandler := handler.NewSourceHandler(sourceService, validate)
	jobHandler := handler.NewJobHandler(jobService)
	datasetHandler := handler.NewDatasetHandler(datasetService)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    20 * 1024 * 1024, // 20MB
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		dbOK := true
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			dbOK = false
		}
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"database": dbOK,
				"redis":    redisAvailable,
				"storage":  storageClient != nil,
			},
		})
	})

	// Public auth routes
	app.Post("/api/auth/register", authHandler.Register)
	app.Post("/api/auth/login", authHandler.Login)

	// Authenticated API
	api := app.Group("/api", authMiddleware.Authenticate())

	projects := api.Group("/projects")
	projects.Post("/", projectHandler.Create)
	projects.Get("/", projectHandler.List)
	projects.Get("/:projectId", projectHandler.Get)
	projects.Put("/:projectId", projectHandler.Update)
	projects.Delete("/:projectId", projectHandler.Delete)
	projects.Post("/:projectId/sources", sourceHandler.Create)
	projects.Get("/:projectId/sources", sourceHandler.List)

	sources := api.Group("/sources")
	sources.Get("/:sourceId", sourceHandler.Get)
	sources.Put("/:sourceId", sourceHandler.Update)
	sources.Delete("/:sourceId", sourceHandler.Delete)
	sources.Put("/:sourceId/config", sourceHandler.Configure)
	sources.Post("/:sourceId/process", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), jobHandler.Start)
	sources.Get("/:sourceId/jobs", jobHandler.ListForSource)

	jobs := api.Group("/jobs")
	jobs.Get("/:jobId", jobHandler.Get)
	jobs.Get("/:jobId/progress", jobHandler.Progress)
	jobs.Post("/:jobId/cancel", jobHandler.Cancel)

	datasets := api.Group("/datasets")
	datasets.Get("/:datasetId", datasetHandler.Get)
	datasets.Get("/:datasetId/download", datasetHandler.Download)
	datasets.Delete("/:datasetId", datasetHandler.Delete)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Errorw("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	zlog.Infow("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		zlog.Fatalw("server error", "error", err)
	}
}

func startWorkerServer(cfg *config.Config, executor *pipeline.Executor, zlog *zap.SugaredLogger) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.Concurrency,
			Queues: map[string]int{
				worker.QueuePipeline: 10,
			},
		},
	)

	processWorker := worker.NewProcessWorker(executor, zlog)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeProcessSource, processWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		zlog.Errorw("asynq worker error", "error", err)
	}
}

func newLogger(cfg *config.ServerConfig) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		level = parsed
	}

	var zc zap.Config
	if cfg.Env == "development" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zl, err := zc.Build()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return zl.Sugar()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
