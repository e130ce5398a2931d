package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/fxgateway/internal/client"
	"github.com/makeasinger/fxgateway/internal/config"
	"github.com/makeasinger/fxgateway/internal/effect"
	"github.com/makeasinger/fxgateway/internal/events"
	"github.com/makeasinger/fxgateway/internal/handler"
	"github.com/makeasinger/fxgateway/internal/notify"
	"github.com/makeasinger/fxgateway/internal/service"
	"github.com/makeasinger/fxgateway/internal/store"
	ws "github.com/makeasinger/fxgateway/internal/websocket"
	"github.com/makeasinger/fxgateway/internal/worker"
	"github.com/makeasinger/fxgateway/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	usesRedis := cfg.Tasks.Store == "redis" || cfg.Queue.Backend == "asynq"

	// Initialize Redis client
	var redisClient *redis.Client
	if usesRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		}
		defer redisClient.Close()
	}

	// Task store
	var taskStore store.TaskStore
	if cfg.Tasks.Store == "redis" {
		taskStore = store.NewRedisStore(redisClient)
		log.Println("Task store: redis")
	} else {
		taskStore = store.NewMemoryStore()
		log.Println("Task store: memory")
	}

	registry := effect.DefaultRegistry()

	// Initialize external clients
	generationClient := client.NewGenerationClient(&cfg.Vendor)
	if !generationClient.IsConfigured() {
		log.Println("Warning: VENDOR_API_KEY not set, tasks will fail until it is configured")
	}

	var storage client.StorageClient
	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Printf("Warning: R2 not configured, binary results will be returned inline: %v", err)
	} else {
		storage = r2Client
	}

	// Notifications
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	notifiers := notify.Fanout{hub}
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		publisher, nc, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Printf("Warning: NATS not available, task events disabled: %v", err)
		} else {
			natsConn = nc
			notifiers = append(notifiers, publisher)
			log.Printf("Publishing task events to %s.*", cfg.NATS.SubjectPrefix)
		}
	}

	effectWorker := worker.NewEffectWorker(taskStore, registry, generationClient, storage, notifiers)

	// Dispatch
	var dispatcher worker.Dispatcher
	var localDispatcher *worker.LocalDispatcher
	var asynqSrv *asynq.Server
	if cfg.Queue.Backend == "asynq" {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()

		dispatcher = worker.NewAsynqDispatcher(asynqClient, cfg.Vendor.TaskTimeoutDuration())
		asynqSrv = startWorkerServer(cfg, effectWorker)
		log.Println("Dispatch: asynq")
	} else {
		localDispatcher = worker.NewLocalDispatcher(effectWorker, cfg.Vendor.TaskTimeoutDuration())
		dispatcher = localDispatcher
		log.Println("Dispatch: local")
	}

	// Expiry sweeper
	sweeper := worker.NewSweeper(taskStore, cfg.Tasks.SweepDuration())
	go sweeper.Run(ctx)

	// Initialize services and handlers
	taskService := service.NewTaskService(taskStore, dispatcher, registry, cfg.Tasks.RetentionDuration())
	effectHandler := handler.NewEffectHandler(taskService)
	watchHandler := handler.NewWatchHandler(taskService, hub)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", healthHandler(cfg, generationClient, r2Client, redisClient, natsConn))

	// API routes
	effectHandler.Register(app.Group("/api"))

	// WebSocket routes
	watchHandler.Register(app)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("Server error: %v", err)
	}

	// Drain background work
	stop()
	if asynqSrv != nil {
		asynqSrv.Shutdown()
	}
	if localDispatcher != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := localDispatcher.Shutdown(shutdownCtx); err != nil {
			log.Printf("Background tasks cancelled at shutdown: %v", err)
		}
		cancel()
	}
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			log.Printf("NATS drain error: %v", err)
		}
	}
	log.Println("Server stopped")
}

func startWorkerServer(cfg *config.Config, effectWorker *worker.EffectWorker) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				worker.QueueEffects: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeEffect, effectWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Fatalf("Asynq worker error: %v", err)
	}
	return srv
}

// healthHandler reports which backing services are usable
func healthHandler(cfg *config.Config, gen *client.GenerationClient, r2 *client.R2Client, redisClient *redis.Client, natsConn *nats.Conn) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"vendor":  gen.IsConfigured(),
				"storage": r2.IsConfigured(),
				"redis":   redisClient != nil,
				"nats":    natsConn != nil && natsConn.IsConnected(),
			},
			"store": cfg.Tasks.Store,
			"queue": cfg.Queue.Backend,
		})
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	if code == fiber.StatusNotFound {
		errCode = response.CodeNotFound
	}
	return response.Error(c, code, errCode, message, nil)
}
