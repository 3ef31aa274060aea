package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"cybersync/internal/config"
	"cybersync/internal/database"
	"cybersync/internal/handlers"
	"cybersync/internal/jobs"
	"cybersync/internal/llm"
	"cybersync/internal/logging"
	"cybersync/internal/middleware"
	"cybersync/internal/preflight"
	"cybersync/internal/services"
	"cybersync/internal/store"
	"cybersync/pkg/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	logging.Init()
	cfg := config.Load()

	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("❌ JWT_SECRET is required")
	}

	// Database
	db, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Initialize(initCtx); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
	}
	cancelInit()

	checks := preflight.NewChecker(db, cfg).RunAll(context.Background())
	if preflight.HasFailures(checks) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	bucket, err := db.Bucket()
	if err != nil {
		log.Fatalf("❌ Failed to open GridFS bucket: %v", err)
	}

	// Generation overrides, hot-reloaded from YAML
	overrides, err := config.LoadOverrides(cfg.OverridesPath)
	if err != nil {
		log.Fatalf("❌ Failed to load generation overrides: %v", err)
	}
	if cfg.OverridesPath != "" {
		go overrides.Watch()
	}

	// Auth
	tokens, err := auth.NewTokenAuth(cfg.JWTSecret, 0)
	if err != nil {
		log.Fatalf("❌ Failed to initialize auth: %v", err)
	}

	// Stores
	memories := store.NewMemoryStore(db)
	messages := store.NewMessageStore(db)
	conversations := store.NewConversationStore(db)
	audits := store.NewAuditStore(db)
	blobs := store.NewBlobStore(bucket)

	// Services
	llmClient := llm.NewClient(cfg)
	embedCache := services.NewEmbeddingCache(cfg.RedisURL)
	memorySvc := services.NewMemoryService(db, memories, audits, blobs, llmClient, cfg.ChunkSizeBytes)
	retrievalSvc := services.NewRetrievalService(cfg, memories, messages, llmClient, embedCache)
	chatSvc := services.NewChatService(db, conversations, messages, audits, retrievalSvc, llmClient, overrides)

	// Background retention sweep
	retention, err := jobs.NewRetentionJob(db, memories, audits, blobs, cfg.RetentionCron, cfg.RetentionDays)
	if err != nil {
		log.Fatalf("❌ Failed to set up retention job: %v", err)
	}
	retention.Start()

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	memoryHandler := handlers.NewMemoryHandler(memorySvc, cfg.FileSizeLimitMB)
	chatHandler := handlers.NewChatHandler(chatSvc)
	conversationHandler := handlers.NewConversationHandler(conversations, messages)

	app := fiber.New(fiber.Config{
		AppName:      "CyberSync v1.0",
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute, // streaming replies can run long
		IdleTimeout:  5 * time.Minute,
		BodyLimit:    (cfg.FileSizeLimitMB + 1) * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("cybersync")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	app.Use("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
	}))

	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api/v1", middleware.Auth(tokens))

	api.Post("/chat", chatHandler.Chat)
	api.Post("/chat/stream", chatHandler.ChatStream)

	api.Get("/conversations", conversationHandler.List)
	api.Get("/conversations/:id/messages", conversationHandler.Messages)

	memory := api.Group("/memory", middleware.RequireRole(auth.RoleAdmin))
	memory.Post("/", memoryHandler.Create)
	memory.Get("/", memoryHandler.List)
	memory.Get("/:id", memoryHandler.Get)
	memory.Put("/:id", memoryHandler.Update)
	memory.Delete("/:id", memoryHandler.Delete)
	memory.Post("/:id/restore", memoryHandler.Restore)
	memory.Get("/:id/file", memoryHandler.Download)
	memory.Put("/:id/file", memoryHandler.ReplaceFile)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🛑 Shutting down...")
		retention.Stop()
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️  Server shutdown failed: %v", err)
		}
	}()

	log.Printf("🚀 CyberSync listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = embedCache.Close()
	if err := db.Close(shutdownCtx); err != nil {
		log.Printf("⚠️  MongoDB close failed: %v", err)
	}
}
