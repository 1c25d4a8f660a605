package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"shopsync-api/internal/cache"
	"shopsync-api/internal/config"
	"shopsync-api/internal/handler"
	"shopsync-api/internal/middleware"
	"shopsync-api/internal/replay"
	"shopsync-api/internal/repository"
	"shopsync-api/internal/router"
	"shopsync-api/internal/service"
	"shopsync-api/internal/webhook"

	"go.temporal.io/sdk/client"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting ShopSync API...")

	// Load configuration
	cfg := config.MustLoad()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Environment: %s", cfg.App.Environment)

	verifier, err := webhook.NewVerifier(cfg.Webhook.Secret)
	if err != nil {
		log.Fatalf("Failed to initialize webhook verifier: %v", err)
	}

	// Entity store and raw event log
	stores, err := repository.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer stores.Close()

	// Delivery inbox cache (optional)
	var inboxCache cache.Cache
	cacheType := cfg.Cache.Type
	switch cacheType {
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.RedisPrefix,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, using in-memory inbox: %v", err)
			inboxCache = cache.NewMemoryCache()
			cacheType = "memory"
		} else {
			inboxCache = redisCache
			log.Println("Redis delivery inbox initialized")
		}
	case "memory":
		inboxCache = cache.NewMemoryCache()
		log.Println("In-memory delivery inbox initialized")
	default:
		log.Println("Delivery inbox disabled")
	}
	if inboxCache != nil {
		defer inboxCache.Close()
	}

	// Initialize services
	var inbox *service.DeliveryInbox
	if inboxCache != nil {
		inbox = service.NewDeliveryInbox(inboxCache, cfg.Cache.ProcessedTTL)
	}
	reconciler := service.NewReconciler(stores.Entities, service.ReconcilerConfig{
		MaxAttempts: cfg.Store.RetryAttempts,
		Backoff:     cfg.Store.RetryBackoff,
	})
	ingestService := service.NewIngestService(verifier, stores.RawLog, reconciler, inbox)

	// Background replay via Temporal (optional)
	var replayStarter handler.ReplayStarter
	if cfg.Temporal.Enabled() {
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			log.Printf("Warning: Temporal connection failed, background replay disabled: %v", err)
		} else {
			defer temporalClient.Close()
			replayStarter = replay.NewStarter(temporalClient, cfg.Temporal.TaskQueue)
			log.Printf("Temporal replay starter initialized (queue %s)", cfg.Temporal.TaskQueue)
		}
	}

	// Initialize handlers
	healthHandler := handler.New(stores.Entities, cfg.App.Version)
	webhookHandler := handler.NewWebhookHandler(ingestService, handler.WebhookOptions{
		SignatureHeader: cfg.Webhook.SignatureHeader,
		TopicHeader:     cfg.Webhook.TopicHeader,
		WebhookIDHeader: cfg.Webhook.WebhookIDHeader,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
		ProcessTimeout:  cfg.Server.ProcessTimeout,
	})
	catalogHandler := handler.NewCatalogHandler(stores.Entities)
	adminHandler := handler.NewAdminHandler(
		stores.Entities,
		stores.RawLog,
		ingestService,
		replayStarter,
		ingestService.Counters(),
		handler.AdminOptions{
			StoreType:  cfg.Store.Type,
			RawLogType: cfg.RawLog.Type,
			CacheType:  cacheType,
		},
	)

	if len(cfg.App.AdminKeys) == 0 {
		log.Println("Warning: ADMIN_API_KEYS is empty, read and admin routes will refuse all requests")
	}
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys: cfg.App.AdminKeys,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		WebhookHandler: webhookHandler,
		CatalogHandler: catalogHandler,
		AdminHandler:   adminHandler,
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// In-flight deliveries finish before storage closes.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
