// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/quickcart-backend/internal/config"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
	"github.com/your-org/quickcart-backend/internal/domain/user"
	"github.com/your-org/quickcart-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/quickcart-backend/internal/infrastructure/database/redis"
	"github.com/your-org/quickcart-backend/internal/interfaces/http"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/handlers"
	"github.com/your-org/quickcart-backend/internal/interfaces/http/routes"
	"github.com/your-org/quickcart-backend/internal/pkg/auth"
	"github.com/your-org/quickcart-backend/internal/pkg/keepalive"
	"github.com/your-org/quickcart-backend/internal/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg)
	log.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"cart_store":  cfg.Cart.Store,
	}).Info("Starting")

	// Initialize database connection
	db, err := postgres.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis connection
	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), log)
	if err := migration.RunAutoMigrations(); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}
	if err := migration.CreateIndexes(); err != nil {
		log.WithError(err).Warn("Index creation failed")
	}
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			log.WithError(err).Warn("Data seeding failed")
		}
	}

	// Select the cart line store
	var lineStore cart.LineStore
	switch cfg.Cart.Store {
	case config.CartStoreRedis:
		lineStore = redis.NewCartLineStore(redisClient.GetClient(), cfg.Cart.LockWait)
	case config.CartStoreMemory:
		lineStore = cart.NewMemoryStore(cfg.Cart.LockWait)
	default:
		lineStore = postgres.NewCartLineStore(db.GetDB(), cfg.Cart.LockWait)
	}

	// Initialize services
	jwtManager := auth.NewJWTManager(cfg)
	catalogService := catalog.NewService(db.GetDB())
	stockReader := catalog.NewResilientStockReader(catalogService, cfg, log)
	cartService := cart.NewService(lineStore, stockReader, log)
	userService := user.NewService(db.GetDB(), auth.NewPasswordManager(cfg), jwtManager, log)

	server := http.NewServer(cfg, log, http.Dependencies{
		Handlers: routes.Handlers{
			Auth:    handlers.NewAuthHandler(userService),
			Product: handlers.NewProductHandler(catalogService),
			Cart:    handlers.NewCartHandler(cartService),
		},
		JWTManager:  jwtManager,
		RedisClient: redisClient.GetClient(),
		Checks: map[string]http.HealthChecker{
			"database": db,
			"redis":    redisClient,
		},
		Catalog: stockReader,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pinger *keepalive.Pinger
	if cfg.KeepAlive.URL != "" {
		pinger = keepalive.NewPinger(cfg.KeepAlive.URL, cfg.KeepAlive.Interval, log)
		pinger.Start(ctx)
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	if pinger != nil {
		pinger.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	log.Info("Server shutdown completed")
}
