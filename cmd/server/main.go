package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kartshart/kartshart-backend/config"
	"github.com/kartshart/kartshart-backend/internal/app/controller"
	"github.com/kartshart/kartshart-backend/internal/app/repository"
	"github.com/kartshart/kartshart-backend/internal/app/service"
	"github.com/kartshart/kartshart-backend/internal/db"
	"github.com/kartshart/kartshart-backend/internal/middleware"
	"github.com/kartshart/kartshart-backend/internal/router"
	"github.com/kartshart/kartshart-backend/internal/scheduler"
	"github.com/kartshart/kartshart-backend/pkg/logger"
	"github.com/kartshart/kartshart-backend/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		EnableColor: cfg.Server.Environment == "development",
	})

	logger.Info("Starting Kartshart cart server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   cfg.Log.Level,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Initialize repositories
	cartRepo := repository.NewCartRepository(db.GetDB())
	productRepo := repository.NewProductRepository(db.GetDB())

	// Initialize services
	stockValidator := service.NewStockValidator(cartRepo, productRepo)
	consolidationService := service.NewConsolidationService(cartRepo, stockValidator)
	loginMergeService := service.NewLoginMergeService(cartRepo, stockValidator, consolidationService)
	cartService := service.NewCartService(cartRepo, productRepo, stockValidator, consolidationService)

	// Run migrations; legacy duplicate carts are folded before the
	// single active cart index is built.
	if err := db.Migrate(context.Background(), cfg.Cart.EnforceSingleActive, consolidationService.ConsolidateAll); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Demo catalog for local runs
	if cfg.Server.Environment == "development" {
		if err := db.Seed(); err != nil {
			logger.Warn("Failed to seed database", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	// Session store
	if err := redis.Init(&cfg.Redis); err != nil {
		logger.Fatal("Failed to initialize Redis", err)
	}
	defer func() {
		if err := redis.Close(); err != nil {
			logger.Error("Failed to close Redis connection", err)
		}
	}()
	sessionStore := redis.NewSessionStore(redis.GetClient(), cfg.Session.TTL)

	// Initialize controllers
	cartController := controller.NewCartController(cartService, loginMergeService, sessionStore)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	sessionMiddleware := middleware.NewSessionMiddleware(
		sessionStore,
		cfg.Session.HeaderName,
		cfg.Session.CookieName,
		cfg.Session.TTL,
		cfg.Server.Environment == "production",
	)

	// Background consolidation sweep
	consolidationScheduler := scheduler.NewConsolidationScheduler(consolidationService, cfg.Cart.ConsolidationCron)
	if err := consolidationScheduler.Start(); err != nil {
		logger.Fatal("Failed to start consolidation scheduler", err)
	}
	defer consolidationScheduler.Stop()

	// Setup router
	r := router.NewRouter(cartController, authMiddleware, sessionMiddleware, cfg)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	logger.Info("Server stopped successfully")
}
