package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/trigger-engine/internal/auth"
	"github.com/ksred/trigger-engine/internal/bridge"
	"github.com/ksred/trigger-engine/internal/clock"
	"github.com/ksred/trigger-engine/internal/config"
	"github.com/ksred/trigger-engine/internal/database"
	"github.com/ksred/trigger-engine/internal/engine"
	"github.com/ksred/trigger-engine/internal/feed"
	"github.com/ksred/trigger-engine/internal/history"
	"github.com/ksred/trigger-engine/internal/notify"
	"github.com/ksred/trigger-engine/internal/orders"
	"github.com/ksred/trigger-engine/internal/pricing"
	"github.com/ksred/trigger-engine/internal/settlement"
	"github.com/ksred/trigger-engine/internal/trades"
	"github.com/ksred/trigger-engine/internal/txlog"
	"github.com/ksred/trigger-engine/internal/wallets"
	"github.com/ksred/trigger-engine/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the trigger engine and runs the API server with graceful
// shutdown support.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	clk := clock.System()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Stores
	orderStore := orders.NewDatabase(db)
	walletStore := wallets.NewStore(db)
	txStore := txlog.NewStore(db)
	attemptStore := history.NewStore(db)
	prices := pricing.NewCache(cfg.Engine.PriceCacheTTL(), rdb, clk)

	// Adapters. Simulated until the real per-network services are
	// wired in; the engine only sees the interfaces.
	bridgeAdapter := bridge.NewSimulated()
	registry := settlement.NewRegistry(
		settlement.NewSimulated("eth", prices, txStore),
		settlement.NewSimulated("sol", prices, txStore),
		settlement.NewSimulated("bsc", prices, txStore),
	)

	// Core engine
	orch := engine.NewOrchestrator(bridgeAdapter, registry, attemptStore, cfg.Engine.BridgeMarginPercent)
	index := engine.NewTriggerIndex(orderStore)
	queue := notify.NewQueue(cfg.Notify.QueueSize)
	tpsl := engine.NewTPSLWorkflow(
		orderStore, txStore, index, clk,
		cfg.Engine.ConfirmPollInterval(), cfg.Engine.ConfirmTimeout(), cfg.Engine.PendingTPSLTTL(),
	)
	eng := engine.New(index, orderStore, walletStore, orch, prices, tpsl, queue, cfg.Engine.DefaultSlippage)

	if err := eng.Bootstrap(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap trigger index")
	}

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	orderService := orders.NewService(db, eng)
	orderHandlers := orders.NewGinHandlers(orderService)

	tradeService := trades.NewService(walletStore, orch, tpsl, attemptStore, cfg.Engine.DefaultSlippage)
	tradeHandlers := trades.NewGinHandlers(tradeService)

	feedHandlers := feed.NewGinHandlers(eng)

	hub := notify.NewHub()

	// Background loops
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	sweeper := engine.NewSweeper(
		index, orderStore, tpsl, prices, queue, clk,
		cfg.Engine.SweepInterval(), cfg.Engine.OrderTTL(),
	)
	go sweeper.Start(backgroundCtx)
	go hub.Run(backgroundCtx, queue.Events())

	// Initialize router
	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, orderHandlers, tradeHandlers, feedHandlers, hub)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	backgroundCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	tradeHandlers *trades.GinHandlers,
	feedHandlers *feed.GinHandlers,
	hub *notify.Hub,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/trades", tradeHandlers.ExecuteTradeHandler())
			internal.POST("/ticks", feedHandlers.IngestHandler())
			internal.GET("/attempts/:order_id", tradeHandlers.GetAttemptsHandler())
		}
	}

	// Lifecycle event stream
	router.GET("/ws", hub.Handler())
}
