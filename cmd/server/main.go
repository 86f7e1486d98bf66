package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/partsport/offer-service/config"
	"github.com/partsport/offer-service/internal/audit"
	"github.com/partsport/offer-service/internal/cart"
	"github.com/partsport/offer-service/internal/database"
	"github.com/partsport/offer-service/internal/handlers"
	"github.com/partsport/offer-service/internal/middleware"
	"github.com/partsport/offer-service/internal/offers"
	"github.com/partsport/offer-service/internal/sweepers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting offer service")

	ctx := context.Background()

	// The database only backs the reconciliation audit trail; the service
	// runs without it.
	var auditStore *audit.Store
	var auditSweeper *sweepers.AuditSweeper
	if dbURL := config.GetDatabaseURL(); dbURL != "" {
		if err := database.Connect(
			ctx,
			dbURL,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			cfg.Database.MaxConnLifetime,
			cfg.Database.MaxConnIdleTime,
		); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()

		auditStore = audit.NewStore(database.Pool())
		if err := auditStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to prepare audit schema")
		}
		logger.Info().Msg("Database connected")

		auditSweeper = sweepers.NewAuditSweeper(auditStore, logger, cfg.Audit.CleanupInterval, cfg.Audit.Retention)
		go auditSweeper.Start(ctx)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, audit trail disabled")
	}

	client := offers.NewClient(offers.ClientConfig{
		Endpoint:          cfg.Backend.GraphQLURL,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	})
	backend := cart.NewBackend(cart.BackendConfig{
		Endpoint: cfg.Backend.GraphQLURL,
		Timeout:  cfg.Backend.Timeout,
	})
	cartSvc := cart.NewService(backend)
	cache := offers.NewCache(client, cartSvc.Snapshot, offers.CacheConfig{
		MaxEntries:   cfg.Cache.MaxEntries,
		FetchTimeout: cfg.Cache.FetchTimeout,
	})
	reconciler := cart.NewReconciler(cartSvc, cache)
	orchestrator := cart.NewOrchestrator(cache, cartSvc, nil)

	if err := cartSvc.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load cart from backend")
	}

	api := handlers.NewAPI(cache, cartSvc, reconciler, orchestrator, auditStore)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	// Public routes get per-IP limiting; the internal group below is keyed
	// and shares one service-wide budget instead.
	public := router.Group("/")
	public.Use(middleware.RateLimitMiddleware())
	{
		public.GET("/health", handlers.HealthCheck)
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(os.Getenv("INTERNAL_API_KEY")))
	internal.Use(middleware.ServiceRateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	{
		internal.GET("/health", handlers.HealthCheck)

		offerRoutes := internal.Group("/offers")
		{
			offerRoutes.GET("/:brand/:article", api.GetOffers)
			offerRoutes.DELETE("/:brand/:article", api.InvalidateOffers)
		}

		cartRoutes := internal.Group("/cart")
		{
			cartRoutes.GET("", api.GetCart)
			cartRoutes.DELETE("", api.ClearCart)
			cartRoutes.POST("/items", api.AddItem)
			cartRoutes.PATCH("/items/:itemId", api.UpdateQuantity)
			cartRoutes.DELETE("/items/:itemId", api.RemoveItem)
		}

		checkout := internal.Group("/checkout")
		{
			checkout.POST("/verify", api.VerifyCheckout)
			checkout.POST("/settle", api.SettleCheckout)
			checkout.POST("/confirm", api.ConfirmCheckout)
			checkout.GET("/passes", api.ListPasses)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	if auditSweeper != nil {
		auditSweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "offer-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
