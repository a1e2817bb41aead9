package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yishak-cs/storefront-recs/internal/cache"
	"github.com/yishak-cs/storefront-recs/internal/database"
	"github.com/yishak-cs/storefront-recs/internal/handlers"
	"github.com/yishak-cs/storefront-recs/internal/logger"
	"github.com/yishak-cs/storefront-recs/internal/metrics"
	"github.com/yishak-cs/storefront-recs/internal/services"
	"github.com/yishak-cs/storefront-recs/pkg/helper"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	config, err := helper.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(config.Env, config.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLog.Sync()

	if err := run(config, appLog); err != nil {
		appLog.Fatal("Server stopped", "error", err)
	}
}

func run(config *helper.Config, appLog *logger.Logger) error {
	ctx := context.Background()

	// Relational store
	db, err := database.Open(config.SQL(), appLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			appLog.Error("Error closing database", "error", err)
		}
	}()
	if err := database.AutoMigrate(ctx, db, appLog); err != nil {
		return err
	}
	store := database.NewStore(db)
	m := metrics.New()

	// Optional Redis cache for trending and seasonal lists
	var idCache cache.IDCache = cache.Noop{}
	var redisCache *cache.RedisCache
	if config.RedisAddr != "" {
		redisCache, err = cache.NewRedisCache(ctx, config.Cache(), appLog)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		idCache = redisCache
	}

	// Optional Neo4j projection for also-bought, behind a breaker with SQL fallback
	var copurchase services.CoPurchaseSource = store
	var graph *database.CoPurchaseGraph
	var syncer *database.GraphSyncer
	if config.Neo4j().Enabled() {
		neo4jClient, err := database.NewNeo4jClient(ctx, config.Neo4j(), appLog)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := neo4jClient.Close(closeCtx); err != nil {
				appLog.Error("Error closing Neo4j connection", "error", err)
			}
		}()

		graph = database.NewCoPurchaseGraph(neo4jClient, appLog)
		if err := graph.EnsureSchema(ctx); err != nil {
			return err
		}
		syncer = database.NewGraphSyncer(store, graph, 0, appLog)
		if config.GraphSyncOnStart {
			syncCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			report, err := syncer.SyncAll(syncCtx)
			cancel()
			if err != nil {
				return err
			}
			appLog.Info("Graph sync finished", "products", report.Products, "order_lines", report.OrderLines, "removed_orders", report.RemovedOrders)
		}
		if config.GraphSyncInterval > 0 {
			syncCtx, stopSync := context.WithCancel(ctx)
			defer stopSync()
			go syncer.Run(syncCtx, config.GraphSyncInterval)
		}
		copurchase = services.NewBreakerSource(graph, store, services.BreakerSettings{}, m, appLog)
	}

	// Initialize services
	opts := services.Options{TrendingWindow: config.TrendingWindow()}
	recommendationService := services.NewRecommendationService(store, copurchase, idCache, m, appLog, opts)
	viewTracker := services.NewViewTracker(store, m, appLog, opts)
	productPages := services.NewProductPageService(recommendationService, viewTracker)
	searchService := services.NewSearchService(store, m, appLog, opts)

	// Initialize API handlers
	apiHandler := handlers.NewAPIHandler(recommendationService, viewTracker, productPages, searchService, appLog).
		WithViewRateLimit(config.ViewRateLimit, config.ViewRateBurst)
	apiHandler.AddHealthCheck("database", func(ctx context.Context) error { return database.Ping(ctx, db) })
	if redisCache != nil {
		apiHandler.AddHealthCheck("cache", redisCache.Ping)
	}
	if graph != nil {
		apiHandler.WithGraph(syncer, graph)
		apiHandler.AddHealthCheck("graph", graph.Health)
	}

	// Setup Gin router
	if config.Env == "production" || config.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Customer-ID", "X-Session-Key"},
		MaxAge:       12 * time.Hour,
	}
	if len(config.CORSOrigins) == 1 && config.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))
	router.Use(m.Middleware())

	apiHandler.SetupRoutes(router)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})

	// Create server with graceful shutdown
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("Server starting", "port", config.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	appLog.Info("Shutting down server...")

	// Gracefully shutdown with a timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	appLog.Info("Server exited properly")
	return nil
}
