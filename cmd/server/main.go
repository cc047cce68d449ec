package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketglass/internal/cache"
	"marketglass/internal/config"
	"marketglass/internal/handler"
	"marketglass/internal/provider"
	"marketglass/internal/ratelimit"
	"marketglass/internal/scrape"
	"marketglass/internal/service"
	"marketglass/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "marketglass/docs"
)

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	newSnapshotsFunc = func(ctx context.Context, addr string) (cache.SnapshotStore, error) {
		return cache.NewRedisSnapshots(ctx, addr)
	}
	newScrapersFunc = func(tracer trace.Tracer) []provider.Scraper {
		return []provider.Scraper{
			provider.NewFinvizScraper(tracer),
			provider.NewYahooScraper(tracer),
			provider.NewTradingViewScraper(tracer),
		}
	}
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           MarketGlass API
// @version         1.0
// @description     Scrapes financial market data from multiple public sources and serves a merged, cached view.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Optional Redis snapshot tier; the in-memory cache carries the read
	// path on its own when Redis is absent.
	var snapshots cache.SnapshotStore
	if cfg.RedisURL != "" {
		snapshots, err = newSnapshotsFunc(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: redis unavailable, continuing without snapshots: %v", err)
			snapshots = nil
		}
	}

	// Assemble the pipeline: scrapers, coordinator, cache, limiter, service
	scrapers := newScrapersFunc(tracer)
	coordinator := scrape.NewCoordinator(tracer, scrapers, time.Duration(cfg.ScrapeTimeoutSecs)*time.Second)
	documentCache := cache.New(tracer, time.Duration(cfg.CacheTTLSecs)*time.Second, snapshots)
	limiter := ratelimit.NewWindow(cfg.RateLimitPerMin, time.Duration(cfg.RateLimitWindowSec)*time.Second)

	markets := service.NewMarketService(tracer, coordinator, documentCache, limiter, scrapers, cfg.EnabledSources, cfg.AllowStale)

	// Create handlers and routes
	h := newHandlerFunc(tracer, markets)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("marketglass"))

	h.RegisterRoutes(r, handler.APIKeyAuth(cfg.APIKey))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
