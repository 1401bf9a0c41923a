package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/i474232898/agroclimate/internal/api/http"
	"github.com/i474232898/agroclimate/internal/climate"
	"github.com/i474232898/agroclimate/internal/climate/sources"
	"github.com/i474232898/agroclimate/internal/config"
	"github.com/i474232898/agroclimate/internal/geo"
	"github.com/i474232898/agroclimate/internal/scheduler"
	"github.com/i474232898/agroclimate/internal/store"
	"github.com/i474232898/agroclimate/internal/suitability"
)

// seriesStore is a climate.Store that may hold resources.
type seriesStore interface {
	climate.Store
	Close() error
}

type nopCloser struct{ climate.Store }

func (nopCloser) Close() error { return nil }

func openStore(cfg config.StoreConfig) (seriesStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.OpenSQLite(cfg.SQLitePath, cfg.MaxAge)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return store.NewRedisStore(client, cfg.MaxAge), nil
	default:
		return nopCloser{store.NewMemoryStore(cfg.MaxEntries, cfg.MaxAge)}, nil
	}
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound source calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	seriesCache, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer seriesCache.Close()
	log.Printf("INFO: using %s series store", cfg.Store.Driver)

	// Source adapters, each behind its own circuit breaker.
	registry := climate.NewRegistry(
		sources.NewNASAPowerSource(httpClient),
		sources.NewERA5Source(httpClient),
		sources.NewSIARSource(httpClient, cfg.SIARAPIKey, cfg.SIARStations),
		sources.NewAEMETSource(httpClient, cfg.AEMETAPIKey, cfg.AEMETMunicipalities),
	)

	service := climate.NewService(registry, seriesCache, cfg.Pipeline)
	engine := suitability.NewEngine(suitability.DefaultCatalogue())

	var geocoder httpapi.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocoder = geo.NewPostalResolver(cfg.GeocoderAPIKey, cfg.GeocoderCountry)
	} else {
		log.Printf("INFO: GEOCODER_API_KEY not set; postal code lookup disabled")
	}

	// Scheduler that prunes the cache and warms configured points.
	sched := scheduler.New(service, seriesCache, cfg.DefaultSource, cfg.WarmLocations, cfg.WarmDays, cfg.SchedulerInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "agroclimate",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Historical pulls fan out over several upstream calls.
		WriteTimeout: cfg.HTTPTimeout + 30*time.Second,
		ErrorHandler: httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "agroclimate",
			"sources": registry.Descriptors(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	app.Use("/api", httpapi.RequestTimeout(cfg.HTTPTimeout+20*time.Second))
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:       service,
		Engine:        engine,
		Geocoder:      geocoder,
		DefaultSource: cfg.DefaultSource,
		Limits:        cfg.Limits,
	})

	go func() {
		log.Printf("INFO: listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
