package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/citibike-forecast/internal/api/http"
	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/config"
	"github.com/i474232898/citibike-forecast/internal/featurestore"
	"github.com/i474232898/citibike-forecast/internal/forecast"
	"github.com/i474232898/citibike-forecast/internal/model"
	"github.com/i474232898/citibike-forecast/internal/scheduler"
	"github.com/i474232898/citibike-forecast/internal/store"
	"github.com/i474232898/citibike-forecast/internal/weather"
	"github.com/i474232898/citibike-forecast/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Feature store session, held for the whole process.
	session, err := featurestore.Open(ctx, featurestore.Config{
		Backend:    cfg.FeatureStoreBackend,
		DSN:        cfg.FeatureStoreDSN,
		BaseURL:    cfg.FeatureStoreURL,
		Project:    cfg.FeatureStoreProject,
		APIKey:     cfg.FeatureStoreAPIKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		log.Fatalf("failed to open feature store: %v", err)
	}
	defer session.Close()

	reader := featurestore.NewReader(session, featurestore.DefaultRefs())
	if len(cfg.Stations) > 0 {
		reader.WithStations(cfg.Stations)
	}

	// Weather providers with resilience (backoff + circuit breaker).
	// Open-Meteo needs no API key; the others are enabled by their keys.
	provs := []weather.Provider{providers.NewOpenMeteoProvider(httpClient)}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}

	var geocode weather.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geocode = weather.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	}
	weatherService := weather.NewService(provs, cfg.Locations, geocode, cfg.WeatherCacheSize)

	// Model: local artifact first, then the registry's best version.
	modelProvider := &model.Provider{
		FileName:    cfg.ModelFile,
		SearchRoot:  cfg.ModelSearchRoot,
		ModelName:   cfg.ModelName,
		Metric:      cfg.ModelMetric,
		SortOrder:   model.SortOrder(cfg.ModelSortOrder),
		DownloadDir: cfg.ModelDownloadDir,
		Features:    cfg.ModelFeatures,
	}
	if cfg.ModelRegistryURL != "" {
		modelProvider.Registry = model.NewHTTPRegistry(httpClient, cfg.ModelRegistryURL, cfg.FeatureStoreProject, cfg.FeatureStoreAPIKey)
	}
	regressor, err := modelProvider.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	log.Printf("INFO: model has %d trees over %d features", regressor.NumTrees(), len(regressor.FeatureNames()))

	// Core service: once-fetched training data, stations and last date.
	orchestrator := forecast.NewOrchestrator(forecast.NewEngineer(), weatherService, cfg.WeatherCity)
	service, err := forecast.NewService(ctx, reader, orchestrator, regressor, forecast.ServiceConfig{
		Curated: cfg.CuratedStations,
		MinDays: cfg.MinDays,
		MaxDays: cfg.MaxDays,
	})
	if err != nil {
		log.Fatalf("failed to start forecast service: %v", err)
	}

	// In-memory run store with configured retention.
	runs := store.NewMemoryStore(cfg.StoreMaxRuns, cfg.StoreMaxAge)

	// Scheduler that periodically refreshes the default forecast.
	sched := scheduler.New(cfg.DefaultStations, cfg.DefaultHorizonDays, cfg.SchedulerInterval, cfg.ForecastTimeout, service, runs)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "citibike-forecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"service":         "citibike-forecast",
			"last_known_date": common.FormatDate(service.LastKnownDate()),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, runs)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
