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

	"gymbooking/internal/api"
	"gymbooking/internal/cache"
	"gymbooking/internal/clock"
	"gymbooking/internal/config"
	"gymbooking/internal/database"
	"gymbooking/internal/events"
	"gymbooking/internal/metrics"
	"gymbooking/internal/scheduler"
	"gymbooking/internal/slots"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := config.LoadEnv(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(os.Getenv("GYM_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("gymbooking stopped")
	}
	logger.Info().Msg("gymbooking stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("app", cfg.App.Name).Logger()
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		rdb, err = cache.Connect(pingCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, slot cache disabled")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	slotCache := cache.NewSlotCache(rdb, cfg.SlotCacheTTL(), logger)
	var schedCache scheduler.SlotCache
	if slotCache != nil {
		schedCache = slotCache
	}

	// Initial load + hot reload of the trainer and service catalog
	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(), logger,
		func(ctx context.Context, c *config.Catalog) error {
			if err := db.SyncCatalog(ctx, c); err != nil {
				return err
			}
			if err := slotCache.Flush(ctx); err != nil {
				logger.Warn().Err(err).Msg("slot cache flush failed")
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}

	bus := events.NewBus(logger)
	scheduler.Subscribe(bus, schedCache, logger)

	svc := scheduler.NewService(scheduler.Deps{
		Catalog:      db,
		Availability: db,
		Bookings:     db,
		Clock:        clock.Real{Location: loc},
		Resolver:     slots.NewResolver(cfg.Booking.SlotStepMinutes),
		Cache:        schedCache,
		Bus:          bus,
		Logger:       logger,
	})

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup.Path, cfg.BackupInterval(), cfg.BackupRetention(), logger)
		go backups.Start(ctx)
	}

	server := api.NewHTTPServer(svc, api.Options{
		Port:      cfg.API.Port,
		APIKey:    cfg.API.APIKey,
		RateLimit: rate.Limit(cfg.API.RateLimitPerSecond),
		Burst:     cfg.API.RateLimitBurst,
		Timeout:   cfg.APITimeout(),
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logger.Info().Str("timezone", loc.String()).Msg("gymbooking started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ready(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}, "metrics", logger)
}

func serve(ctx context.Context, srv *http.Server, name string, logger zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
