package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/bizmatters/field-sales/visit-guard/internal/auth"
	"github.com/bizmatters/field-sales/visit-guard/internal/coherence"
	"github.com/bizmatters/field-sales/visit-guard/internal/config"
	"github.com/bizmatters/field-sales/visit-guard/internal/gateway"
	"github.com/bizmatters/field-sales/visit-guard/internal/gps"
	"github.com/bizmatters/field-sales/visit-guard/internal/logging"
	"github.com/bizmatters/field-sales/visit-guard/internal/metrics"
	"github.com/bizmatters/field-sales/visit-guard/internal/realtime"
	"github.com/bizmatters/field-sales/visit-guard/internal/store"
	"github.com/bizmatters/field-sales/visit-guard/internal/tracking"
	"github.com/bizmatters/field-sales/visit-guard/internal/trust"
	"github.com/bizmatters/field-sales/visit-guard/internal/visits"

	_ "github.com/bizmatters/field-sales/visit-guard/docs" // swagger docs
)

// @title Visit Guard API
// @version 1.0
// @description GPS trust and anti-fraud pipeline for field sales visits.
// @description
// @description Agents start and close client visits with a validated GPS fix; mocked or tampered
// @description fixes cost trust, and agents under the block threshold cannot check in.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

// backend is everything the service needs from primary storage
type backend interface {
	trust.Repository
	visits.Repository
	coherence.History
	tracking.Recorder
	tracking.Preferences
	gateway.LivePositions
}

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, _, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	tp, err := initTracer()
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer tp.Shutdown(context.Background())

	ctx := context.Background()

	var (
		db    backend
		ready gateway.Pinger
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		db = store.NewMemory()
	default:
		logger.Info("connecting to PostgreSQL database")
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectAttempts, cfg.Database.ConnectWait)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := store.NewPostgres(pool)
		applied, err := pg.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("connected to PostgreSQL database", "migrations_applied", applied)
		db, ready = pg, pg
	}

	var prefs tracking.Preferences = db
	if cfg.Preferences.Driver == config.PreferencesDriverSQLite {
		sp, err := store.NewSQLitePreferences(cfg.Preferences.SQLitePath)
		if err != nil {
			return err
		}
		defer sp.Close()
		prefs = sp
	}

	guardMetrics, err := metrics.NewGuardMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	trustStore := trust.NewStore(db, logger, guardMetrics)
	deviceBridge := gps.NewBridgeClient(cfg.Bridge.URL, cfg.GPS.LocateTimeout, logger)
	validator := gps.NewValidator(nil, cfg.GPS.LocateTimeout, logger, guardMetrics)
	checker := coherence.NewChecker(db, logger)
	hub := realtime.NewHub(logger)

	tracker := tracking.NewService(prefs, db, deviceBridge,
		tracking.WithInterval(cfg.Tracking.Interval),
		tracking.WithLocateTimeout(cfg.GPS.LocateTimeout),
		tracking.WithPublisher(hub),
		tracking.WithLogger(logger),
		tracking.WithMetrics(guardMetrics),
	)
	if err := tracker.Initialize(ctx); err != nil {
		logger.Warn("failed to resume tracking schedules", "error", err)
	}
	tracker.Start()

	controller := visits.NewController(db, trustStore, validator, checker,
		visits.WithLogger(logger),
		visits.WithMetrics(guardMetrics),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gateway.NewRouter(gateway.RouterConfig{
		Handler:      gateway.NewHandler(trustStore, gps.NewPenalizingCheck(validator, trustStore, logger), controller, tracker, logger),
		LiveFeed:     gateway.NewLiveFeed(hub, db, logger),
		JWTManager:   jwtManager,
		Ready:        ready,
		DeviceBridge: deviceBridge,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting visit guard API server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	select {
	case <-tracker.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("tracking ticks still running at shutdown")
	}

	logger.Info("server exited")
	return nil
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return tp, nil
}
