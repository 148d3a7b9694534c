// Package main is the entry point for the issuance registry server binary.
// It dispatches four subcommands (serve, migrate, version and token) via a
// switch on os.Args. The serve command runs auto-migration on startup so a
// fresh deployment never needs a separate migration step.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lgu-records/issuance-registry/internal/api"
	"github.com/lgu-records/issuance-registry/internal/audit"
	"github.com/lgu-records/issuance-registry/internal/auth"
	"github.com/lgu-records/issuance-registry/internal/config"
	"github.com/lgu-records/issuance-registry/internal/db"
	"github.com/lgu-records/issuance-registry/internal/services"
	"github.com/lgu-records/issuance-registry/internal/storage"
	"github.com/lgu-records/issuance-registry/internal/telemetry"

	_ "github.com/lgu-records/issuance-registry/internal/storage/azure"
	_ "github.com/lgu-records/issuance-registry/internal/storage/gcs"
	_ "github.com/lgu-records/issuance-registry/internal/storage/local"
	_ "github.com/lgu-records/issuance-registry/internal/storage/s3"
)

const tokenTTL = 12 * time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("RMS_CONFIG_PATH"), "path to config.yaml")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flags.Args()

	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	if command == "version" {
		fmt.Printf("Issuance Registry v%s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		direction := "up"
		if len(args) > 1 {
			direction = args[1]
		}
		return runMigrations(cfg, direction)
	case "token":
		if len(args) < 3 {
			return fmt.Errorf("usage: %s token <user-id> <email>", os.Args[0])
		}
		return mintToken(args[1], args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version, token", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database.DB)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to read migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	backend, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise storage: %w", err)
	}
	blobs := storage.NewBlobStore(backend, cfg.Storage.DefaultBackend, cfg.Storage.URLTTL)

	// A nil interface disables forwarding; a typed nil would not.
	var forwarder services.AuditForwarder
	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return fmt.Errorf("failed to initialise audit shippers: %w", err)
	}
	var dispatcher *audit.Dispatcher
	if shipper.Len() > 0 {
		dispatcher = audit.NewDispatcher(shipper, cfg.Audit.BufferSize)
		forwarder = dispatcher
		slog.Info("audit shipping enabled", "shippers", shipper.Len())
	}

	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	router, bgServices := api.NewRouter(cfg, database, blobs, forwarder)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"storage_backend", blobs.Backend(),
			"version", api.Version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	bgServices.Shutdown()
	// Close drains the queue and closes the shippers
	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			slog.Warn("audit dispatcher close failed", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

// startMetricsServer serves /metrics on its own port, off the public ingress path.
func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting Prometheus metrics server", "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

func runMigrations(cfg *config.Config, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}

// mintToken prints a signed bearer token for an operator account
func mintToken(userID, email string) error {
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	token, err := auth.GenerateJWT(userID, email, tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}
