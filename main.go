package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rannmann/health-lens/internal/config"
	"github.com/rannmann/health-lens/internal/database"
	"github.com/rannmann/health-lens/internal/fitbit"
	"github.com/rannmann/health-lens/internal/handlers"
	"github.com/rannmann/health-lens/internal/metrics"
	"github.com/rannmann/health-lens/internal/middleware"
	"github.com/rannmann/health-lens/internal/oauth"
	syncsvc "github.com/rannmann/health-lens/internal/sync"
)

func main() {
	// Define CLI flags
	syncUser := flag.String("sync", "", "Run an incremental sync for a user ID and exit")
	backfillUser := flag.String("backfill", "", "Run a backfill for a user ID and exit")
	backfillStart := flag.String("start-date", "", "Backfill start date (YYYY-MM-DD)")
	backfillEnd := flag.String("end-date", "", "Optional end date (YYYY-MM-DD)")
	statusUser := flag.String("status", "", "Print sync progress for a user ID and exit")

	flag.Parse()

	// Check if any CLI command was requested
	if *syncUser != "" || *backfillUser != "" || *statusUser != "" {
		runCLI(*syncUser, *backfillUser, *backfillStart, *backfillEnd, *statusUser)
		return
	}

	// Otherwise, start the server
	runServer()
}

func runCLI(syncUser, backfillUser, startDate, endDate, statusUser string) {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	client := fitbit.NewClient(cfg)
	service := syncsvc.NewService(db, client, cfg, slog.Default())

	switch {
	case syncUser != "":
		handleCLISync(service, syncUser, startDate, endDate)
	case backfillUser != "":
		handleCLIBackfill(service, backfillUser, startDate, endDate)
	case statusUser != "":
		handleCLIStatus(service, statusUser)
	}
}

func handleCLISync(service *syncsvc.Service, userID, startDate, endDate string) {
	fmt.Printf("Syncing user %s...\n", userID)

	result, err := service.SyncUser(context.Background(), userID, startDate, endDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if result.UpToDate {
		fmt.Println("Already up to date.")
		return
	}
	fmt.Printf("✓ Synced %s to %s (%d endpoints)\n", result.StartDate, result.EndDate, result.EndpointsAttempted)
}

func handleCLIBackfill(service *syncsvc.Service, userID, startDate, endDate string) {
	if startDate == "" {
		fmt.Fprintln(os.Stderr, "Error: -start-date is required for backfill")
		os.Exit(1)
	}

	fmt.Printf("Backfilling user %s from %s...\n", userID, startDate)

	if err := service.StartBackfill(userID, startDate, endDate, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The backfill runs in a goroutine; poll until it releases the lock.
	for service.BackfillRunning(userID) {
		time.Sleep(time.Second)
	}

	progress, err := service.BackfillStatus(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Backfill finished:")
	printProgress(progress)
}

func handleCLIStatus(service *syncsvc.Service, userID string) {
	progress, err := service.BackfillStatus(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(progress) == 0 {
		fmt.Println("No sync progress recorded.")
		return
	}
	printProgress(progress)
}

func printProgress(progress []*database.SyncProgress) {
	for _, p := range progress {
		line := fmt.Sprintf("  %-12s %s", p.Endpoint, p.Status)
		if p.LastSyncedDate != nil {
			line += fmt.Sprintf(" (reached %s)", *p.LastSyncedDate)
		}
		if p.Error != nil {
			line += fmt.Sprintf(" error: %s", *p.Error)
		}
		fmt.Println(line)
	}
}

func runServer() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting health-lens server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel)

	epNames := make([]string, 0, len(fitbit.Endpoints))
	for _, ep := range fitbit.Endpoints {
		epNames = append(epNames, string(ep.Key))
	}
	logger.Info("Configured fitbit endpoints: " + strings.Join(epNames, ", "))

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	// Create Fitbit client
	fitbitClient := fitbit.NewClient(cfg)

	// Create OAuth manager and sync service
	oauthManager := oauth.NewManager(cfg, db, fitbitClient, logger)
	syncService := syncsvc.NewService(db, fitbitClient, cfg, logger)

	// Create handlers
	fitbitHandler := handlers.NewFitbitHandler(oauthManager, syncService, logger)

	// Set up HTTP routes
	mux := http.NewServeMux()

	// OAuth endpoints
	mux.Handle("GET /fitbit/auth", middleware.WrapHandler(metrics.EndpointAuth, fitbitHandler.HandleAuth))
	mux.Handle("GET /fitbit/callback", middleware.WrapHandler(metrics.EndpointCallback, fitbitHandler.HandleCallback))

	// Sync and backfill endpoints
	mux.Handle("GET /fitbit/sync/{userId}", middleware.WrapHandler(metrics.EndpointSync, fitbitHandler.HandleSync))
	mux.Handle("POST /fitbit/backfill/{userId}", middleware.WrapHandler(metrics.EndpointBackfill, fitbitHandler.HandleBackfill))
	mux.Handle("GET /fitbit/backfill-status/{userId}", middleware.WrapHandler(metrics.EndpointBackfillStatus, fitbitHandler.HandleBackfillStatus))

	// Connection management endpoints
	mux.Handle("GET /fitbit/status", middleware.WrapHandler(metrics.EndpointStatus, fitbitHandler.HandleStatus))
	mux.Handle("POST /fitbit/disconnect", middleware.WrapHandler(metrics.EndpointDisconnect, fitbitHandler.HandleDisconnect))

	// Health check endpoint
	mux.Handle("/health", middleware.WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  35 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	defer collectorCancel()

	// Start progress collector if metrics are enabled
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting sync progress collector")
			metrics.StartProgressCollector(collectorCtx, db, 15*time.Second)
		}()
	}

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	collectorCancel()

	// Shutdown HTTP servers with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
