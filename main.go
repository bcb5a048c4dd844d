package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hackday-platform/checkin-api/api"
	"github.com/hackday-platform/checkin-api/attendance"
	"github.com/hackday-platform/checkin-api/database"
	"github.com/hackday-platform/checkin-api/metrics"
	"github.com/hackday-platform/checkin-api/middleware"
	"github.com/hackday-platform/checkin-api/models"
	"github.com/hackday-platform/checkin-api/qr"
	"github.com/hackday-platform/checkin-api/services"
	"github.com/hackday-platform/checkin-api/tasks"
	"github.com/jonboulle/clockwork"

	"go.uber.org/zap"
)

func waitForTermination() {
	// Trap termination signals
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received.
	<-c

	// Allow subsequent termination signals to quickly shut down by removing the trap.
	signal.Reset()
	close(c)
}

var logger *zap.Logger

// Logger initialization.
func initLogger(debug bool) error {
	var cfg zap.Config
	var err error

	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err = cfg.Build()
	return err
}

func main() {
	var cfg config
	var err error

	// Parse command line arguments.
	if cfg, err = parseArguments(); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing command-line arguments: %v\n", err)
		os.Exit(1)
	}

	// Initialize the logger.
	if err := initLogger(cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	// Metrics registry; the handler is mounted on the router below.
	metricsHandler, err := metrics.Init("checkin_api")
	if err != nil {
		logger.Fatal("Unable to initialize metrics", zap.Error(err))
	}
	defer metrics.Deinit()

	// Connect to the database and initialize the schema, if necessary.
	var db *sql.DB
	db, err = database.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("Unable to open the database connection", zap.Error(err))
	}
	defer db.Close()

	// Clock
	clock := clockwork.NewRealClock()

	// Attendance store. All attendance mutations in the process go through
	// this store's set-add upsert.
	store := attendance.NewRedisStore(cfg.RedisAddr)
	if err := store.Ping(context.Background()); err != nil {
		logger.Fatal("Unable to reach the attendance store", zap.Error(err))
	}
	defer store.Close()

	// The QR codec derives its key from the service secret once, here, and
	// holds it for the life of the process.
	codec := qr.NewCodec([]byte(cfg.QRSecret), cfg.QRTTL, clock)

	// API access tokens for staff scanners and attendees.
	auth := middleware.NewAuthenticator([]byte(cfg.JWTSecret), clock)

	// In-memory event catalog, kept warm by a background task.
	catalog := models.NewEventCatalog()

	// Services contain the business logic and are used by the API handlers.
	svcCfg := &services.ServiceConfig{
		DB:            db,
		Codec:         codec,
		Attendance:    store,
		Catalog:       catalog,
		CatalogMaxAge: cfg.EventCacheMaxAge,
		Logger:        logger,
		Clock:         clock,
	}
	svc := services.NewService(svcCfg)
	if err := svc.Init(); err != nil {
		logger.Fatal("Unable to initialize the service layer", zap.Error(err))
	}

	// Background task to keep the event catalog cache fresh.
	refreshEvents := tasks.NewRefreshEventsTask(svc, catalog, cfg.RefreshInterval, logger)
	go refreshEvents.Run()

	// Background task to repair one-sided attendance records.
	reconcile := tasks.NewReconcileAttendanceTask(store, cfg.ReconcileInterval, logger)
	go reconcile.Run()

	// Create the API router.
	path := "/checkin/v1/"
	router := api.NewAPIRouter(path, svc, auth, cfg.AllowedOrigins, metricsHandler, logger)

	// Listen on the provided address. This listener will be used by the HTTP server.
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to listen on provided address %s\n%v\n", cfg.ListenAddr, err)
		os.Exit(1)
	}

	// Spin up the HTTP server on a different goroutine, since it blocks.
	server := http.Server{Handler: router}
	var serverWaitGroup sync.WaitGroup
	serverWaitGroup.Add(1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("url", cfg.ListenAddr))
		if err := server.Serve(listener); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
		serverWaitGroup.Done()
	}()

	waitForTermination()

	// Shut down gracefully
	logger.Info("Received termination signal, shutting down...")
	_ = server.Shutdown(context.Background())
	listener.Close()

	// Wait for the listener/server to exit
	serverWaitGroup.Wait()

	// Shut down the service layer
	svc.Deinit()

	// Stop the background tasks
	if err = refreshEvents.Stop(); err != nil {
		logger.Error("Error stopping background tasks", zap.Error(err))
	}
	if err = reconcile.Stop(); err != nil {
		logger.Error("Error stopping background tasks", zap.Error(err))
	}

	logger.Info("Shutdown complete")

	_ = logger.Sync()
}
