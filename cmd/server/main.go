package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/config"
	"github.com/statusify/statusify/internal/handlers"
	"github.com/statusify/statusify/internal/middleware"
	"github.com/statusify/statusify/internal/migration"
	"github.com/statusify/statusify/internal/notification"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/routes"
	"github.com/statusify/statusify/internal/session"
	"github.com/statusify/statusify/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config        *config.Config
	db            *sql.DB
	logger        zerolog.Logger
	notifications notification.Service
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize notification service.
	mailer, err := notification.NewMailer(cfg.Email, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure mailer")
	}
	notificationService := notification.NewService(
		repository.NewJobRepository(db),
		repository.NewIncidentRepository(db),
		repository.NewSubscriberRepository(db),
		mailer,
		cfg.AppURL,
		logger,
	)

	// Create the application instance.
	app := &application{
		config:        cfg,
		db:            db,
		logger:        logger,
		notifications: notificationService,
	}

	// Start the job worker in a separate goroutine.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := app.startWorker(workerCtx, logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	handler := h.RecoveryHandler(h.RecoveryLogger(recoveryLogger{logger}), h.PrintRecoveryStack(true))(loggedRouter)
	handler = h.ProxyHeaders(handler)
	if len(cfg.CORSOrigins) > 0 {
		handler = h.CORS(
			h.AllowedOrigins(cfg.CORSOrigins),
			h.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
			h.ExposedHeaders([]string{handlers.OutcomeHeader, middleware.RequestIDHeader}),
			h.AllowCredentials(),
		)(handler)
	}

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(handler, logger)

	logger.Info().Msg("Stopping job worker...")
	stopWorker()
	workerDone.Wait()
	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	userRepo := repository.NewUserRepository(app.db)
	incidentRepo := repository.NewIncidentRepository(app.db)
	subscriberRepo := repository.NewSubscriberRepository(app.db)

	renderer, err := handlers.NewRenderer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse templates")
	}
	sessions := session.NewManager(app.config.SessionSecret, app.config.SessionTTL, strings.HasPrefix(app.config.AppURL, "https://"))

	// Handlers
	return routes.NewRouter(routes.Handlers{
		DB:          app.db,
		Auth:        handlers.NewAuthHandler(userRepo, sessions, renderer, logger),
		Home:        handlers.NewHomeHandler(incidentRepo, renderer, logger),
		Incidents:   handlers.NewIncidentHandler(incidentRepo, app.notifications, renderer, logger),
		Status:      handlers.NewStatusHandler(incidentRepo, app.config.AppURL, logger),
		Subscribers: handlers.NewSubscriberHandler(subscriberRepo, app.notifications, logger),
	})
}

func (app *application) startWorker(ctx context.Context, logger zerolog.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	if !app.config.Worker.Enabled {
		logger.Info().Msg("Job worker disabled")
		return &wg
	}

	w, err := worker.NewWorker(worker.WorkerConfig{
		JobRepo:      repository.NewJobRepository(app.db),
		Notifier:     app.notifications,
		PollInterval: app.config.Worker.PollInterval,
		MaxAttempts:  app.config.Worker.MaxAttempts,
		MaxRunTime:   app.config.Worker.MaxRunTime,
		Queue:        app.config.Worker.Queue,
		Name:         app.config.Worker.Name,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create job worker")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Job worker exited")
		}
	}()
	return &wg
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}

// recoveryLogger routes gorilla's panic reports into zerolog.
type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msgf("%v", v)
}
