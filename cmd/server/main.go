package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thehypeloop/dialmate/backend/internal/aggregator"
	"github.com/thehypeloop/dialmate/backend/internal/api"
	"github.com/thehypeloop/dialmate/backend/internal/auth"
	"github.com/thehypeloop/dialmate/backend/internal/campaign"
	"github.com/thehypeloop/dialmate/backend/internal/config"
	"github.com/thehypeloop/dialmate/backend/internal/dialer"
	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/feedback"
	"github.com/thehypeloop/dialmate/backend/internal/metrics"
	"github.com/thehypeloop/dialmate/backend/internal/publisher"
	"github.com/thehypeloop/dialmate/backend/internal/reminder"
	"github.com/thehypeloop/dialmate/backend/internal/sequencer"
	"github.com/thehypeloop/dialmate/backend/internal/storage"
	"github.com/thehypeloop/dialmate/backend/internal/ticker"
	"github.com/thehypeloop/dialmate/backend/internal/websocket"
	"github.com/thehypeloop/dialmate/backend/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("dialer_mode", cfg.DialerMode).
		Msg("starting dialmate backend server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create persistence store
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}

	// Create contact directory and hydrate it from the store
	dir := directory.New(store, log.Logger)
	if err := dir.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to hydrate contact directory")
	}
	go dir.WatchStore(ctx)

	// Create WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	// Create WebSocket handler and status publisher
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)
	statusPublisher := publisher.NewHubPublisher(hub, log.Logger)

	// Create reminder scheduler and feedback recorder
	scheduler := reminder.NewScheduler(log.Logger)
	defer scheduler.Stop()
	recorder := feedback.NewRecorder(dir, scheduler, log.Logger)

	// Create campaign engine
	engine := sequencer.NewEngine(sequencer.Config{
		CallDelay:     cfg.CallDelay,
		CountdownTick: cfg.CountdownTick,
		DialGrace:     cfg.DialGrace,
	}, dir, dialer.New(cfg, log.Logger), recorder, statusPublisher, log.Logger)
	go engine.Run(ctx)

	// Callback reminders re-enter contacts as manual dials
	scheduler.SetHandler(func(phone, name string) {
		if err := engine.ManualDial(name, phone); err != nil {
			log.Warn().Err(err).Str("phone", phone).Msg("reminder could not interject call")
		}
	})

	// Broadcast periodic heartbeats so idle dashboards can detect stale connections
	heartbeat := ticker.NewTicker(hub, engine, cfg.HeartbeatInterval, log.Logger)
	go heartbeat.Start(ctx)

	// Broadcast directory summaries for dashboard overview panels
	agg := aggregator.NewAggregator(dir, hub, 15*time.Second, log.Logger)
	go agg.Start(ctx)

	// Create queue builder and HTTP handlers
	builder := campaign.NewBuilder(dir, store, log.Logger)
	campaignHandler := api.NewCampaignHandler(engine, builder, log.Logger)
	contactsHandler := api.NewContactsHandler(dir, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api/campaign", func(r chi.Router) {
			r.Use(api.RequireOperator)
			r.Post("/import", campaignHandler.Import)
			r.Post("/filter", campaignHandler.Filter)
			r.Post("/remote", campaignHandler.Remote)
			r.Post("/start", campaignHandler.Start)
			r.Post("/pause", campaignHandler.Pause)
			r.Post("/resume", campaignHandler.Resume)
			r.Post("/feedback", campaignHandler.Feedback)
			r.Post("/manual-dial", campaignHandler.ManualDial)
			r.Get("/status", campaignHandler.Status)
		})

		r.Route("/api/contacts", func(r chi.Router) {
			r.Get("/", contactsHandler.List)
			r.Get("/{phone}", contactsHandler.Get)
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the engine and background services
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"dialmate-backend"}`)
}
