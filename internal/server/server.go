// Package server wires the calmerge components into an HTTP server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dtorcivia/calmerge/internal/api"
	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/crypto"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/engine"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/google"
	"github.com/dtorcivia/calmerge/internal/icsfeed"
	"github.com/dtorcivia/calmerge/internal/notifications"
	"github.com/dtorcivia/calmerge/internal/notifications/ntfy"
	"github.com/dtorcivia/calmerge/internal/notifications/webhook"
	"github.com/dtorcivia/calmerge/internal/server/middleware"
	"github.com/dtorcivia/calmerge/internal/settings"
	"github.com/dtorcivia/calmerge/internal/unified"
	"github.com/dtorcivia/calmerge/internal/util"
	"github.com/dtorcivia/calmerge/internal/workers"
)

// maintenanceSchedule is when audit pruning and VACUUM checks run.
const maintenanceSchedule = "@hourly"

// Server is the main HTTP server for calmerge.
type Server struct {
	config      *config.Config
	db          *database.DB
	router      *http.ServeMux
	settings    *settings.Store
	verifier    *crypto.TokenVerifier
	rateLimiter *middleware.RateLimiter
	mux         *gateway.Mux
	engine      *engine.Engine
	apiHandler  *api.Handler
	scheduler   *workers.Scheduler
	syncWorker  *workers.SyncWorker
	maintenance *workers.MaintenanceWorker
}

// New creates a new Server instance.
func New(cfg *config.Config, db *database.DB) (*Server, error) {
	settingsStore := settings.NewStore(db)
	loc := settings.DisplayLocation(cfg)

	var (
		verifier *crypto.TokenVerifier
		err      error
	)
	if cfg.Auth.APIToken != "" {
		verifier, err = crypto.NewTokenVerifier(cfg.Auth.APIToken, cfg.Auth.SecretKey)
		if err != nil {
			return nil, err
		}
	} else {
		util.Warn("No API token configured, /api is unauthenticated")
	}

	repo := calendars.NewRepository(db)
	mux := gateway.NewMux()
	queue := engine.NewExpiryQueue(repo, nil)
	gw := gateway.New(mux, queue, util.GetDefaultLogger())
	eng := engine.New(repo, gw, engine.NewAuditLogger(db), queue, engine.Options{
		MaxOccurrences: cfg.Expansion.MaxOccurrencesPerEvent,
		MaxWindow:      cfg.Expansion.MaxWindow,
		Location:       loc,
	})
	apiHandler := api.NewHandler(cfg, eng)

	if cfg.Unified.Enabled() {
		provider := unified.NewProvider(unified.NewClient(cfg.Unified), cfg.Unified.ExpandRecurrences)
		mux.Register(database.BackendUnified, provider)
		eng.SetUnified(provider)
	}

	if cfg.Google.Enabled() {
		encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
		if err != nil {
			return nil, err
		}
		oauthMgr := google.NewOAuthManager(cfg.Google, db, encryptor)
		provider := google.NewProvider(oauthMgr, cfg.Google.ExpandRecurrences)
		mux.Register(database.BackendGoogle, provider)
		apiHandler.SetGoogle(oauthMgr, provider)
	}

	notifier := notifications.NewManager(cfg.Server.BaseURL)
	if cfg.Notifications.Ntfy.Enabled {
		notifier.RegisterProvider(ntfy.NewProvider(cfg.Notifications.Ntfy))
	}
	if cfg.Notifications.Webhook.Enabled {
		notifier.RegisterProvider(webhook.NewProvider(cfg.Notifications.Webhook))
	}
	eng.SetNotifier(notifier)

	feeds := icsfeed.NewProvider(icsfeed.NewFetcher(cfg.ICS), loc)
	mux.Register(database.BackendICS, feeds)
	eng.SetFeeds(feeds)

	s := &Server{
		config:      cfg,
		db:          db,
		router:      http.NewServeMux(),
		settings:    settingsStore,
		verifier:    verifier,
		rateLimiter: middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst),
		mux:         mux,
		engine:      eng,
		apiHandler:  apiHandler,
		scheduler:   workers.NewScheduler(),
		syncWorker:  workers.NewSyncWorker(eng, settingsStore),
		maintenance: workers.NewMaintenanceWorker(db, settingsStore, eng.Audit(),
			cfg.Sync.AuditRetentionDays, cfg.Sync.VacuumInterval),
	}

	if cfg.Sync.Enabled {
		if err := s.scheduler.Add(cfg.Sync.Schedule, s.syncWorker); err != nil {
			return nil, err
		}
	}
	if err := s.scheduler.Add(maintenanceSchedule, s.maintenance); err != nil {
		return nil, err
	}

	s.setupRoutes()

	util.Info("Server configured", "backends", mux.Backends(), "auth", verifier != nil)
	return s, nil
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router

	handler = middleware.SecurityHeaders(handler)
	handler = middleware.CORS(s.config.Server.CORSOrigins)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// StartBackgroundWorkers starts the expiry queue and scheduled jobs.
func (s *Server) StartBackgroundWorkers(ctx context.Context) error {
	s.engine.Start(ctx)
	s.scheduler.Start(ctx)

	if s.rateLimiter != nil {
		go s.cleanupRateLimiter(ctx)
	}

	// Catch up on accounts changed while the server was down.
	if s.config.Sync.Enabled {
		s.scheduler.RunNow(s.syncWorker)
	}

	util.Info("Background workers started")
	return nil
}

func (s *Server) cleanupRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup(time.Hour)
		}
	}
}

// Stop stops scheduled jobs and drains the expiry queue.
func (s *Server) Stop() {
	s.scheduler.Stop()
	s.engine.Stop()
}

// DB returns the database connection.
func (s *Server) DB() *database.DB {
	return s.db
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}
