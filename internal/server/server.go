/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/api"
	"github.com/friendsincode/dagr/internal/audit"
	"github.com/friendsincode/dagr/internal/cache"
	"github.com/friendsincode/dagr/internal/config"
	"github.com/friendsincode/dagr/internal/db"
	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/planner"
	"github.com/friendsincode/dagr/internal/telemetry"
	"github.com/friendsincode/dagr/internal/version"
	"github.com/friendsincode/dagr/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	cache      *cache.Cache
	bus        *events.Bus
	planner    *planner.Service
	validator  *planner.Validator
	export     *planner.ExportService
	auditSvc   *audit.Service
	webhookSvc *webhooks.Service
	updates    *version.Checker
	api        *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		securityHeadersMiddleware,
		telemetry.TracingMiddleware("dagr-api"),
		telemetry.MetricsMiddleware,
		timeoutExceptWebsocket(60*time.Second),
	)

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep header deadline to protect against slowloris; the middleware
		// timeout (60s) bounds non-WebSocket routes.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Initialize Redis cache for reducing database load on plan reads
	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		planCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = planCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	s.planner = planner.NewService(database, s.logger, s.bus, s.cache)
	s.validator = planner.NewValidator(database, s.logger)
	s.export = planner.NewExportService(database, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)
	s.webhookSvc = webhooks.NewService(database, s.bus, s.logger)
	s.updates = version.NewChecker(s.logger)

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.planner, s.validator, s.export, s.auditSvc, s.webhookSvc, s.bus, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close stops the background workers, then runs the registered cleanup hooks
// in reverse registration order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Evict cached plans whenever any mutation path publishes a change.
	if s.cache != nil {
		s.cache.SubscribeInvalidation(ctx, s.bus)
		s.logger.Info().Msg("cache invalidation listener started")
	}

	// Audit trail and outbound webhooks both feed off the same bus.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.webhookSvc.Start(ctx)
	}()

	s.updates.Start(ctx)
	s.DeferClose(func() error { s.updates.Stop(); return nil })

	// Heartbeat keeps idle WebSocket subscribers seeing traffic.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runHeartbeat(ctx)
	}()
}

func (s *Server) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.bus.Publish(events.EventHealth, events.Payload{
				"status": "ok",
				"time":   time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	type health struct {
		Status          string `json:"status"`
		Version         string `json:"version"`
		UpdateAvailable bool   `json:"update_available,omitempty"`
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h := health{Status: "ok", Version: version.Version}
		if s.updates != nil {
			h.UpdateAvailable = s.updates.Info().UpdateAvailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(h)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}

// timeoutExceptWebsocket bounds every request except upgrades: the event
// stream holds its connection open past any sane request deadline.
func timeoutExceptWebsocket(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(d)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
