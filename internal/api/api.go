/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface of the day planner.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/audit"
	"github.com/friendsincode/dagr/internal/auth"
	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/planner"
	"github.com/friendsincode/dagr/internal/telemetry"
	"github.com/friendsincode/dagr/internal/webhooks"
	ws "nhooyr.io/websocket"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	planner   *planner.Service
	validator *planner.Validator
	export    *planner.ExportService
	auditSvc  *audit.Service
	webhooks  *webhooks.Service
	bus       *events.Bus
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, jwtSecret []byte, plannerSvc *planner.Service, validator *planner.Validator, export *planner.ExportService, auditSvc *audit.Service, webhookSvc *webhooks.Service, bus *events.Bus, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		planner:   plannerSvc,
		validator: validator,
		export:    export,
		auditSvc:  auditSvc,
		webhooks:  webhookSvc,
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.With(a.requireRoles(models.RoleAdmin)).Get("/users", a.handleUsersList)
			pr.With(a.requireRoles(models.RoleAdmin)).Get("/audit", a.handleAuditList)

			pr.Route("/webhooks", func(r chi.Router) {
				r.Get("/", a.handleWebhooksList)
				r.Post("/", a.handleWebhooksCreate)
				r.Route("/{webhookID}", func(r chi.Router) {
					r.Delete("/", a.handleWebhooksDelete)
					r.Post("/test", a.handleWebhooksTest)
				})
			})

			pr.Route("/categories", func(r chi.Router) {
				r.Get("/", a.handleCategoriesList)
				r.Post("/", a.handleCategoriesCreate)
				r.Route("/{categoryID}", func(r chi.Router) {
					r.Patch("/", a.handleCategoriesUpdate)
					r.Delete("/", a.handleCategoriesDelete)
				})
			})

			pr.Route("/tasks", func(r chi.Router) {
				r.Get("/", a.handleTasksList)
				r.Post("/", a.handleTasksCreate)
				r.Route("/{taskID}", func(r chi.Router) {
					r.Patch("/", a.handleTasksUpdate)
					r.Delete("/", a.handleTasksDelete)
				})
			})

			pr.Route("/plans", func(r chi.Router) {
				r.Get("/", a.handlePlansList)
				r.Post("/", a.handlePlansCreate)
				r.Route("/{planID}", func(r chi.Router) {
					r.Get("/", a.handlePlansGet)
					r.Delete("/", a.handlePlansDelete)

					r.Post("/windows", a.handleWindowsCreate)
					r.Patch("/windows/{windowID}", a.handleWindowsUpdate)
					r.Delete("/windows/{windowID}", a.handleWindowsDelete)

					r.Post("/reflow", a.handlePlanReflow)
					r.Post("/compact", a.handlePlanCompact)
					r.Get("/validate", a.handlePlanValidate)
					r.Post("/validate", a.handlePlanValidateCandidate)
					r.Get("/export", a.handlePlanExport)
				})
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents streams bus events over a websocket. Clients select event
// types with ?types=plan.reflowed,plan.compacted.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = []events.EventType{
			events.EventPlanUpdated,
			events.EventPlanReflowed,
			events.EventPlanCompacted,
			events.EventHealth,
		}
	}

	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for i, sub := range subscribers {
				select {
				case payload := <-sub:
					if err := a.writeEvent(ctx, conn, eventTypes[i], payload); err != nil {
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, raw)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	types := make([]events.EventType, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			types = append(types, events.EventType(p))
		}
	}
	return types
}

func (a *API) requireRoles(allowed ...models.RoleName) func(http.Handler) http.Handler {
	roles := make([]string, 0, len(allowed))
	for _, role := range allowed {
		roles = append(roles, string(role))
	}
	return auth.RequireRoles(roles...)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
