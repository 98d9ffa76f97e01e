/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/dagr/internal/audit"
	"github.com/friendsincode/dagr/internal/models"
)

type webhookRequest struct {
	URL    string `json:"url"`
	Events string `json:"events"`
}

type webhookResponse struct {
	models.WebhookTarget
	Secret string `json:"secret,omitempty"` // Only returned on create
}

func (a *API) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var targets []models.WebhookTarget
	if err := a.db.WithContext(r.Context()).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&targets).Error; err != nil {
		a.logger.Error().Err(err).Msg("list webhooks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (a *API) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, http.StatusBadRequest, "invalid_url")
		return
	}

	for _, e := range strings.Split(req.Events, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		switch models.WebhookEventType(e) {
		case models.WebhookEventPlanUpdated, models.WebhookEventPlanReflowed, models.WebhookEventPlanCompacted:
		default:
			writeError(w, http.StatusBadRequest, "invalid_event")
			return
		}
	}

	target := models.NewWebhookTarget(userID, req.URL, req.Events)
	if err := a.db.WithContext(r.Context()).Create(target).Error; err != nil {
		a.logger.Error().Err(err).Msg("create webhook failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	// The secret is shown once so the receiver can verify signatures.
	writeJSON(w, http.StatusCreated, webhookResponse{WebhookTarget: *target, Secret: target.Secret})
}

func (a *API) handleWebhooksDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	webhookID := chi.URLParam(r, "webhookID")

	res := a.db.WithContext(r.Context()).
		Where("id = ? AND user_id = ?", webhookID, userID).
		Delete(&models.WebhookTarget{})
	if res.Error != nil {
		a.logger.Error().Err(res.Error).Msg("delete webhook failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWebhooksTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	webhookID := chi.URLParam(r, "webhookID")

	var target models.WebhookTarget
	if err := a.db.WithContext(r.Context()).
		First(&target, "id = ? AND user_id = ?", webhookID, userID).Error; err != nil {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}

	if err := a.webhooks.TestWebhook(r.Context(), &target); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "delivery_failed",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := audit.QueryFilters{}
	if v := q.Get("user_id"); v != "" {
		filters.UserID = &v
	}
	if v := q.Get("plan_id"); v != "" {
		filters.PlanID = &v
	}
	if v := q.Get("action"); v != "" {
		action := models.AuditAction(v)
		filters.Action = &action
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.StartTime = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.EndTime = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters.Offset = n
		}
	}

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": logs,
	})
}
