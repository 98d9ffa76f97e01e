/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/planner"
	"github.com/friendsincode/dagr/internal/reflow"
)

type planCreateRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

type windowRequest struct {
	StartTime   string `json:"start_time"` // "HH:MM"
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
	Position    *int   `json:"position"`
}

// windowUpdateRequest distinguishes omitted fields from explicit values, so a
// PATCH can clear description or category_id with an empty string.
type windowUpdateRequest struct {
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Description *string `json:"description"`
	CategoryID  *string `json:"category_id"`
	Position    *int    `json:"position"`
}

type reflowRequest struct {
	WindowID string `json:"window_id"`
	NewIndex int    `json:"new_index"`
	Strategy string `json:"strategy"` // "gap_fit" or "shift"
}

func (a *API) handlePlansList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	query := a.db.WithContext(r.Context()).Where("user_id = ?", userID)
	if date := r.URL.Query().Get("date"); date != "" {
		query = query.Where("date = ?", date)
	}
	if from := r.URL.Query().Get("from"); from != "" {
		query = query.Where("date >= ?", from)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		query = query.Where("date <= ?", to)
	}

	var plans []models.DayPlan
	if err := query.Order("date ASC").Find(&plans).Error; err != nil {
		a.logger.Error().Err(err).Msg("list plans failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (a *API) handlePlansCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req planCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	plan := models.DayPlan{
		ID:     uuid.NewString(),
		UserID: userID,
		Date:   req.Date,
	}
	if err := a.db.WithContext(r.Context()).Create(&plan).Error; err != nil {
		// One plan per user per day.
		var existing models.DayPlan
		if lookupErr := a.db.WithContext(r.Context()).
			First(&existing, "user_id = ? AND date = ?", userID, req.Date).Error; lookupErr == nil {
			writeError(w, http.StatusConflict, "plan_exists")
			return
		}
		a.logger.Error().Err(err).Msg("create plan failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventPlanCreated, events.Payload{"plan_id": plan.ID})
	writeJSON(w, http.StatusCreated, plan)
}

func (a *API) handlePlansGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	plan, err := a.planner.GetPlan(r.Context(), planID)
	if err != nil {
		if errors.Is(err, planner.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		a.logger.Error().Err(err).Msg("get plan failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handlePlansDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID := chi.URLParam(r, "planID")

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var plan models.DayPlan
		if err := tx.First(&plan, "id = ? AND user_id = ?", planID, userID).Error; err != nil {
			return err
		}

		var windowIDs []string
		tx.Model(&models.TimeWindow{}).Where("day_plan_id = ?", planID).Pluck("id", &windowIDs)
		if len(windowIDs) > 0 {
			if err := tx.Model(&models.Task{}).Where("time_window_id IN ?", windowIDs).
				Update("time_window_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.TimeWindow{}, "day_plan_id = ?", planID).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.DayPlan{}, "id = ?", planID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("delete plan failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventPlanUpdated, events.Payload{"plan_id": planID, "deleted": true})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWindowsCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	outcome, err := a.validator.ValidateCandidate(r.Context(), planner.CandidateWindow{
		DayPlanID: planID,
		StartText: req.StartTime,
		EndText:   req.EndTime,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("validate window failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if !outcome.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, outcome)
		return
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		var count int64
		a.db.WithContext(r.Context()).Model(&models.TimeWindow{}).Where("day_plan_id = ?", planID).Count(&count)
		position = int(count)
	}

	window := models.TimeWindow{
		ID:          uuid.NewString(),
		DayPlanID:   planID,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		StartMinute: outcome.StartMinute,
		EndMinute:   outcome.EndMinute,
		Position:    position,
	}
	if err := a.db.WithContext(r.Context()).Create(&window).Error; err != nil {
		a.logger.Error().Err(err).Msg("create window failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventWindowCreated, events.Payload{"plan_id": planID, "window_id": window.ID})
	writeJSON(w, http.StatusCreated, window)
}

func (a *API) handleWindowsUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}
	windowID := chi.URLParam(r, "windowID")

	var window models.TimeWindow
	err := a.db.WithContext(r.Context()).First(&window, "id = ? AND day_plan_id = ?", windowID, planID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	var req windowUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := map[string]any{}

	if req.StartTime != nil || req.EndTime != nil {
		// Unchanged side keeps its stored value.
		startText := reflow.MinutesToText(window.StartMinute)
		endText := reflow.MinutesToText(window.EndMinute)
		if req.StartTime != nil {
			startText = *req.StartTime
		}
		if req.EndTime != nil {
			endText = *req.EndTime
		}

		outcome, err := a.validator.ValidateCandidate(r.Context(), planner.CandidateWindow{
			ID:        window.ID,
			DayPlanID: planID,
			StartText: startText,
			EndText:   endText,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		if !outcome.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, outcome)
			return
		}
		updates["start_minute"] = outcome.StartMinute
		updates["end_minute"] = outcome.EndMinute
	}

	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.CategoryID != nil {
		updates["category_id"] = *req.CategoryID
	}
	if len(updates) == 0 && req.Position == nil {
		writeJSON(w, http.StatusOK, window)
		return
	}

	err = a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&window).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Position != nil {
			return reindexWindow(tx, planID, window.ID, *req.Position)
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if err := a.db.WithContext(r.Context()).First(&window, "id = ?", window.ID).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventWindowUpdated, events.Payload{"plan_id": planID, "window_id": window.ID})
	writeJSON(w, http.StatusOK, window)
}

// reindexWindow moves a window to the requested slot in its plan's drag order
// and renumbers every sibling, so positions stay dense and unique. The index
// is clamped to the list like a reflow drag.
func reindexWindow(tx *gorm.DB, planID, windowID string, newIndex int) error {
	var siblings []models.TimeWindow
	if err := tx.Select("id").Where("day_plan_id = ?", planID).Order("position ASC").Find(&siblings).Error; err != nil {
		return err
	}

	from := -1
	for i, s := range siblings {
		if s.ID == windowID {
			from = i
			break
		}
	}
	if from == -1 {
		return gorm.ErrRecordNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(siblings) {
		newIndex = len(siblings) - 1
	}

	moved := siblings[from]
	rest := make([]models.TimeWindow, 0, len(siblings)-1)
	rest = append(rest, siblings[:from]...)
	rest = append(rest, siblings[from+1:]...)

	order := make([]models.TimeWindow, 0, len(siblings))
	order = append(order, rest[:newIndex]...)
	order = append(order, moved)
	order = append(order, rest[newIndex:]...)

	for i, s := range order {
		if err := tx.Model(&models.TimeWindow{}).Where("id = ?", s.ID).Update("position", i).Error; err != nil {
			return err
		}
	}
	return nil
}

func (a *API) handleWindowsDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}
	windowID := chi.URLParam(r, "windowID")

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.TimeWindow{}, "id = ? AND day_plan_id = ?", windowID, planID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Task{}).Where("time_window_id = ?", windowID).
			Update("time_window_id", nil).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventWindowDeleted, events.Payload{"plan_id": planID, "window_id": windowID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlanReflow(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	var req reflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.WindowID == "" {
		writeError(w, http.StatusBadRequest, "window_id_required")
		return
	}

	strategy := planner.Strategy(req.Strategy)
	if strategy == "" {
		strategy = planner.StrategyShift
	}

	result, err := a.planner.ApplyDrag(r.Context(), planID, req.WindowID, req.NewIndex, strategy)
	switch {
	case errors.Is(err, planner.ErrNoRoom):
		writeError(w, http.StatusConflict, "no_room")
		return
	case errors.Is(err, planner.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "window_not_found")
		return
	case errors.Is(err, planner.ErrBadStrategy):
		writeError(w, http.StatusBadRequest, "invalid_strategy")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("reflow failed")
		writeError(w, http.StatusInternalServerError, "reflow_failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePlanCompact(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	result, err := a.planner.CompactPlan(r.Context(), planID)
	if err != nil {
		a.logger.Error().Err(err).Msg("compact failed")
		writeError(w, http.StatusInternalServerError, "compact_failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePlanValidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	result, err := a.validator.ValidatePlan(r.Context(), planID)
	if err != nil {
		a.logger.Error().Err(err).Msg("validate failed")
		writeError(w, http.StatusInternalServerError, "validate_failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePlanValidateCandidate dry-runs a candidate window against the stored
// plan without writing anything. The UI calls this on every form edit.
func (a *API) handlePlanValidateCandidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		WindowID  string `json:"window_id"` // Set when editing an existing window
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	outcome, err := a.validator.ValidateCandidate(r.Context(), planner.CandidateWindow{
		ID:        req.WindowID,
		DayPlanID: planID,
		StartText: req.StartTime,
		EndText:   req.EndTime,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("candidate validation failed")
		writeError(w, http.StatusInternalServerError, "validate_failed")
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) handlePlanExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	planID, ok := a.ownedPlanID(w, r, userID)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "ics"
	}

	var result *planner.ExportResult
	var err error
	switch format {
	case "ics":
		result, err = a.export.ExportToICal(r.Context(), planID)
	case "yaml":
		result, err = a.export.ExportToYAML(r.Context(), planID)
	default:
		writeError(w, http.StatusBadRequest, "invalid_format")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ownedPlanID resolves the planID path param and confirms the plan belongs to
// the user, writing a 404 otherwise.
func (a *API) ownedPlanID(w http.ResponseWriter, r *http.Request, userID string) (string, bool) {
	planID := chi.URLParam(r, "planID")
	if planID == "" {
		writeError(w, http.StatusBadRequest, "plan_id_required")
		return "", false
	}

	var count int64
	a.db.WithContext(r.Context()).Model(&models.DayPlan{}).
		Where("id = ? AND user_id = ?", planID, userID).
		Count(&count)
	if count == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return "", false
	}
	return planID, true
}
