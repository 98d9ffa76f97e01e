/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
)

type taskRequest struct {
	Title        string  `json:"title"`
	Done         *bool   `json:"done"`
	Position     *int    `json:"position"`
	TimeWindowID *string `json:"time_window_id"`
}

func (a *API) handleTasksList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	query := a.db.WithContext(r.Context()).Where("user_id = ?", userID)
	if windowID := r.URL.Query().Get("window_id"); windowID != "" {
		query = query.Where("time_window_id = ?", windowID)
	}

	var tasks []models.Task
	if err := query.Order("position ASC").Find(&tasks).Error; err != nil {
		a.logger.Error().Err(err).Msg("list tasks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *API) handleTasksCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}

	if req.TimeWindowID != nil && *req.TimeWindowID != "" {
		if !a.windowBelongsToUser(r, *req.TimeWindowID, userID) {
			writeError(w, http.StatusNotFound, "window_not_found")
			return
		}
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		var count int64
		a.db.WithContext(r.Context()).Model(&models.Task{}).Where("user_id = ?", userID).Count(&count)
		position = int(count)
	}

	task := models.Task{
		ID:           uuid.NewString(),
		UserID:       userID,
		TimeWindowID: req.TimeWindowID,
		Title:        req.Title,
		Position:     position,
	}
	if err := a.db.WithContext(r.Context()).Create(&task).Error; err != nil {
		a.logger.Error().Err(err).Msg("create task failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventTaskUpdated, events.Payload{"task_id": task.ID})
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) handleTasksUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	var task models.Task
	err := a.db.WithContext(r.Context()).First(&task, "id = ? AND user_id = ?", taskID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := map[string]any{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Done != nil {
		updates["done"] = *req.Done
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}
	if req.TimeWindowID != nil {
		if *req.TimeWindowID == "" {
			updates["time_window_id"] = nil
		} else {
			if !a.windowBelongsToUser(r, *req.TimeWindowID, userID) {
				writeError(w, http.StatusNotFound, "window_not_found")
				return
			}
			updates["time_window_id"] = *req.TimeWindowID
		}
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusOK, task)
		return
	}

	if err := a.db.WithContext(r.Context()).Model(&task).Updates(updates).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventTaskUpdated, events.Payload{"task_id": task.ID})
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleTasksDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	taskID := chi.URLParam(r, "taskID")

	result := a.db.WithContext(r.Context()).Delete(&models.Task{}, "id = ? AND user_id = ?", taskID, userID)
	if result.Error != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	a.bus.Publish(events.EventTaskUpdated, events.Payload{"task_id": taskID})
	w.WriteHeader(http.StatusNoContent)
}

// windowBelongsToUser checks that a window's plan is owned by the user.
func (a *API) windowBelongsToUser(r *http.Request, windowID, userID string) bool {
	var count int64
	a.db.WithContext(r.Context()).
		Model(&models.TimeWindow{}).
		Joins("JOIN day_plans ON day_plans.id = time_windows.day_plan_id").
		Where("time_windows.id = ? AND day_plans.user_id = ?", windowID, userID).
		Count(&count)
	return count > 0
}
