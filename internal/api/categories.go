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

type categoryRequest struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Position *int   `json:"position"`
}

func (a *API) handleCategoriesList(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var categories []models.Category
	if err := a.db.WithContext(r.Context()).
		Where("user_id = ?", userID).
		Order("position ASC, name ASC").
		Find(&categories).Error; err != nil {
		a.logger.Error().Err(err).Msg("list categories failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *API) handleCategoriesCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		var count int64
		a.db.WithContext(r.Context()).Model(&models.Category{}).Where("user_id = ?", userID).Count(&count)
		position = int(count)
	}

	category := models.Category{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     req.Name,
		Color:    req.Color,
		Position: position,
	}
	if err := a.db.WithContext(r.Context()).Create(&category).Error; err != nil {
		a.logger.Error().Err(err).Msg("create category failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventCategoryUpdated, events.Payload{"category_id": category.ID})
	writeJSON(w, http.StatusCreated, category)
}

func (a *API) handleCategoriesUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	categoryID := chi.URLParam(r, "categoryID")

	var category models.Category
	err := a.db.WithContext(r.Context()).First(&category, "id = ? AND user_id = ?", categoryID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := map[string]any{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Color != "" {
		updates["color"] = req.Color
	}
	if req.Position != nil {
		updates["position"] = *req.Position
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusOK, category)
		return
	}

	if err := a.db.WithContext(r.Context()).Model(&category).Updates(updates).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.bus.Publish(events.EventCategoryUpdated, events.Payload{"category_id": category.ID})
	writeJSON(w, http.StatusOK, category)
}

func (a *API) handleCategoriesDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUserID(w, r)
	if !ok {
		return
	}
	categoryID := chi.URLParam(r, "categoryID")

	result := a.db.WithContext(r.Context()).Delete(&models.Category{}, "id = ? AND user_id = ?", categoryID, userID)
	if result.Error != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	// Windows keep the dangling category id; exports simply omit the name.
	a.bus.Publish(events.EventCategoryUpdated, events.Payload{"category_id": categoryID})
	w.WriteHeader(http.StatusNoContent)
}
