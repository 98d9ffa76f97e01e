/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/auth"
	"github.com/friendsincode/dagr/internal/models"
)

const tokenTTL = 24 * time.Hour

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  publicUser `json:"user"`
}

type publicUser struct {
	ID    string          `json:"id"`
	Email string          `json:"email"`
	Role  models.RoleName `json:"role"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "email_required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.logger.Error().Err(err).Msg("hash password failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	// First account becomes admin, the rest are planners.
	var existing int64
	a.db.WithContext(r.Context()).Model(&models.User{}).Count(&existing)
	role := models.RolePlanner
	if existing == 0 {
		role = models.RoleAdmin
	}

	user := models.User{
		ID:       uuid.NewString(),
		Email:    req.Email,
		Password: string(hash),
		Role:     role,
	}
	if err := a.db.WithContext(r.Context()).Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			writeError(w, http.StatusConflict, "email_taken")
			return
		}
		a.logger.Error().Err(err).Msg("create user failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	token, err := a.issueToken(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("sign token failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.logger.Info().Str("user_id", user.ID).Msg("user registered")

	writeJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  publicUser{ID: user.ID, Email: user.Email, Role: user.Role},
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	var user models.User
	err := a.db.WithContext(r.Context()).First(&user, "email = ?", req.Email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load user failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := a.issueToken(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("sign token failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  publicUser{ID: user.ID, Email: user.Email, Role: user.Role},
	})
}

func (a *API) handleUsersList(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := a.db.WithContext(r.Context()).Order("created_at ASC").Find(&users).Error; err != nil {
		a.logger.Error().Err(err).Msg("list users failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	out := make([]publicUser, 0, len(users))
	for _, u := range users {
		out = append(out, publicUser{ID: u.ID, Email: u.Email, Role: u.Role})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) issueToken(user models.User) (string, error) {
	return auth.Issue(a.jwtSecret, auth.Claims{
		UserID: user.ID,
		Roles:  []string{string(user.Role)},
	}, tokenTTL)
}

// currentUserID extracts the authenticated user id, writing a 401 when the
// claims are missing.
func (a *API) currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return claims.UserID, true
}
