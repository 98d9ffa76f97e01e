/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/reflow"
	"github.com/friendsincode/dagr/internal/telemetry"
)

// CandidateWindow is a window as submitted by the UI, before it is stored.
// Times arrive as clock text so parse failures surface as violations rather
// than transport errors.
type CandidateWindow struct {
	ID        string // empty for a new window
	DayPlanID string
	StartText string // "HH:MM"
	EndText   string
}

// CandidateOutcome is the result of validating a candidate window. Minutes
// are only meaningful when Violations contains no parse errors.
type CandidateOutcome struct {
	Violations  []models.ValidationViolation `json:"violations"`
	StartMinute int                          `json:"start_minute"`
	EndMinute   int                          `json:"end_minute"`
}

// Valid reports whether the candidate can be stored.
func (o *CandidateOutcome) Valid() bool {
	for _, v := range o.Violations {
		if v.Severity == models.RuleSeverityError {
			return false
		}
	}
	return true
}

// Validator checks candidate windows and whole plans against the layout
// rules.
type Validator struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewValidator creates a plan validator.
func NewValidator(db *gorm.DB, logger zerolog.Logger) *Validator {
	return &Validator{
		db:     db,
		logger: logger.With().Str("component", "plan_validator").Logger(),
	}
}

// ValidateCandidate checks a single submitted window against its plan. Parse
// and ordering problems are reported per field; an overlap names the window
// it collides with.
func (v *Validator) ValidateCandidate(ctx context.Context, cand CandidateWindow) (*CandidateOutcome, error) {
	outcome := &CandidateOutcome{}

	startMinute, startErr := reflow.TextToMinutes(cand.StartText)
	if startErr != nil {
		outcome.Violations = append(outcome.Violations, violation(
			models.RuleTypeTimeFormat, "start_time", "Invalid time", nil))
	}
	endMinute, endErr := reflow.TextToMinutes(cand.EndText)
	if endErr != nil {
		outcome.Violations = append(outcome.Violations, violation(
			models.RuleTypeTimeFormat, "end_time", "Invalid time", nil))
	}
	if startErr != nil || endErr != nil {
		v.count(outcome.Violations)
		return outcome, nil
	}

	outcome.StartMinute = startMinute
	outcome.EndMinute = endMinute

	if endMinute <= startMinute {
		outcome.Violations = append(outcome.Violations, violation(
			models.RuleTypeTimeOrder, "end_time", "End time must be after start time",
			map[string]any{
				"start_minute": startMinute,
				"end_minute":   endMinute,
			}))
		v.count(outcome.Violations)
		return outcome, nil
	}

	if startMinute < 0 || endMinute > reflow.MinutesPerDay {
		outcome.Violations = append(outcome.Violations, violation(
			models.RuleTypeDayBounds, "", "Window extends outside the day",
			map[string]any{
				"start_minute": startMinute,
				"end_minute":   endMinute,
			}))
	}

	existing, err := v.loadAllocations(ctx, cand.DayPlanID)
	if err != nil {
		return nil, err
	}

	candidate := reflow.Window{
		ID:          cand.ID,
		StartMinute: startMinute,
		EndMinute:   endMinute,
	}
	if reflow.Overlaps(candidate, existing, cand.ID) {
		other := firstOverlapping(candidate, existing, cand.ID)
		outcome.Violations = append(outcome.Violations, models.ValidationViolation{
			RuleType:    models.RuleTypeOverlap,
			Severity:    models.RuleSeverityError,
			Message:     fmt.Sprintf("The window from %s to %s overlaps with an existing one", cand.StartText, cand.EndText),
			AffectedIDs: overlapIDs(cand.ID, other),
			Details: map[string]any{
				"start_minute": startMinute,
				"end_minute":   endMinute,
			},
		})
	}

	v.count(outcome.Violations)
	return outcome, nil
}

// ValidatePlan checks every stored window of a plan: internal consistency of
// each window plus pairwise overlaps.
func (v *Validator) ValidatePlan(ctx context.Context, planID string) (*models.ValidationResult, error) {
	result := &models.ValidationResult{
		Valid:     true,
		Errors:    []models.ValidationViolation{},
		Warnings:  []models.ValidationViolation{},
		CheckedAt: time.Now(),
	}

	var windows []models.TimeWindow
	if err := v.db.WithContext(ctx).
		Where("day_plan_id = ?", planID).
		Order("position ASC").
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}

	for _, w := range windows {
		if w.EndMinute <= w.StartMinute {
			result.Errors = append(result.Errors, models.ValidationViolation{
				RuleType:    models.RuleTypeTimeOrder,
				Severity:    models.RuleSeverityError,
				Message:     "End time must be after start time",
				AffectedIDs: []string{w.ID},
				Details: map[string]any{
					"start_minute": w.StartMinute,
					"end_minute":   w.EndMinute,
				},
			})
		}
		if w.StartMinute < 0 || w.EndMinute > reflow.MinutesPerDay {
			result.Errors = append(result.Errors, models.ValidationViolation{
				RuleType:    models.RuleTypeDayBounds,
				Severity:    models.RuleSeverityError,
				Message:     "Window extends outside the day",
				AffectedIDs: []string{w.ID},
				Details: map[string]any{
					"start_minute": w.StartMinute,
					"end_minute":   w.EndMinute,
				},
			})
		}
	}

	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			a, b := windows[i], windows[j]
			if a.StartMinute < b.EndMinute && b.StartMinute < a.EndMinute {
				result.Errors = append(result.Errors, models.ValidationViolation{
					RuleType: models.RuleTypeOverlap,
					Severity: models.RuleSeverityError,
					Message: fmt.Sprintf("%s and %s overlap between %s and %s",
						windowLabel(a), windowLabel(b),
						reflow.MinutesToText(maxInt(a.StartMinute, b.StartMinute)),
						reflow.MinutesToText(minInt(a.EndMinute, b.EndMinute))),
					AffectedIDs: []string{a.ID, b.ID},
					Details: map[string]any{
						"overlap_start": maxInt(a.StartMinute, b.StartMinute),
						"overlap_end":   minInt(a.EndMinute, b.EndMinute),
					},
				})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	v.count(result.Errors)
	return result, nil
}

// loadAllocations fetches a plan's windows as engine values for collision
// checks.
func (v *Validator) loadAllocations(ctx context.Context, planID string) ([]reflow.Allocation, error) {
	var windows []models.TimeWindow
	if err := v.db.WithContext(ctx).
		Where("day_plan_id = ?", planID).
		Order("position ASC").
		Find(&windows).Error; err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	return toAllocations(windows), nil
}

func (v *Validator) count(violations []models.ValidationViolation) {
	for _, viol := range violations {
		telemetry.ValidationViolationsTotal.WithLabelValues(string(viol.RuleType)).Inc()
	}
}

func violation(rule models.RuleType, field, message string, details map[string]any) models.ValidationViolation {
	return models.ValidationViolation{
		RuleType: rule,
		Severity: models.RuleSeverityError,
		Field:    field,
		Message:  message,
		Details:  details,
	}
}

func firstOverlapping(candidate reflow.Window, existing []reflow.Allocation, excludeID string) string {
	for _, alloc := range existing {
		if excludeID != "" && alloc.ID == excludeID {
			continue
		}
		if candidate.StartMinute < alloc.EndMinute && alloc.StartMinute < candidate.EndMinute {
			return alloc.ID
		}
	}
	return ""
}

func overlapIDs(candidateID, otherID string) []string {
	var ids []string
	if candidateID != "" {
		ids = append(ids, candidateID)
	}
	if otherID != "" {
		ids = append(ids, otherID)
	}
	return ids
}

func windowLabel(w models.TimeWindow) string {
	if w.Description != "" {
		return w.Description
	}
	return "Window " + reflow.MinutesToText(w.StartMinute)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
