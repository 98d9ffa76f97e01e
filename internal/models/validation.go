/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// RuleType defines the type of plan validation rule.
type RuleType string

const (
	RuleTypeOverlap    RuleType = "overlap"     // Two windows claim the same minutes
	RuleTypeTimeFormat RuleType = "time_format" // Start/end text did not parse
	RuleTypeTimeOrder  RuleType = "time_order"  // End is not after start
	RuleTypeDayBounds  RuleType = "day_bounds"  // Window extends outside the day
)

// RuleSeverity defines how serious a rule violation is.
type RuleSeverity string

const (
	RuleSeverityError   RuleSeverity = "error"   // Must be fixed
	RuleSeverityWarning RuleSeverity = "warning" // Should be reviewed
	RuleSeverityInfo    RuleSeverity = "info"    // Informational only
)

// ValidationViolation represents a single rule violation, surfaced to the UI
// as a field-level message rather than an error response.
type ValidationViolation struct {
	RuleType    RuleType       `json:"rule_type"`
	Severity    RuleSeverity   `json:"severity"`
	Field       string         `json:"field,omitempty"` // "start_time", "end_time", ""
	Message     string         `json:"message"`
	AffectedIDs []string       `json:"affected_ids,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// ValidationResult contains the result of validating a candidate window or a
// whole day plan.
type ValidationResult struct {
	Valid     bool                  `json:"valid"`
	Errors    []ValidationViolation `json:"errors"`
	Warnings  []ValidationViolation `json:"warnings"`
	CheckedAt time.Time             `json:"checked_at"`
}
