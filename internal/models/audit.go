/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

const (
	AuditActionPlanCreate     AuditAction = "plan.create"
	AuditActionPlanUpdate     AuditAction = "plan.update"
	AuditActionPlanReflow     AuditAction = "plan.reflow"
	AuditActionPlanCompact    AuditAction = "plan.compact"
	AuditActionWindowCreate   AuditAction = "window.create"
	AuditActionWindowUpdate   AuditAction = "window.update"
	AuditActionWindowDelete   AuditAction = "window.delete"
	AuditActionTaskUpdate     AuditAction = "task.update"
	AuditActionCategoryUpdate AuditAction = "category.update"
)

// AuditLog records plan mutations for traceability.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Timestamp time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	UserID    *string        `gorm:"type:uuid;index:idx_audit_user"` // NULL for system actions
	UserEmail string         `gorm:"type:varchar(255)"`              // Denormalized for readability
	PlanID    *string        `gorm:"type:uuid;index:idx_audit_plan"` // NULL for non-plan actions
	Action    AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	Details   map[string]any `gorm:"type:jsonb;serializer:json"` // Action-specific details
	CreatedAt time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
