/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit records who changed which plan, fed by the event bus so every
// mutation path leaves a trail without the handlers knowing about auditing.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
)

// actionFor maps bus events to the audit action recorded for them.
var actionFor = map[events.EventType]models.AuditAction{
	events.EventPlanCreated:     models.AuditActionPlanCreate,
	events.EventPlanUpdated:     models.AuditActionPlanUpdate,
	events.EventPlanReflowed:    models.AuditActionPlanReflow,
	events.EventPlanCompacted:   models.AuditActionPlanCompact,
	events.EventWindowCreated:   models.AuditActionWindowCreate,
	events.EventWindowUpdated:   models.AuditActionWindowUpdate,
	events.EventWindowDeleted:   models.AuditActionWindowDelete,
	events.EventTaskUpdated:     models.AuditActionTaskUpdate,
	events.EventCategoryUpdated: models.AuditActionCategoryUpdate,
}

// Service turns bus events into persisted audit entries and answers queries
// over the trail.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to every audited event and records entries until the
// context is cancelled. It blocks; run it on its own goroutine.
func (s *Service) Start(ctx context.Context) {
	type busEvent struct {
		action  models.AuditAction
		payload events.Payload
	}
	merged := make(chan busEvent, 16)

	for eventType, action := range actionFor {
		sub := s.bus.Subscribe(eventType)
		go func(et events.EventType, action models.AuditAction, sub events.Subscriber) {
			defer s.bus.Unsubscribe(et, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- busEvent{action: action, payload: payload}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(eventType, action, sub)
	}

	s.logger.Info().Int("events", len(actionFor)).Msg("audit trail recording")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit trail stopped")
			return
		case ev := <-merged:
			s.record(ctx, ev.action, ev.payload)
		}
	}
}

// record builds an entry from an event payload and persists it. plan_id and
// user_id become first-class columns; everything else lands in Details.
func (s *Service) record(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any, len(payload)),
	}

	for k, v := range payload {
		switch k {
		case "plan_id":
			if id, ok := v.(string); ok && id != "" {
				entry.PlanID = &id
			}
		case "user_id":
			if id, ok := v.(string); ok && id != "" {
				entry.UserID = &id
			}
		default:
			entry.Details[k] = v
		}
	}

	s.attributeOwner(ctx, entry)

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to record audit entry")
	}
}

// attributeOwner denormalizes the plan owner's id and email onto the entry so
// the trail stays readable after the plan or the user is deleted.
func (s *Service) attributeOwner(ctx context.Context, entry *models.AuditLog) {
	if entry.PlanID == nil {
		return
	}

	var plan models.DayPlan
	if err := s.db.WithContext(ctx).Select("user_id").First(&plan, "id = ?", *entry.PlanID).Error; err != nil {
		return
	}
	if entry.UserID == nil {
		entry.UserID = &plan.UserID
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("email").First(&user, "id = ?", plan.UserID).Error; err == nil {
		entry.UserEmail = user.Email
	}
}

// Log persists an entry, filling in id and timestamps when the caller left
// them zero. Use it directly for actions that never cross the bus.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := time.Now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry written")
	return nil
}

// QueryFilters narrows an audit query. Nil pointers mean "any".
type QueryFilters struct {
	UserID    *string
	PlanID    *string
	Action    *models.AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

const defaultQueryLimit = 100

func (f QueryFilters) apply(q *gorm.DB) *gorm.DB {
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.PlanID != nil {
		q = q.Where("plan_id = ?", *f.PlanID)
	}
	if f.Action != nil {
		q = q.Where("action = ?", *f.Action)
	}
	if f.StartTime != nil {
		q = q.Where("timestamp >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		q = q.Where("timestamp <= ?", *f.EndTime)
	}
	return q
}

// Query returns the matching page of entries, newest first, along with the
// total match count before paging.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	q := filters.apply(s.db.WithContext(ctx).Model(&models.AuditLog{}))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var logs []models.AuditLog
	err := q.Order("timestamp DESC").Limit(limit).Offset(filters.Offset).Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
