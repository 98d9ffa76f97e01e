/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers signed plan-change notifications to user-registered
// HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/reflow"
)

// outboundEvents maps bus events to the event names receivers subscribe to.
var outboundEvents = map[events.EventType]models.WebhookEventType{
	events.EventPlanUpdated:   models.WebhookEventPlanUpdated,
	events.EventPlanReflowed:  models.WebhookEventPlanReflowed,
	events.EventPlanCompacted: models.WebhookEventPlanCompacted,
}

// WebhookPayload is the JSON body posted to receivers.
type WebhookPayload struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	PlanID    string          `json:"plan_id"`
	Date      string          `json:"date,omitempty"`
	Windows   []WindowPayload `json:"windows,omitempty"`
	Dropped   []string        `json:"dropped,omitempty"`
}

// WindowPayload is one plan window rendered with HH:MM boundaries.
type WindowPayload struct {
	ID          string `json:"id"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
}

// Service watches the bus and posts plan snapshots to matching targets.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
}

func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Start dispatches bus events to webhook targets until the context is
// cancelled. It blocks; run it on its own goroutine.
func (s *Service) Start(ctx context.Context) {
	for eventType, name := range outboundEvents {
		sub := s.bus.Subscribe(eventType)
		go func(et events.EventType, name string, sub events.Subscriber) {
			defer s.bus.Unsubscribe(et, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					s.dispatch(ctx, payload, name)
				}
			}
		}(eventType, string(name), sub)
	}

	s.logger.Info().Int("events", len(outboundEvents)).Msg("webhook dispatcher running")
	<-ctx.Done()
	s.logger.Info().Msg("webhook dispatcher stopped")
}

// dispatch fans one bus event out to every active target subscribed to it.
func (s *Service) dispatch(ctx context.Context, busPayload events.Payload, eventType string) {
	planID, _ := busPayload["plan_id"].(string)
	if planID == "" {
		return
	}
	dropped, _ := busPayload["dropped"].([]string)

	payload := WebhookPayload{
		Event:     eventType,
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
		Dropped:   dropped,
	}

	var plan models.DayPlan
	err := s.db.WithContext(ctx).
		Preload("Windows", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		First(&plan, "id = ?", planID).Error
	if err == nil {
		payload.Date = plan.Date
		payload.Windows = windowsToPayload(plan.Windows)
	}
	// Plan deletion also publishes plan.updated; on a missing plan the payload
	// goes out with the id alone, to every active target.

	var targets []models.WebhookTarget
	q := s.db.WithContext(ctx).Where("active = ?", true)
	if err == nil {
		q = q.Where("user_id = ?", plan.UserID)
	}
	if err := q.Find(&targets).Error; err != nil {
		s.logger.Error().Err(err).Str("plan", planID).Msg("failed to load webhook targets")
		return
	}

	for _, target := range targets {
		if !s.targetHandlesEvent(target, eventType) {
			continue
		}
		go func(target models.WebhookTarget) {
			status, err := s.deliver(ctx, target, payload)
			s.recordDelivery(target, eventType, status, err)
		}(target)
	}
}

// targetHandlesEvent reports whether a target's comma-separated event filter
// matches. An empty filter matches everything.
func (s *Service) targetHandlesEvent(target models.WebhookTarget, eventType string) bool {
	if target.Events == "" {
		return true
	}
	for _, e := range strings.Split(target.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// deliver posts the payload to one target, signed when the target has a
// secret. Returns the receiver's status code; 0 when no response arrived.
func (s *Service) deliver(ctx context.Context, target models.WebhookTarget, payload WebhookPayload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Dagr-Webhook/1.0")
	req.Header.Set("X-Dagr-Event", payload.Event)
	req.Header.Set("X-Dagr-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if target.Secret != "" {
		req.Header.Set("X-Dagr-Signature", sign(body, target.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// recordDelivery writes the attempt to the delivery log and mirrors the
// outcome to the service log.
func (s *Service) recordDelivery(target models.WebhookTarget, eventType string, status int, err error) {
	entry := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      eventType,
		StatusCode: status,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if dbErr := s.db.Create(entry).Error; dbErr != nil {
		s.logger.Error().Err(dbErr).Msg("failed to record webhook delivery")
	}

	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
	case status >= 200 && status < 300:
		s.logger.Debug().Str("webhook", target.ID).Str("event", eventType).Int("status", status).Msg("webhook delivered")
	default:
		s.logger.Warn().Str("webhook", target.ID).Str("event", eventType).Int("status", status).Msg("webhook returned error status")
	}
}

// sign computes the HMAC-SHA256 signature header value over the body.
func sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// windowsToPayload renders plan windows as HH:MM pairs.
func windowsToPayload(windows []models.TimeWindow) []WindowPayload {
	out := make([]WindowPayload, 0, len(windows))
	for _, w := range windows {
		out = append(out, WindowPayload{
			ID:          w.ID,
			Start:       reflow.MinutesToText(w.StartMinute),
			End:         reflow.MinutesToText(w.EndMinute),
			Description: w.Description,
			CategoryID:  w.CategoryID,
		})
	}
	return out
}

// TestWebhook posts a fixed sample payload to the target so a receiver can be
// verified before real traffic arrives. The attempt is not written to the
// delivery log; the caller reports the outcome directly.
func (s *Service) TestWebhook(ctx context.Context, target *models.WebhookTarget) error {
	payload := WebhookPayload{
		Event:     "test",
		Timestamp: time.Now().UTC(),
		PlanID:    "test-plan-id",
		Date:      "2026-01-01",
		Windows: []WindowPayload{
			{
				ID:          "test-window-id",
				Start:       "09:00",
				End:         "10:30",
				Description: "This is a test webhook delivery",
			},
		},
	}

	status, err := s.deliver(ctx, *target, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}
