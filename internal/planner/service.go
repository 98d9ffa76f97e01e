/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner loads day plans from storage, runs the reflow engine over
// them, and persists the results.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/cache"
	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/reflow"
	"github.com/friendsincode/dagr/internal/telemetry"
)

// Strategy selects how a drag is resolved.
type Strategy string

const (
	StrategyGapFit Strategy = "gap_fit" // Resize the dragged window into its slot
	StrategyShift  Strategy = "shift"   // Push followers later in the day
)

var (
	ErrPlanNotFound   = errors.New("day plan not found")
	ErrWindowNotFound = errors.New("time window not found in plan")
	ErrNoRoom         = errors.New("no room at the requested position")
	ErrBadStrategy    = errors.New("unknown reflow strategy")
)

// Service coordinates reflow operations on stored day plans.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
	bus    *events.Bus
	cache  *cache.Cache
}

// NewService creates a planner service.
func NewService(db *gorm.DB, logger zerolog.Logger, bus *events.Bus, c *cache.Cache) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "planner").Logger(),
		bus:    bus,
		cache:  c,
	}
}

// ReflowResult describes the outcome of a drag or compaction.
type ReflowResult struct {
	Plan    *models.DayPlan `json:"plan"`
	Dropped []string        `json:"dropped_window_ids,omitempty"`
}

// GetPlan loads a day plan with its windows and tasks, consulting the cache
// first. Windows come back in Position order.
func (s *Service) GetPlan(ctx context.Context, planID string) (*models.DayPlan, error) {
	if s.cache != nil {
		var cached models.DayPlan
		hit, err := s.cache.GetDayPlan(ctx, planID, &cached)
		if err == nil && hit {
			telemetry.CacheHitsTotal.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		telemetry.CacheHitsTotal.WithLabelValues("miss").Inc()
	}

	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetDayPlan(ctx, planID, plan)
	}
	return plan, nil
}

// ApplyDrag moves windowID to newIndex within the plan's window list and
// resolves the resulting layout with the given strategy. Returns ErrNoRoom
// when a gap-fit drag lands in a slot with no free minutes.
func (s *Service) ApplyDrag(ctx context.Context, planID, windowID string, newIndex int, strategy Strategy) (*ReflowResult, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "planner", "ApplyDrag")
	defer span.End()
	telemetry.SpanAttrs(span, map[string]string{
		"plan.id":         planID,
		"reflow.strategy": string(strategy),
	})

	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.ReflowOperationsTotal.WithLabelValues(string(strategy), "error").Inc()
		return nil, err
	}

	fromIndex := -1
	for i, w := range plan.Windows {
		if w.ID == windowID {
			fromIndex = i
			break
		}
	}
	if fromIndex == -1 {
		telemetry.ReflowOperationsTotal.WithLabelValues(string(strategy), "error").Inc()
		return nil, ErrWindowNotFound
	}

	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(plan.Windows) {
		newIndex = len(plan.Windows) - 1
	}

	ordered := reorderWindows(plan.Windows, fromIndex, newIndex)
	allocations := toAllocations(ordered)

	var reflowed []reflow.Allocation
	switch strategy {
	case StrategyGapFit:
		var ok bool
		reflowed, ok = reflow.GapFit(allocations, newIndex)
		if !ok {
			telemetry.ReflowOperationsTotal.WithLabelValues(string(strategy), "no_room").Inc()
			s.logger.Debug().
				Str("plan", planID).
				Str("window", windowID).
				Int("index", newIndex).
				Msg("drag cancelled, slot has no room")
			return nil, ErrNoRoom
		}
	case StrategyShift:
		reflowed = reflow.Shift(allocations, newIndex)
	default:
		telemetry.ReflowOperationsTotal.WithLabelValues(string(strategy), "error").Inc()
		return nil, fmt.Errorf("%w: %q", ErrBadStrategy, strategy)
	}

	result, err := s.persist(ctx, plan, ordered, reflowed)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.ReflowOperationsTotal.WithLabelValues(string(strategy), "error").Inc()
		return nil, err
	}

	telemetry.ReflowOperationsTotal.WithLabelValues(string(strategy), "ok").Inc()
	telemetry.ReflowDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())

	s.invalidate(ctx, planID)
	s.bus.Publish(events.EventPlanReflowed, events.Payload{
		"plan_id":   planID,
		"window_id": windowID,
		"strategy":  string(strategy),
		"dropped":   result.Dropped,
	})

	s.logger.Info().
		Str("plan", planID).
		Str("window", windowID).
		Str("strategy", string(strategy)).
		Int("dropped", len(result.Dropped)).
		Msg("drag applied")

	return result, nil
}

// CompactPlan removes every gap between the plan's windows, keeping their
// order and sliding everything toward the first window's start.
func (s *Service) CompactPlan(ctx context.Context, planID string) (*ReflowResult, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "planner", "CompactPlan")
	defer span.End()
	telemetry.SpanAttrs(span, map[string]string{"plan.id": planID})

	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.ReflowOperationsTotal.WithLabelValues("compact", "error").Inc()
		return nil, err
	}

	reflowed := reflow.Compact(toAllocations(plan.Windows))

	result, err := s.persist(ctx, plan, plan.Windows, reflowed)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.ReflowOperationsTotal.WithLabelValues("compact", "error").Inc()
		return nil, err
	}

	telemetry.ReflowOperationsTotal.WithLabelValues("compact", "ok").Inc()
	telemetry.ReflowDuration.WithLabelValues("compact").Observe(time.Since(start).Seconds())

	s.invalidate(ctx, planID)
	s.bus.Publish(events.EventPlanCompacted, events.Payload{
		"plan_id": planID,
		"dropped": result.Dropped,
	})

	s.logger.Info().
		Str("plan", planID).
		Int("windows", len(reflowed)).
		Int("dropped", len(result.Dropped)).
		Msg("plan compacted")

	return result, nil
}

// loadPlan fetches a plan with windows in Position order and their tasks.
func (s *Service) loadPlan(ctx context.Context, planID string) (*models.DayPlan, error) {
	var plan models.DayPlan
	err := s.db.WithContext(ctx).
		Preload("Windows", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Windows.Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&plan, "id = ?", planID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return &plan, nil
}

// persist writes the reflowed layout back in one transaction. Windows absent
// from the reflowed list are deleted and their tasks detached.
func (s *Service) persist(ctx context.Context, plan *models.DayPlan, ordered []models.TimeWindow, reflowed []reflow.Allocation) (*ReflowResult, error) {
	kept := make(map[string]reflow.Allocation, len(reflowed))
	for _, alloc := range reflowed {
		kept[alloc.ID] = alloc
	}

	var dropped []string
	for _, w := range ordered {
		if _, ok := kept[w.ID]; !ok {
			dropped = append(dropped, w.ID)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, alloc := range reflowed {
			if err := tx.Model(&models.TimeWindow{}).
				Where("id = ?", alloc.ID).
				Updates(map[string]any{
					"start_minute": alloc.StartMinute,
					"end_minute":   alloc.EndMinute,
					"position":     i,
				}).Error; err != nil {
				return fmt.Errorf("update window %s: %w", alloc.ID, err)
			}
		}

		for _, id := range dropped {
			if err := tx.Model(&models.Task{}).
				Where("time_window_id = ?", id).
				Update("time_window_id", nil).Error; err != nil {
				return fmt.Errorf("detach tasks from window %s: %w", id, err)
			}
			if err := tx.Delete(&models.TimeWindow{}, "id = ?", id).Error; err != nil {
				return fmt.Errorf("delete window %s: %w", id, err)
			}
		}

		return tx.Model(&models.DayPlan{}).
			Where("id = ?", plan.ID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.loadPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	return &ReflowResult{Plan: updated, Dropped: dropped}, nil
}

func (s *Service) invalidate(ctx context.Context, planID string) {
	if s.cache != nil {
		_ = s.cache.InvalidateDayPlan(ctx, planID)
	}
}

// reorderWindows moves the element at from to the slot at to, preserving the
// relative order of everything else.
func reorderWindows(windows []models.TimeWindow, from, to int) []models.TimeWindow {
	out := make([]models.TimeWindow, 0, len(windows))
	out = append(out, windows...)

	moved := out[from]
	out = append(out[:from], out[from+1:]...)

	tail := make([]models.TimeWindow, len(out[to:]))
	copy(tail, out[to:])
	out = append(out[:to], moved)
	out = append(out, tail...)

	return out
}

// toAllocations converts stored windows to the engine's value types. Task ids
// ride along so the engine's clone semantics cover them too.
func toAllocations(windows []models.TimeWindow) []reflow.Allocation {
	allocations := make([]reflow.Allocation, 0, len(windows))
	for _, w := range windows {
		taskIDs := make([]string, 0, len(w.Tasks))
		for _, t := range w.Tasks {
			taskIDs = append(taskIDs, t.ID)
		}
		sort.Strings(taskIDs)
		allocations = append(allocations, reflow.Allocation{
			Window: reflow.Window{
				ID:          w.ID,
				Description: w.Description,
				StartMinute: w.StartMinute,
				EndMinute:   w.EndMinute,
				CategoryID:  w.CategoryID,
			},
			TaskIDs: taskIDs,
		})
	}
	return allocations
}
