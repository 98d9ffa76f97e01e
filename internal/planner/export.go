/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/reflow"
)

// ExportService renders day plans to interchange formats.
type ExportService struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewExportService creates a new export service.
func NewExportService(db *gorm.DB, logger zerolog.Logger) *ExportService {
	return &ExportService{
		db:     db,
		logger: logger.With().Str("component", "plan_export").Logger(),
	}
}

// ExportResult contains rendered export data.
type ExportResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportToICal renders a day plan as an iCal calendar, one VEVENT per window
// anchored to the plan's date.
func (s *ExportService) ExportToICal(ctx context.Context, planID string) (*ExportResult, error) {
	plan, categories, err := s.loadPlanWithCategories(ctx, planID)
	if err != nil {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", plan.Date)
	if err != nil {
		return nil, fmt.Errorf("plan has invalid date %q: %w", plan.Date, err)
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Dagr//Day Plan Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:Day Plan %s\r\n", plan.Date))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, w := range plan.Windows {
		startAt, err := reflow.MinutesToClock(w.StartMinute, day)
		if err != nil {
			s.logger.Warn().Str("window", w.ID).Int("minute", w.StartMinute).Msg("skipping window with out-of-day start")
			continue
		}
		endAt := day.Add(time.Duration(w.EndMinute) * time.Minute)

		buf.WriteString("BEGIN:VEVENT\r\n")
		buf.WriteString(fmt.Sprintf("UID:%s@dagr\r\n", w.ID))
		buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(time.Now())))
		buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(startAt)))
		buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(endAt)))

		summary := w.Description
		if summary == "" {
			summary = "Time window"
		}
		buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(summary)))

		if cat, ok := categories[w.CategoryID]; ok {
			buf.WriteString(fmt.Sprintf("CATEGORIES:%s\r\n", escapeICalText(cat.Name)))
			if cat.Color != "" {
				buf.WriteString(fmt.Sprintf("X-APPLE-CALENDAR-COLOR:%s\r\n", cat.Color))
			}
		}

		if len(w.Tasks) > 0 {
			titles := make([]string, 0, len(w.Tasks))
			for _, t := range w.Tasks {
				titles = append(titles, t.Title)
			}
			buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText(strings.Join(titles, "\n"))))
		}

		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")

	return &ExportResult{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("day-plan-%s.ics", plan.Date),
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

// yamlWindow is the YAML export shape for one window.
type yamlWindow struct {
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	Description string   `yaml:"description,omitempty"`
	Category    string   `yaml:"category,omitempty"`
	Tasks       []string `yaml:"tasks,omitempty"`
}

type yamlPlan struct {
	Date    string       `yaml:"date"`
	Windows []yamlWindow `yaml:"windows"`
}

// ExportToYAML renders a day plan as a YAML document with HH:MM times, the
// shape users hand-edit and re-import.
func (s *ExportService) ExportToYAML(ctx context.Context, planID string) (*ExportResult, error) {
	plan, categories, err := s.loadPlanWithCategories(ctx, planID)
	if err != nil {
		return nil, err
	}

	doc := yamlPlan{Date: plan.Date, Windows: make([]yamlWindow, 0, len(plan.Windows))}
	for _, w := range plan.Windows {
		yw := yamlWindow{
			Start:       reflow.MinutesToText(w.StartMinute),
			End:         reflow.MinutesToText(w.EndMinute),
			Description: w.Description,
		}
		if cat, ok := categories[w.CategoryID]; ok {
			yw.Category = cat.Name
		}
		for _, t := range w.Tasks {
			yw.Tasks = append(yw.Tasks, t.Title)
		}
		doc.Windows = append(doc.Windows, yw)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}

	return &ExportResult{
		Data:        data,
		Filename:    fmt.Sprintf("day-plan-%s.yaml", plan.Date),
		ContentType: "application/yaml; charset=utf-8",
	}, nil
}

func (s *ExportService) loadPlanWithCategories(ctx context.Context, planID string) (*models.DayPlan, map[string]models.Category, error) {
	var plan models.DayPlan
	err := s.db.WithContext(ctx).
		Preload("Windows", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Windows.Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&plan, "id = ?", planID).Error
	if err != nil {
		return nil, nil, fmt.Errorf("plan not found: %w", err)
	}

	categoryIDs := make([]string, 0, len(plan.Windows))
	for _, w := range plan.Windows {
		if w.CategoryID != "" {
			categoryIDs = append(categoryIDs, w.CategoryID)
		}
	}

	categories := map[string]models.Category{}
	if len(categoryIDs) > 0 {
		var cats []models.Category
		if err := s.db.WithContext(ctx).Where("id IN ?", categoryIDs).Find(&cats).Error; err != nil {
			return nil, nil, fmt.Errorf("load categories: %w", err)
		}
		for _, c := range cats {
			categories[c.ID] = c
		}
	}

	return &plan, categories, nil
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
