/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/dagr/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.DayPlan{},
		&models.TimeWindow{},
		&models.Task{},
		&models.AuditLog{},
		&models.WebhookTarget{},
		&models.WebhookLog{},
	); err != nil {
		return err
	}

	if err := applyPostgresWindowOverlapGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresWindowOverlapGuard installs a constraint trigger so a settled
// plan can never hold overlapping or out-of-day windows, even if
// application-level validation is bypassed. It is deferred to commit time:
// reflow rewrites a plan's windows row by row inside one transaction, and the
// intermediate states overlap even when the final layout is valid. Other
// backends rely on the validation layer alone.
func applyPostgresWindowOverlapGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_day_plan_window_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.end_minute <= NEW.start_minute THEN
    RAISE EXCEPTION 'time window end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF NEW.start_minute < 0 OR NEW.end_minute > 1440 THEN
    RAISE EXCEPTION 'time window extends outside the day'
      USING ERRCODE = '23514';
  END IF;

  IF EXISTS (
    SELECT 1
    FROM time_windows tw
    WHERE tw.day_plan_id = NEW.day_plan_id
      AND tw.id <> NEW.id
      AND int4range(tw.start_minute, tw.end_minute, '[)') && int4range(NEW.start_minute, NEW.end_minute, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping time windows are not allowed for plan %', NEW.day_plan_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_day_plan_window_overlap ON time_windows;

CREATE CONSTRAINT TRIGGER trg_prevent_day_plan_window_overlap
AFTER INSERT OR UPDATE OF day_plan_id, start_minute, end_minute
ON time_windows
DEFERRABLE INITIALLY DEFERRED
FOR EACH ROW
EXECUTE FUNCTION prevent_day_plan_window_overlap();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres window overlap guard: %w", err)
	}

	return nil
}
