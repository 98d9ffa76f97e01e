package planner

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/db"
	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
)

// newPostgresService connects to the database named by DAGR_TEST_POSTGRES_DSN
// and runs the full migration, including the deferred overlap guard that
// sqlite never sees. Tests that need the guard skip without the env var.
func newPostgresService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := os.Getenv("DAGR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set DAGR_TEST_POSTGRES_DSN to run postgres-backed tests")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"tasks", "time_windows", "day_plans"} {
		if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}

	return NewService(gdb, zerolog.Nop(), events.NewBus(), nil), gdb
}

// A shift drag rewrites the plan's rows one at a time, so mid-transaction the
// dragged window briefly holds the same interval as the row it displaces. The
// overlap guard is deferred to commit and must only judge the settled layout.
func TestShiftReflowCommitsUnderOverlapGuard(t *testing.T) {
	svc, gdb := newPostgresService(t)

	plan, windows := seedPlan(t, gdb, [][2]int{{0, 60}, {60, 120}, {200, 260}})

	// Drag the third window into the middle: it takes over [60,120) while the
	// displaced window still occupies it until its own update lands.
	result, err := svc.ApplyDrag(context.Background(), plan.ID, windows[2].ID, 1, StrategyShift)
	if err != nil {
		t.Fatalf("ApplyDrag: %v", err)
	}
	if len(result.Dropped) != 0 {
		t.Fatalf("dropped %v, want none", result.Dropped)
	}

	want := map[string][2]int{
		windows[0].ID: {0, 60},
		windows[2].ID: {60, 120},
		windows[1].ID: {120, 180},
	}
	for _, w := range result.Plan.Windows {
		iv, ok := want[w.ID]
		if !ok {
			t.Fatalf("unexpected window %s", w.ID)
		}
		if w.StartMinute != iv[0] || w.EndMinute != iv[1] {
			t.Errorf("window %s = [%d,%d), want [%d,%d)", w.ID, w.StartMinute, w.EndMinute, iv[0], iv[1])
		}
	}
}

// The guard still rejects a genuinely overlapping settled state.
func TestOverlapGuardRejectsSettledOverlap(t *testing.T) {
	_, gdb := newPostgresService(t)

	plan, _ := seedPlan(t, gdb, [][2]int{{0, 60}})

	w := models.TimeWindow{
		ID:          "win-clash",
		DayPlanID:   plan.ID,
		Description: "clashes with the first window",
		StartMinute: 30,
		EndMinute:   90,
		Position:    1,
	}
	if err := gdb.Create(&w).Error; err == nil {
		t.Fatalf("insert of overlapping window %s succeeded, want constraint violation", w.ID)
	}
}
