package models

import (
	"time"
)

// RoleName enumerates the account roles.
type RoleName string

const (
	RoleAdmin   RoleName = "admin"
	RolePlanner RoleName = "planner"
)

// User represents an authenticated account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      RoleName `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category labels time windows (work, rest, deep focus, ...). Opaque to the
// reflow engine, which only carries the id through.
type Category struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index"`
	Name      string `gorm:"index"`
	Color     string `gorm:"type:varchar(16)"`
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayPlan is one user's partition of a single calendar day.
type DayPlan struct {
	ID        string       `gorm:"type:uuid;primaryKey"`
	UserID    string       `gorm:"type:uuid;index;uniqueIndex:idx_day_plan_user_date"`
	Date      string       `gorm:"type:varchar(10);uniqueIndex:idx_day_plan_user_date"` // YYYY-MM-DD, naive calendar day
	Windows   []TimeWindow `gorm:"foreignKey:DayPlanID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeWindow is the schedulable unit: a half-open [StartMinute, EndMinute)
// interval of the plan's day. Position is the drag order maintained by the
// UI and is the authoritative list order fed to the reflow engine.
type TimeWindow struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	DayPlanID   string `gorm:"type:uuid;index"`
	CategoryID  string `gorm:"type:uuid;index"`
	Description string `gorm:"type:text"`
	StartMinute int
	EndMinute   int
	Position    int
	Tasks       []Task `gorm:"foreignKey:TimeWindowID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Task is a to-do item, optionally assigned to a time window. Reflow
// operations never touch tasks; dropping a window detaches them.
type Task struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	UserID       string  `gorm:"type:uuid;index"`
	TimeWindowID *string `gorm:"type:uuid;index"`
	Title        string
	Done         bool
	Position     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
