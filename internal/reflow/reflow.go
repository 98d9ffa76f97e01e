/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package reflow implements the day-schedule reflow engine: pure interval
// arithmetic over a single calendar day expressed in minutes since midnight.
// Operations never mutate their input; every function returns fresh slices
// and values so callers can diff against the pre-call arrangement.
package reflow

const (
	// MinutesPerDay is the number of schedulable minutes in a calendar day.
	MinutesPerDay = 1440

	// DayEnd is the last schedulable minute of the day (23:59).
	DayEnd = 1439
)

// Window is a contiguous block of a day stored as a half-open
// [StartMinute, EndMinute) interval tagged with a category.
type Window struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	CategoryID  string `json:"category_id"`
}

// Duration returns the window length in minutes.
func (w Window) Duration() int {
	return w.EndMinute - w.StartMinute
}

// Allocation is a window plus the tasks assigned to it. Task ids are opaque
// to the engine and carried through unchanged by every reflow operation.
type Allocation struct {
	Window
	TaskIDs []string `json:"task_ids"`
}

// clone returns a deep copy so reflow output shares no memory with its input.
func (a Allocation) clone() Allocation {
	out := a
	if a.TaskIDs != nil {
		out.TaskIDs = append([]string(nil), a.TaskIDs...)
	}
	return out
}

func cloneAll(allocations []Allocation) []Allocation {
	out := make([]Allocation, len(allocations))
	for i, a := range allocations {
		out[i] = a.clone()
	}
	return out
}
