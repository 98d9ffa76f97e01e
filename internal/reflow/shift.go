/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

// Shift repositions the window at draggedIndex immediately after its new
// predecessor (or at its own original start when it is now first) and
// cascades every following window forward contiguously. Windows pushed past
// DayEnd are truncated; a window whose start would reach DayEnd is dropped
// together with everything after it.
func Shift(allocations []Allocation, draggedIndex int) []Allocation {
	if draggedIndex < 0 || draggedIndex >= len(allocations) {
		return cloneAll(allocations)
	}

	out := cloneAll(allocations)

	dragged := &out[draggedIndex]
	start := dragged.StartMinute
	if draggedIndex > 0 {
		start = out[draggedIndex-1].EndMinute
	}
	end := start + dragged.Duration()
	if end > DayEnd {
		end = DayEnd
	}
	dragged.StartMinute = start
	dragged.EndMinute = end

	cursor := end
	for i := draggedIndex + 1; i < len(out); i++ {
		if cursor >= DayEnd {
			out = out[:i]
			break
		}
		duration := out[i].Duration()
		if room := DayEnd - cursor; duration > room {
			duration = room
		}
		out[i].StartMinute = cursor
		out[i].EndMinute = cursor + duration
		cursor = out[i].EndMinute
	}

	return out
}
