/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

// GapFit fits the window at draggedIndex into the slot between its new
// neighbors, shrinking it if the slot is tighter than its duration. Every
// other allocation is returned untouched; only the dragged element's times
// change. The boolean is false when the slot has zero or negative width,
// which cancels the drag — the caller must revert to the pre-drag
// arrangement. An out-of-range index also cancels.
func GapFit(allocations []Allocation, draggedIndex int) ([]Allocation, bool) {
	if draggedIndex < 0 || draggedIndex >= len(allocations) {
		return nil, false
	}

	dragged := allocations[draggedIndex]
	originalDuration := dragged.Duration()

	var availableStart, availableEnd int
	switch {
	case draggedIndex == 0 && len(allocations) == 1:
		availableStart = ClampToDay(dragged.StartMinute)
		availableEnd = availableStart + originalDuration
		if availableEnd > DayEnd {
			availableEnd = DayEnd
		}
	case draggedIndex == 0:
		availableEnd = allocations[1].StartMinute
		availableStart = availableEnd - originalDuration
		if availableStart < 0 {
			availableStart = 0
		}
	case draggedIndex == len(allocations)-1:
		availableStart = allocations[draggedIndex-1].EndMinute
		availableEnd = availableStart + originalDuration
		if availableEnd > DayEnd {
			availableEnd = DayEnd
		}
	default:
		availableStart = allocations[draggedIndex-1].EndMinute
		availableEnd = allocations[draggedIndex+1].StartMinute
	}

	availableStart = ClampToDay(availableStart)
	availableEnd = ClampToDay(availableEnd)

	availableSpace := availableEnd - availableStart
	if availableSpace <= 0 {
		return nil, false
	}

	newDuration := originalDuration
	if newDuration > availableSpace {
		newDuration = availableSpace
	}

	out := cloneAll(allocations)
	out[draggedIndex].StartMinute = availableStart
	out[draggedIndex].EndMinute = availableStart + newDuration
	if out[draggedIndex].EndMinute > DayEnd {
		out[draggedIndex].EndMinute = DayEnd
	}

	return out, true
}
