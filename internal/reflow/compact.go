/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

// Compact re-packs the allocations back-to-back in their given order,
// starting from the first window's original start. Durations are preserved
// unless the day boundary forces truncation; windows that would start at or
// past DayEnd are dropped along with everything after them. All non-time
// fields pass through unchanged.
func Compact(allocations []Allocation) []Allocation {
	if len(allocations) == 0 {
		return []Allocation{}
	}

	out := make([]Allocation, 0, len(allocations))
	cursor := allocations[0].StartMinute

	for _, a := range allocations {
		if cursor >= DayEnd {
			break
		}
		duration := a.Duration()
		if room := DayEnd - cursor; duration > room {
			duration = room
		}

		next := a.clone()
		next.StartMinute = cursor
		next.EndMinute = cursor + duration
		out = append(out, next)
		cursor = next.EndMinute
	}

	return out
}
