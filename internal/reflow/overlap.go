/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

// Overlaps reports whether the candidate window intersects any existing
// allocation. Intervals are half-open: [s1,e1) and [s2,e2) overlap iff
// s1 < e2 and s2 < e1, so touching boundaries do not count.
//
// A candidate with StartMinute >= EndMinute is malformed and returns false
// without checking; rejecting it is the validation layer's job. When editing
// an existing window pass its id as excludeID so it does not overlap itself.
func Overlaps(candidate Window, existing []Allocation, excludeID string) bool {
	if candidate.StartMinute >= candidate.EndMinute {
		return false
	}

	for _, other := range existing {
		if excludeID != "" && other.ID == excludeID {
			continue
		}
		if candidate.StartMinute < other.EndMinute && other.StartMinute < candidate.EndMinute {
			return true
		}
	}
	return false
}
