/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

import "testing"

func alloc(id string, start, end int, taskIDs ...string) Allocation {
	return Allocation{
		Window:  Window{ID: id, StartMinute: start, EndMinute: end},
		TaskIDs: taskIDs,
	}
}

func TestOverlaps(t *testing.T) {
	a := alloc("a", 540, 600)
	b := alloc("b", 600, 720)

	cases := []struct {
		name      string
		candidate Window
		existing  []Allocation
		excludeID string
		want      bool
	}{
		{"touching boundaries are not an overlap", a.Window, []Allocation{b}, "", false},
		{"straddles a boundary", Window{ID: "c", StartMinute: 570, EndMinute: 630}, []Allocation{a}, "", true},
		{"identical intervals overlap", a.Window, []Allocation{alloc("x", 540, 600)}, "", true},
		{"candidate contains existing", Window{ID: "c", StartMinute: 500, EndMinute: 700}, []Allocation{a}, "", true},
		{"candidate contained by existing", Window{ID: "c", StartMinute: 550, EndMinute: 560}, []Allocation{a}, "", true},
		{"disjoint", Window{ID: "c", StartMinute: 0, EndMinute: 60}, []Allocation{a, b}, "", false},
		{"editing excludes itself", a.Window, []Allocation{a}, "a", false},
		{"editing still sees others", a.Window, []Allocation{a, alloc("x", 550, 610)}, "a", true},
		{"malformed zero-width candidate", Window{ID: "c", StartMinute: 600, EndMinute: 600}, []Allocation{a, b}, "", false},
		{"malformed inverted candidate", Window{ID: "c", StartMinute: 700, EndMinute: 500}, []Allocation{a, b}, "", false},
		{"empty existing", a.Window, nil, "", false},
	}

	for _, tc := range cases {
		if got := Overlaps(tc.candidate, tc.existing, tc.excludeID); got != tc.want {
			t.Errorf("%s: Overlaps = %v, want %v", tc.name, got, tc.want)
		}
	}
}
