/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

import (
	"reflect"
	"testing"
)

func snapshot(allocations []Allocation) []Allocation {
	out := make([]Allocation, len(allocations))
	for i, a := range allocations {
		out[i] = a
		if a.TaskIDs != nil {
			out[i].TaskIDs = append([]string(nil), a.TaskIDs...)
		}
	}
	return out
}

func TestCompactRemovesGaps(t *testing.T) {
	in := []Allocation{
		alloc("a", 540, 600, "t1"),
		alloc("b", 720, 780),
	}

	out := Compact(in)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].StartMinute != 540 || out[0].EndMinute != 600 {
		t.Fatalf("out[0] = [%d,%d), want [540,600)", out[0].StartMinute, out[0].EndMinute)
	}
	if out[1].StartMinute != 600 || out[1].EndMinute != 660 {
		t.Fatalf("out[1] = [%d,%d), want [600,660)", out[1].StartMinute, out[1].EndMinute)
	}
	if !reflect.DeepEqual(out[0].TaskIDs, []string{"t1"}) {
		t.Fatalf("task ids not carried through: %v", out[0].TaskIDs)
	}
}

func TestCompactTruncatesAtDayEnd(t *testing.T) {
	in := []Allocation{
		alloc("a", 1300, 1400),
		alloc("b", 1380, 1439), // 59 minutes wanted, 39 left: truncated to [1400,1439)
		alloc("c", 1431, 1435), // cursor at DayEnd, dropped
	}

	out := Compact(in)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[1].StartMinute != 1400 || out[1].EndMinute != 1439 {
		t.Fatalf("out[1] = [%d,%d), want [1400,1439)", out[1].StartMinute, out[1].EndMinute)
	}
}

func TestCompactDropsAfterBoundaryReached(t *testing.T) {
	in := []Allocation{
		alloc("a", 1379, 1439),
		alloc("b", 0, 60),
	}

	out := Compact(in)

	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].StartMinute != 1379 || out[0].EndMinute != 1439 {
		t.Fatalf("out[0] = [%d,%d), want [1379,1439)", out[0].StartMinute, out[0].EndMinute)
	}
}

func TestCompactEmpty(t *testing.T) {
	out := Compact(nil)
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}

func TestCompactDoesNotMutateInput(t *testing.T) {
	in := []Allocation{
		alloc("a", 540, 600, "t1", "t2"),
		alloc("b", 720, 780),
	}
	before := snapshot(in)

	_ = Compact(in)

	if !reflect.DeepEqual(in, before) {
		t.Fatalf("input mutated: %v != %v", in, before)
	}
}
