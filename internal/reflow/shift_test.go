/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

import (
	"reflect"
	"testing"
)

func TestShiftCascadesFollowers(t *testing.T) {
	// b dragged between a and c: b lands at a's end, c is pulled up behind b.
	in := []Allocation{
		alloc("a", 540, 600),
		alloc("b", 60, 150, "t1"),
		alloc("c", 660, 720),
	}

	out := Shift(in, 1)

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[1].StartMinute != 600 || out[1].EndMinute != 690 {
		t.Fatalf("out[1] = [%d,%d), want [600,690)", out[1].StartMinute, out[1].EndMinute)
	}
	if out[2].StartMinute != 690 || out[2].EndMinute != 750 {
		t.Fatalf("out[2] = [%d,%d), want [690,750)", out[2].StartMinute, out[2].EndMinute)
	}
	if !reflect.DeepEqual(out[1].TaskIDs, []string{"t1"}) {
		t.Fatalf("task ids not carried through: %v", out[1].TaskIDs)
	}
}

func TestShiftFirstKeepsOwnStart(t *testing.T) {
	in := []Allocation{
		alloc("b", 300, 420),
		alloc("a", 500, 560),
	}

	out := Shift(in, 0)

	if out[0].StartMinute != 300 || out[0].EndMinute != 420 {
		t.Fatalf("out[0] = [%d,%d), want [300,420)", out[0].StartMinute, out[0].EndMinute)
	}
	if out[1].StartMinute != 420 || out[1].EndMinute != 480 {
		t.Fatalf("out[1] = [%d,%d), want [420,480)", out[1].StartMinute, out[1].EndMinute)
	}
}

func TestShiftTruncatesDraggedAtDayEnd(t *testing.T) {
	in := []Allocation{
		alloc("a", 0, 1400),
		alloc("b", 100, 220),
	}

	out := Shift(in, 1)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[1].StartMinute != 1400 || out[1].EndMinute != 1439 {
		t.Fatalf("out[1] = [%d,%d), want [1400,1439)", out[1].StartMinute, out[1].EndMinute)
	}
}

func TestShiftDropsWindowsPushedPastDayEnd(t *testing.T) {
	in := []Allocation{
		alloc("a", 1000, 1300),
		alloc("b", 60, 200), // lands at [1300,1439)
		alloc("c", 300, 360),
		alloc("d", 400, 460),
	}

	out := Shift(in, 1)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (tail past day boundary dropped)", len(out))
	}
	if out[1].StartMinute != 1300 || out[1].EndMinute != 1439 {
		t.Fatalf("out[1] = [%d,%d), want [1300,1439)", out[1].StartMinute, out[1].EndMinute)
	}
}

func TestShiftDoesNotMutateInput(t *testing.T) {
	in := []Allocation{
		alloc("a", 540, 600),
		alloc("b", 60, 150, "t1", "t2"),
		alloc("c", 660, 720),
	}
	before := snapshot(in)

	_ = Shift(in, 1)

	if !reflect.DeepEqual(in, before) {
		t.Fatalf("input mutated: %v != %v", in, before)
	}
}
