/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

import (
	"errors"
	"testing"
	"time"
)

func TestTextToMinutes(t *testing.T) {
	cases := []struct {
		text    string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"9:30", 570, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"-1:30", 0, true},
		{"12:-5", 0, true},
		{"+1:30", 0, true},
		{"12:+5", 0, true},
		{"+9:05", 0, true},
		{"1 :30", 0, true},
		{"noon", 0, true},
		{"12", 0, true},
		{"12:5", 0, true},
		{"12:345", 0, true},
		{"", 0, true},
		{"1:2:3", 0, true},
	}

	for _, tc := range cases {
		got, err := TextToMinutes(tc.text)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidTime) {
				t.Errorf("TextToMinutes(%q) err = %v, want ErrInvalidTime", tc.text, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("TextToMinutes(%q) err = %v", tc.text, err)
			continue
		}
		if got != tc.want {
			t.Errorf("TextToMinutes(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestMinutesToTextWraparound(t *testing.T) {
	cases := []struct {
		minutes int
		want    string
	}{
		{0, "00:00"},
		{570, "09:30"},
		{1439, "23:59"},
		{1440, "00:00"},
		{1500, "01:00"},
		{-90, "-01:30"},
	}

	for _, tc := range cases {
		if got := MinutesToText(tc.minutes); got != tc.want {
			t.Errorf("MinutesToText(%d) = %q, want %q", tc.minutes, got, tc.want)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		back, err := TextToMinutes(MinutesToText(m))
		if err != nil {
			t.Fatalf("round trip %d: %v", m, err)
		}
		if back != m {
			t.Fatalf("round trip %d = %d", m, back)
		}
	}
}

func TestMinutesToClock(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	got, err := MinutesToClock(570, day)
	if err != nil {
		t.Fatalf("MinutesToClock(570): %v", err)
	}
	want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("MinutesToClock(570) = %v, want %v", got, want)
	}

	// Out-of-range input fails loudly instead of clamping.
	for _, m := range []int{-1, 1440, 99999} {
		if _, err := MinutesToClock(m, day); !errors.Is(err, ErrMinutesOutOfRange) {
			t.Errorf("MinutesToClock(%d) err = %v, want ErrMinutesOutOfRange", m, err)
		}
	}
}

func TestClampToDay(t *testing.T) {
	cases := []struct{ in, want int }{
		{-50, 0},
		{0, 0},
		{720, 720},
		{1439, 1439},
		{1440, 1439},
		{100000, 1439},
	}
	for _, tc := range cases {
		if got := ClampToDay(tc.in); got != tc.want {
			t.Errorf("ClampToDay(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
