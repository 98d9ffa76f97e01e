/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTime reports time text that does not parse as H:MM or HH:MM.
var ErrInvalidTime = errors.New("invalid time")

// ErrMinutesOutOfRange reports a minute offset outside [0, DayEnd].
var ErrMinutesOutOfRange = errors.New("minutes out of day range")

// TextToMinutes parses "H:MM" or "HH:MM" into minutes since midnight.
// Hours above 23 or minutes above 59 are rejected, as is anything that does
// not match the pattern. Callers surface ErrInvalidTime as a field error.
func TextToMinutes(text string) (int, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, text)
	}
	if len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, text)
	}
	// Atoi alone is too lenient here: it accepts sign prefixes, so "+1:30"
	// would slip through. Only bare digit runs match the pattern.
	if !allDigits(parts[0]) || !allDigits(parts[1]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, text)
	}

	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, text)
	}

	return hours*60 + minutes, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MinutesToText formats a minute offset as "HH:MM" using 24-hour wraparound:
// the offset is taken modulo MinutesPerDay, so 1440 formats as "00:00" and
// 1500 as "01:00". Negative input formats the absolute value behind a leading
// minus sign (-90 -> "-01:30"); the sign path intentionally does not wrap.
func MinutesToText(minutes int) string {
	if minutes < 0 {
		return "-" + MinutesToText(-minutes)
	}
	minutes %= MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// MinutesToClock anchors a minute offset to the given calendar day and
// returns the concrete clock time, for handoff to time-picker widgets.
// Unlike ClampToDay it refuses out-of-range input rather than clamping;
// both behaviors are load-bearing for their respective call sites.
func MinutesToClock(minutes int, day time.Time) (time.Time, error) {
	if minutes < 0 || minutes > DayEnd {
		return time.Time{}, fmt.Errorf("%w: %d", ErrMinutesOutOfRange, minutes)
	}
	year, month, dom := day.Date()
	return time.Date(year, month, dom, minutes/60, minutes%60, 0, 0, day.Location()), nil
}
