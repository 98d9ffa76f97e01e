package reflow

// ClampToDay clamps a minute offset into the schedulable day range
// [0, DayEnd].
func ClampToDay(minutes int) int {
	if minutes < 0 {
		return 0
	}
	if minutes > DayEnd {
		return DayEnd
	}
	return minutes
}
