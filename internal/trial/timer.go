package trial

import "time"

// ReactionTimer is the stopwatch bounding one measurement window.
// time.Time values carry Go's monotonic clock reading, so the
// measurement is immune to frame-rate variance and wall-clock steps.
// Exactly one window is open at a time: the machine restarts the timer
// at target onset and reads it once at reaction detection.
type ReactionTimer struct {
	start time.Time
}

// Restart resets the stopwatch to zero at now.
func (t *ReactionTimer) Restart(now time.Time) {
	t.start = now
}

// ElapsedMillis returns the fractional milliseconds elapsed since the
// last Restart.
func (t *ReactionTimer) ElapsedMillis(now time.Time) float64 {
	return float64(now.Sub(t.start)) / float64(time.Millisecond)
}
