package solar

import (
	"fmt"
	"time"
)

// Face is a duration split into whole clock components. Sub-second
// remainders are truncated, never rounded up.
type Face struct {
	Hours   int
	Minutes int
	Seconds int
}

// Decompose splits d into hours (mod 24), minutes and seconds. Negative
// durations decompose as zero.
func Decompose(d time.Duration) Face {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	return Face{
		Hours:   int(total/3600) % 24,
		Minutes: int(total%3600) / 60,
		Seconds: int(total % 60),
	}
}

// String renders the face as HH:MM:SS.
func (f Face) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", f.Hours, f.Minutes, f.Seconds)
}

// FormatClock renders d as a zero-padded HH:MM:SS clock face.
func FormatClock(d time.Duration) string {
	return Decompose(d).String()
}

// FormatCountdown renders d as "Xh Ym Zs". Hours are not wrapped, so a full
// Day renders as "24h 0m 0s".
func FormatCountdown(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
