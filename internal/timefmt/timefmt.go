// Package timefmt formats playback positions and download timestamps for
// display.
package timefmt

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatTime renders seconds as a zero-padded MM:SS clock. Hours roll into the
// minutes field, so 3725 seconds is "62:05". Negative and NaN values render as
// "00:00".
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "00:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatDuration renders an optional duration, "--:--" when it is unknown.
func FormatDuration(seconds *float64) string {
	if seconds == nil {
		return "--:--"
	}
	return FormatTime(*seconds)
}

// FormatDate renders a short date and time, e.g. "2024-09-16 14:05".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

// Ago renders a relative timestamp such as "3 minutes ago".
func Ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}
