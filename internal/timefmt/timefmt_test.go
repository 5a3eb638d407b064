package timefmt

import (
	"math"
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "00:00"},
		{"fraction truncates", 59.9, "00:59"},
		{"one minute", 60, "01:00"},
		{"hours roll into minutes", 3725, "62:05"},
		{"negative", -4, "00:00"},
		{"nan", math.NaN(), "00:00"},
		{"inf", math.Inf(1), "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTime(tt.seconds); got != tt.want {
				t.Errorf("FormatTime(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(nil); got != "--:--" {
		t.Errorf("FormatDuration(nil) = %q", got)
	}
	d := 90.0
	if got := FormatDuration(&d); got != "01:30" {
		t.Errorf("FormatDuration(90) = %q", got)
	}
}

func TestAgoAndDate(t *testing.T) {
	if Ago(time.Time{}) != "" {
		t.Error("zero time should render empty")
	}
	if FormatDate(time.Time{}) != "" {
		t.Error("zero date should render empty")
	}
	if got := Ago(time.Now().Add(-3 * time.Minute)); got != "3 minutes ago" {
		t.Errorf("Ago = %q", got)
	}
}
