package playback

import "fmt"

// DefaultRate is the rate used when none was persisted.
const DefaultRate = 1.0

// rateSteps are the values IncreaseRate and DecreaseRate move between.
var rateSteps = []float64{0.5, 0.75, 1.0, 1.25, 1.5, 1.75, 2.0}

// nextRateStep returns the first step above rate, or rate at the maximum.
func nextRateStep(rate float64) float64 {
	for _, step := range rateSteps {
		if step > rate {
			return step
		}
	}
	return rate
}

// prevRateStep returns the first step below rate, or rate at the minimum.
func prevRateStep(rate float64) float64 {
	for i := len(rateSteps) - 1; i >= 0; i-- {
		if rateSteps[i] < rate {
			return rateSteps[i]
		}
	}
	return rate
}

// FormatRate returns a human-readable rate such as "1.25x".
func FormatRate(rate float64) string {
	switch rate {
	case 0.5, 1.0, 1.5, 2.0:
		return fmt.Sprintf("%.1fx", rate)
	default:
		return fmt.Sprintf("%.2fx", rate)
	}
}
