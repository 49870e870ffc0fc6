// Package predict estimates service durations. The model is a
// deterministic table over the service catalog with demographic and
// time-of-day adjustments, so identical inputs always yield identical
// estimates.
package predict

import (
	"math"

	"daso/queue-service/internal/models"
)

const (
	disabilityFactor = 1.15
	rushHourFactor   = 1.1
	agePerYearOver60 = 0.005
	minimumMinutes   = 2.0
)

// rush hours observed at branch counters: pre-lunch and post-lunch peaks.
var rushHours = map[int]bool{10: true, 11: true, 14: true, 15: true}

// Estimate returns the predicted service duration in minutes, rounded to
// one decimal place. It returns 0 for an unknown category; callers fall
// back to the default slot duration.
func Estimate(age int, isDisabled bool, category string, staffEfficiency float64, hourOfDay int) float64 {
	service, ok := models.ServiceByCode(category)
	if !ok {
		return 0
	}

	minutes := service.BaseMinutes
	if age > 60 {
		minutes *= 1 + float64(age-60)*agePerYearOver60
	}
	if isDisabled {
		minutes *= disabilityFactor
	}
	if rushHours[hourOfDay] {
		minutes *= rushHourFactor
	}
	if staffEfficiency > 0 {
		minutes /= staffEfficiency
	}
	if minutes < minimumMinutes {
		minutes = minimumMinutes
	}
	return math.Round(minutes*10) / 10
}
