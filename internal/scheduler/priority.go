package scheduler

import (
	"math"

	"daso/queue-service/internal/models"
)

const (
	urgentServiceBonus = 50
	disabilityBonus    = 30
	seniorBonus        = 20
	olderAdultBonus    = 10
	waitDecayPerMinute = 0.5

	// ArrivalBoost is added on top of a fresh score at check-in.
	ArrivalBoost = 10
)

// Score computes the urgency score for an entry. Higher serves sooner.
// Scores only carry relative meaning; there is no upper bound.
func Score(serviceType string, age int, isDisabled bool, waitedMinutes float64) float64 {
	score := 0.0
	if svc, ok := models.ServiceByCode(serviceType); ok && svc.Urgent {
		score += urgentServiceBonus
	}
	if isDisabled {
		score += disabilityBonus
	}
	switch {
	case age > 70:
		score += seniorBonus
	case age > 60:
		score += olderAdultBonus
	}
	score += waitedMinutes * waitDecayPerMinute
	return round2(score)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
