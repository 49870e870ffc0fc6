package store

import "daso/queue-service/internal/models"

// Actions applied to a queue entry. Each action names the set of statuses
// it may be applied from; anything else is an invalid transition.
const (
	ActionHold     = "hold"
	ActionCheckIn  = "check_in"
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionNoShow   = "no_show"
)

var transitionMap = map[string][]string{
	ActionHold:     {models.StatusWaiting},
	ActionCheckIn:  {models.StatusWaiting, models.StatusHolding},
	ActionStart:    {models.StatusWaiting, models.StatusCheckedIn},
	ActionComplete: {models.StatusInProgress},
	ActionNoShow:   {models.StatusWaiting, models.StatusHolding, models.StatusCheckedIn, models.StatusInProgress},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
