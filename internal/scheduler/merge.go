package scheduler

import (
	"sort"

	"daso/queue-service/internal/models"
)

const (
	// JumpThreshold is the priority score a walk-in must exceed before it
	// may be placed ahead of an appointment.
	JumpThreshold = 80
	// DelayBudgetMinutes bounds how much accumulated service time may sit
	// ahead of an appointment when a walk-in is inserted before it.
	DelayBudgetMinutes = 10
	// DefaultDurationMinutes stands in for a missing or non-positive
	// predicted duration in all wait arithmetic.
	DefaultDurationMinutes = 5
)

// Placed is one slot of the merged queue: the entry plus its final
// 1-based position and the cumulative predicted wait ahead of it.
type Placed struct {
	models.QueueEntry
	Position         int     `json:"position"`
	EstimatedWaitMin float64 `json:"estimated_wait_min"`
}

// Merge orders the active queue. In-progress entries are pinned first;
// walk-ins above JumpThreshold may be placed ahead of appointments as long
// as the predicted service time already accumulated ahead stays within
// DelayBudgetMinutes; the final displayed order is priority descending with
// creation time as tie-break. Truncation to limit happens only after the
// full order is fixed. limit <= 0 means no truncation.
func Merge(entries []models.QueueEntry, limit int) []Placed {
	ordered, _ := mergeOrder(entries)

	result := make([]Placed, 0, len(ordered))
	cumulative := 0.0
	for i, entry := range ordered {
		result = append(result, Placed{
			QueueEntry:       entry,
			Position:         i + 1,
			EstimatedWaitMin: round2(cumulative),
		})
		cumulative += Duration(entry)
	}

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// mergeOrder returns the final ordering plus the set of walk-in entry IDs
// that were admitted ahead of an appointment by the jump rule.
func mergeOrder(entries []models.QueueEntry) ([]models.QueueEntry, map[string]bool) {
	var inProgress, appointments, walkins []models.QueueEntry
	for _, entry := range entries {
		switch {
		case entry.Status == models.StatusInProgress:
			inProgress = append(inProgress, entry)
		case entry.Origin == models.OriginPreBooked:
			appointments = append(appointments, entry)
		default:
			walkins = append(walkins, entry)
		}
	}

	placed := make(map[string]bool, len(entries))
	jumped := make(map[string]bool)
	var merged []models.QueueEntry

	budgetUsed := func() float64 {
		total := 0.0
		for _, entry := range merged {
			total += Duration(entry)
		}
		return total
	}

	for _, appt := range appointments {
		for {
			candidate, ok := bestJumpCandidate(walkins, placed)
			if !ok {
				break
			}
			if budgetUsed()+Duration(candidate) > DelayBudgetMinutes {
				break
			}
			merged = append(merged, candidate)
			placed[candidate.EntryID] = true
			jumped[candidate.EntryID] = true
		}
		merged = append(merged, appt)
		placed[appt.EntryID] = true
	}

	for _, walkin := range walkins {
		if !placed[walkin.EntryID] {
			merged = append(merged, walkin)
			placed[walkin.EntryID] = true
		}
	}

	// Displayed order: the jump pass only decides eligibility; the visible
	// sequence is priority-sorted with in-progress entries pinned in front.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].PriorityScore != merged[j].PriorityScore {
			return merged[i].PriorityScore > merged[j].PriorityScore
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	return append(inProgress, merged...), jumped
}

func bestJumpCandidate(walkins []models.QueueEntry, placed map[string]bool) (models.QueueEntry, bool) {
	best := models.QueueEntry{}
	found := false
	for _, walkin := range walkins {
		if placed[walkin.EntryID] || walkin.PriorityScore <= JumpThreshold {
			continue
		}
		if !found || walkin.PriorityScore > best.PriorityScore {
			best = walkin
			found = true
		}
	}
	return best, found
}

// Duration returns the predicted service time of an entry for wait
// arithmetic, substituting the default for unknown predictions.
func Duration(entry models.QueueEntry) float64 {
	if entry.PredictedDuration <= 0 {
		return DefaultDurationMinutes
	}
	return entry.PredictedDuration
}
