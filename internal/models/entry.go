package models

import "time"

type QueueEntry struct {
	EntryID           string     `json:"entry_id"`
	Token             string     `json:"token"`
	CustomerID        string     `json:"customer_id,omitempty"`
	ServiceType       string     `json:"service_type"`
	Origin            string     `json:"origin"`
	Status            string     `json:"status"`
	PriorityScore     float64    `json:"priority_score"`
	PredictedDuration float64    `json:"predicted_duration_min,omitempty"`
	ActualDuration    float64    `json:"actual_duration_min,omitempty"`
	ScheduledTime     *time.Time `json:"scheduled_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CheckedInAt       *time.Time `json:"checked_in_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	AssignedCounter   *int       `json:"assigned_counter,omitempty"`
	StaffID           *string    `json:"staff_id,omitempty"`

	// Denormalized customer fields carried on queue reads.
	CustomerName string `json:"customer_name,omitempty"`
	Mobile       string `json:"mobile,omitempty"`
	Age          int    `json:"age,omitempty"`
	IsDisabled   bool   `json:"is_disabled,omitempty"`
}

const (
	StatusWaiting    = "waiting"
	StatusHolding    = "holding"
	StatusCheckedIn  = "checked_in"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusNoShow     = "no_show"
)

const (
	OriginWalkIn    = "walk_in"
	OriginPreBooked = "pre_booked"
)

// Terminal reports whether a status accepts no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusNoShow
}

type Customer struct {
	CustomerID string    `json:"customer_id"`
	Mobile     string    `json:"mobile"`
	Name       string    `json:"name,omitempty"`
	Age        int       `json:"age"`
	IsDisabled bool      `json:"is_disabled"`
	CreatedAt  time.Time `json:"created_at"`
}

type Staff struct {
	StaffID        string  `json:"staff_id"`
	Name           string  `json:"name"`
	CounterNumber  int     `json:"counter_number"`
	Efficiency     float64 `json:"efficiency_score"`
	IsAvailable    bool    `json:"is_available"`
	CurrentEntryID *string `json:"current_entry_id,omitempty"`
}

type TransactionRecord struct {
	RecordID          string    `json:"record_id"`
	EntryID           string    `json:"entry_id"`
	ServiceType       string    `json:"service_type"`
	PredictedDuration float64   `json:"predicted_duration_min"`
	ActualDuration    float64   `json:"actual_duration_min"`
	WaitTime          float64   `json:"wait_time_min"`
	StaffID           string    `json:"staff_id"`
	CompletedAt       time.Time `json:"completed_at"`
}
