package store

import (
	"context"
	"encoding/json"
	"time"

	"daso/queue-service/internal/models"
)

// BookInput creates a customer (upsert by mobile) and a queue entry in one
// operation. Name, Age, and IsDisabled update the customer record only when
// supplied; zero values leave prior values untouched.
type BookInput struct {
	Mobile            string
	Name              string
	Age               int
	IsDisabled        *bool
	ServiceType       string
	Origin            string
	ScheduledTime     *time.Time
	PriorityScore     float64
	PredictedDuration float64
	CreatedAt         time.Time
}

// StaffActionInput drives the start/complete/no-show transitions.
type StaffActionInput struct {
	EntryID       string
	StaffID       string
	CounterNumber int
	OccurredAt    time.Time
}

// CheckInInput confirms a customer's arrival by mobile number.
type CheckInInput struct {
	Mobile     string
	OccurredAt time.Time
}

// CompletionResult is the completion accounting returned alongside the
// updated entry.
type CompletionResult struct {
	ActualDuration float64
	WaitTime       float64
	Performance    string
}

// ListFilter narrows active-queue reads. Zero value lists all active
// statuses (waiting, checked_in, in_progress).
type ListFilter struct {
	Status string
	Limit  int
}

type QueueStore interface {
	Book(ctx context.Context, input BookInput) (models.QueueEntry, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error)
	ListActive(ctx context.Context, filter ListFilter) ([]models.QueueEntry, error)
	ListHolding(ctx context.Context) ([]models.QueueEntry, error)

	// SweepLateArrivals demotes overdue unconfirmed appointments to
	// holding and reports how many were demoted. Idempotent for a fixed
	// now.
	SweepLateArrivals(ctx context.Context, now time.Time, grace time.Duration) (int, error)

	CheckIn(ctx context.Context, input CheckInInput) (models.QueueEntry, error)
	Start(ctx context.Context, input StaffActionInput) (models.QueueEntry, error)
	Complete(ctx context.Context, input StaffActionInput) (models.QueueEntry, CompletionResult, error)
	NoShow(ctx context.Context, input StaffActionInput) (models.QueueEntry, error)

	ListStaff(ctx context.Context) ([]models.Staff, error)
	NextAvailableCounter(ctx context.Context) (int, bool, error)

	ListTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error)
	ListEvents(ctx context.Context, after time.Time, limit int) ([]Event, error)
}

// Event is an outbox row emitted on every entry transition; the realtime
// hub and external pollers consume it.
type Event struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventPayload is the wire shape of Event.Payload.
type EventPayload struct {
	EntryID     string  `json:"entry_id"`
	Token       string  `json:"token"`
	ServiceType string  `json:"service_type"`
	Status      string  `json:"status"`
	Priority    float64 `json:"priority_score"`
}
