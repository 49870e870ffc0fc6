// Package memory implements the queue store as a single mutex-guarded
// in-memory structure. All mutation goes through the typed transition
// operations so the entry and staff invariants hold in one place; it is
// the default store and the one the scheduling tests run against.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"daso/queue-service/internal/models"
	"daso/queue-service/internal/scheduler"
	"daso/queue-service/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu           sync.Mutex
	customers    map[string]*models.Customer
	mobileIndex  map[string]string
	entries      map[string]*models.QueueEntry
	staff        map[string]*models.Staff
	transactions []models.TransactionRecord
	events       []store.Event

	tokenDay string
	tokenSeq int
}

type Options struct {
	// Staff seeds the roster; when empty a default four-counter roster is
	// installed.
	Staff []models.Staff
}

func NewStore(options Options) *Store {
	s := &Store{
		customers:   make(map[string]*models.Customer),
		mobileIndex: make(map[string]string),
		entries:     make(map[string]*models.QueueEntry),
		staff:       make(map[string]*models.Staff),
	}
	roster := options.Staff
	if len(roster) == 0 {
		roster = defaultRoster()
	}
	for i := range roster {
		member := roster[i]
		if member.StaffID == "" {
			member.StaffID = uuid.NewString()
		}
		member.IsAvailable = member.CurrentEntryID == nil
		s.staff[member.StaffID] = &member
	}
	return s
}

func defaultRoster() []models.Staff {
	return []models.Staff{
		{Name: "Raj Kumar", CounterNumber: 1, Efficiency: 1.0},
		{Name: "Priya Sharma", CounterNumber: 2, Efficiency: 1.1},
		{Name: "Amit Patel", CounterNumber: 3, Efficiency: 0.95},
		{Name: "Neha Singh", CounterNumber: 4, Efficiency: 1.05},
	}
}

// allocateTokenLocked issues the day-scoped token. Callers must hold s.mu:
// the read-and-increment of the day sequence is a single critical section
// so concurrent bookings can never observe the same count. The sequence is
// committed only after the conflict scan, so a conflicting allocation
// leaves no state behind.
func (s *Store) allocateTokenLocked(createdAt time.Time) (string, error) {
	day := createdAt.Format("0201")
	seq := s.tokenSeq + 1
	if day != s.tokenDay {
		seq = 1
	}
	token := fmt.Sprintf("%s-%04d", day, seq)
	for _, existing := range s.entries {
		if existing.Token == token {
			return "", store.ErrTokenConflict
		}
	}
	s.tokenDay = day
	s.tokenSeq = seq
	return token, nil
}

func (s *Store) Book(ctx context.Context, input store.BookInput) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	token, err := s.allocateTokenLocked(createdAt)
	if err != nil {
		return models.QueueEntry{}, err
	}

	customer := s.upsertCustomerLocked(input, createdAt)

	entry := &models.QueueEntry{
		EntryID:           uuid.NewString(),
		Token:             token,
		CustomerID:        customer.CustomerID,
		ServiceType:       input.ServiceType,
		Origin:            input.Origin,
		Status:            models.StatusWaiting,
		PriorityScore:     input.PriorityScore,
		PredictedDuration: input.PredictedDuration,
		ScheduledTime:     input.ScheduledTime,
		CreatedAt:         createdAt,
	}
	s.entries[entry.EntryID] = entry
	s.appendEventLocked("entry.created", entry)

	return s.entryViewLocked(entry), nil
}

func (s *Store) upsertCustomerLocked(input store.BookInput, now time.Time) *models.Customer {
	if id, ok := s.mobileIndex[input.Mobile]; ok {
		customer := s.customers[id]
		if input.Name != "" {
			customer.Name = input.Name
		}
		if input.Age > 0 {
			customer.Age = input.Age
		}
		if input.IsDisabled != nil {
			customer.IsDisabled = *input.IsDisabled
		}
		return customer
	}

	customer := &models.Customer{
		CustomerID: uuid.NewString(),
		Mobile:     input.Mobile,
		Name:       input.Name,
		Age:        input.Age,
		CreatedAt:  now,
	}
	if customer.Age <= 0 {
		customer.Age = 30
	}
	if input.IsDisabled != nil {
		customer.IsDisabled = *input.IsDisabled
	}
	s.customers[customer.CustomerID] = customer
	s.mobileIndex[customer.Mobile] = customer.CustomerID
	return customer
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return s.entryViewLocked(entry), nil
}

func (s *Store) ListActive(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.QueueEntry
	for _, entry := range s.entries {
		if filter.Status != "" {
			if entry.Status != filter.Status {
				continue
			}
		} else if !activeStatus(entry.Status) {
			continue
		}
		result = append(result, s.entryViewLocked(entry))
	}

	sort.SliceStable(result, func(i, j int) bool {
		iServing := result[i].Status == models.StatusInProgress
		jServing := result[j].Status == models.StatusInProgress
		if iServing != jServing {
			return iServing
		}
		if result[i].PriorityScore != result[j].PriorityScore {
			return result[i].PriorityScore > result[j].PriorityScore
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func activeStatus(status string) bool {
	switch status {
	case models.StatusWaiting, models.StatusCheckedIn, models.StatusInProgress:
		return true
	}
	return false
}

func (s *Store) ListHolding(ctx context.Context) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.QueueEntry
	for _, entry := range s.entries {
		if entry.Status == models.StatusHolding {
			result = append(result, s.entryViewLocked(entry))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		iTime, jTime := result[i].ScheduledTime, result[j].ScheduledTime
		if iTime == nil || jTime == nil {
			return jTime == nil && iTime != nil
		}
		return iTime.Before(*jTime)
	})
	return result, nil
}

func (s *Store) SweepLateArrivals(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-grace)
	demoted := 0
	for _, entry := range s.entries {
		if entry.Origin != models.OriginPreBooked || entry.Status != models.StatusWaiting {
			continue
		}
		if entry.CheckedInAt != nil || entry.ScheduledTime == nil {
			continue
		}
		if !entry.ScheduledTime.Before(cutoff) {
			continue
		}
		entry.Status = models.StatusHolding
		demoted++
		s.appendEventLocked("entry.held", entry)
	}
	return demoted, nil
}

func (s *Store) CheckIn(ctx context.Context, input store.CheckInInput) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customerID, ok := s.mobileIndex[input.Mobile]
	if !ok {
		return models.QueueEntry{}, store.ErrCustomerNotFound
	}
	customer := s.customers[customerID]

	entry := s.pendingEntryLocked(customerID)
	if entry == nil {
		return models.QueueEntry{}, store.ErrNoPendingEntry
	}
	if !store.ValidTransition(store.ActionCheckIn, entry.Status) {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	waited := occurredAt.Sub(entry.CreatedAt).Minutes()
	if waited < 0 {
		waited = 0
	}
	entry.Status = models.StatusCheckedIn
	entry.CheckedInAt = &occurredAt
	entry.PriorityScore = scheduler.Score(entry.ServiceType, customer.Age, customer.IsDisabled, waited) + scheduler.ArrivalBoost
	s.appendEventLocked("entry.checked_in", entry)

	return s.entryViewLocked(entry), nil
}

// pendingEntryLocked finds the customer's oldest waiting or holding entry.
func (s *Store) pendingEntryLocked(customerID string) *models.QueueEntry {
	var best *models.QueueEntry
	for _, entry := range s.entries {
		if entry.CustomerID != customerID {
			continue
		}
		if entry.Status != models.StatusWaiting && entry.Status != models.StatusHolding {
			continue
		}
		if best == nil || entry.CreatedAt.Before(best.CreatedAt) {
			best = entry
		}
	}
	return best
}

func (s *Store) Start(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if !store.ValidTransition(store.ActionStart, entry.Status) {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}
	// Appointments enter service via check-in; only walk-ins start straight
	// from waiting.
	if entry.Status == models.StatusWaiting && entry.Origin == models.OriginPreBooked {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}

	member, ok := s.staff[input.StaffID]
	if !ok {
		return models.QueueEntry{}, store.ErrStaffNotFound
	}
	if !member.IsAvailable {
		return models.QueueEntry{}, store.ErrStaffBusy
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	counter := input.CounterNumber
	if counter <= 0 {
		counter = member.CounterNumber
	}

	entry.Status = models.StatusInProgress
	entry.StartedAt = &occurredAt
	entry.AssignedCounter = &counter
	staffID := member.StaffID
	entry.StaffID = &staffID

	member.IsAvailable = false
	entryID := entry.EntryID
	member.CurrentEntryID = &entryID

	s.appendEventLocked("entry.started", entry)
	return s.entryViewLocked(entry), nil
}

func (s *Store) Complete(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, store.CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.CompletionResult{}, store.ErrEntryNotFound
	}
	if !store.ValidTransition(store.ActionComplete, entry.Status) {
		return models.QueueEntry{}, store.CompletionResult{}, store.ErrInvalidTransition
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	actual := entry.PredictedDuration
	wait := 0.0
	if entry.StartedAt != nil {
		actual = occurredAt.Sub(*entry.StartedAt).Minutes()
		wait = entry.StartedAt.Sub(entry.CreatedAt).Minutes()
		if wait < 0 {
			wait = 0
		}
	}

	entry.Status = models.StatusCompleted
	entry.EndedAt = &occurredAt
	entry.ActualDuration = actual

	staffID := input.StaffID
	if entry.StaffID != nil {
		staffID = *entry.StaffID
	}
	s.releaseStaffLocked(staffID)

	s.transactions = append(s.transactions, models.TransactionRecord{
		RecordID:          uuid.NewString(),
		EntryID:           entry.EntryID,
		ServiceType:       entry.ServiceType,
		PredictedDuration: entry.PredictedDuration,
		ActualDuration:    actual,
		WaitTime:          wait,
		StaffID:           staffID,
		CompletedAt:       occurredAt,
	})
	s.appendEventLocked("entry.completed", entry)

	return s.entryViewLocked(entry), store.CompletionResult{
		ActualDuration: actual,
		WaitTime:       wait,
		Performance:    Performance(entry.PredictedDuration, actual),
	}, nil
}

// Performance classifies a completed service against its prediction.
func Performance(predicted, actual float64) string {
	if predicted <= 0 {
		predicted = actual
	}
	switch {
	case actual < predicted:
		return "faster"
	case actual > predicted*1.1:
		return "slower"
	default:
		return "on_track"
	}
}

func (s *Store) NoShow(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	if !store.ValidTransition(store.ActionNoShow, entry.Status) {
		return models.QueueEntry{}, store.ErrInvalidTransition
	}

	wasServing := entry.Status == models.StatusInProgress
	entry.Status = models.StatusNoShow
	if wasServing && entry.StaffID != nil {
		s.releaseStaffLocked(*entry.StaffID)
	}

	s.appendEventLocked("entry.no_show", entry)
	return s.entryViewLocked(entry), nil
}

// releaseStaffLocked is idempotent: releasing an already-available member
// is a no-op.
func (s *Store) releaseStaffLocked(staffID string) {
	member, ok := s.staff[staffID]
	if !ok {
		return
	}
	member.IsAvailable = true
	member.CurrentEntryID = nil
}

func (s *Store) ListStaff(ctx context.Context) ([]models.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.Staff, 0, len(s.staff))
	for _, member := range s.staff {
		result = append(result, *member)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CounterNumber < result[j].CounterNumber
	})
	return result, nil
}

func (s *Store) NextAvailableCounter(ctx context.Context) (int, bool, error) {
	staff, _ := s.ListStaff(ctx)
	for _, member := range staff {
		if member.IsAvailable {
			return member.CounterNumber, true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.TransactionRecord, len(s.transactions))
	copy(result, s.transactions)
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *Store) ListEvents(ctx context.Context, after time.Time, limit int) ([]store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []store.Event
	for _, event := range s.events {
		if !event.CreatedAt.After(after) {
			continue
		}
		result = append(result, event)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) appendEventLocked(eventType string, entry *models.QueueEntry) {
	payload, err := json.Marshal(store.EventPayload{
		EntryID:     entry.EntryID,
		Token:       entry.Token,
		ServiceType: entry.ServiceType,
		Status:      entry.Status,
		Priority:    entry.PriorityScore,
	})
	if err != nil {
		return
	}
	s.events = append(s.events, store.Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

// entryViewLocked copies the entry and attaches the owning customer's
// display fields.
func (s *Store) entryViewLocked(entry *models.QueueEntry) models.QueueEntry {
	view := *entry
	if customer, ok := s.customers[entry.CustomerID]; ok {
		view.CustomerName = customer.Name
		view.Mobile = customer.Mobile
		view.Age = customer.Age
		view.IsDisabled = customer.IsDisabled
	}
	return view
}
