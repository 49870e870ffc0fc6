package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daso/queue-service/internal/models"
	"daso/queue-service/internal/store"
)

type fakeStore struct {
	bookFn         func(ctx context.Context, input store.BookInput) (models.QueueEntry, error)
	getFn          func(ctx context.Context, entryID string) (models.QueueEntry, error)
	listActiveFn   func(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error)
	listHoldingFn  func(ctx context.Context) ([]models.QueueEntry, error)
	sweepFn        func(ctx context.Context, now time.Time, grace time.Duration) (int, error)
	checkInFn      func(ctx context.Context, input store.CheckInInput) (models.QueueEntry, error)
	startFn        func(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error)
	completeFn     func(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, store.CompletionResult, error)
	noShowFn       func(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error)
	listStaffFn    func(ctx context.Context) ([]models.Staff, error)
	nextCounterFn  func(ctx context.Context) (int, bool, error)
	transactionsFn func(ctx context.Context, limit int) ([]models.TransactionRecord, error)
	eventsFn       func(ctx context.Context, after time.Time, limit int) ([]store.Event, error)
}

func (f fakeStore) Book(ctx context.Context, input store.BookInput) (models.QueueEntry, error) {
	if f.bookFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.bookFn(ctx, input)
}

func (f fakeStore) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	if f.getFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.getFn(ctx, entryID)
}

func (f fakeStore) ListActive(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error) {
	if f.listActiveFn == nil {
		return nil, nil
	}
	return f.listActiveFn(ctx, filter)
}

func (f fakeStore) ListHolding(ctx context.Context) ([]models.QueueEntry, error) {
	if f.listHoldingFn == nil {
		return nil, nil
	}
	return f.listHoldingFn(ctx)
}

func (f fakeStore) SweepLateArrivals(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	if f.sweepFn == nil {
		return 0, nil
	}
	return f.sweepFn(ctx, now, grace)
}

func (f fakeStore) CheckIn(ctx context.Context, input store.CheckInInput) (models.QueueEntry, error) {
	if f.checkInFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.checkInFn(ctx, input)
}

func (f fakeStore) Start(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
	if f.startFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) Complete(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, store.CompletionResult, error) {
	if f.completeFn == nil {
		return models.QueueEntry{}, store.CompletionResult{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) NoShow(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
	if f.noShowFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.noShowFn(ctx, input)
}

func (f fakeStore) ListStaff(ctx context.Context) ([]models.Staff, error) {
	if f.listStaffFn == nil {
		return nil, nil
	}
	return f.listStaffFn(ctx)
}

func (f fakeStore) NextAvailableCounter(ctx context.Context) (int, bool, error) {
	if f.nextCounterFn == nil {
		return 0, false, nil
	}
	return f.nextCounterFn(ctx)
}

func (f fakeStore) ListTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	if f.transactionsFn == nil {
		return nil, nil
	}
	return f.transactionsFn(ctx, limit)
}

func (f fakeStore) ListEvents(ctx context.Context, after time.Time, limit int) ([]store.Event, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, after, limit)
}

func TestBookWalkInSuccess(t *testing.T) {
	createdAt := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	st := fakeStore{
		bookFn: func(ctx context.Context, input store.BookInput) (models.QueueEntry, error) {
			if input.Mobile != "9876543210" {
				t.Fatalf("unexpected mobile %q", input.Mobile)
			}
			if input.PriorityScore != 0 {
				t.Fatalf("expected zero initial score for plain deposit, got %f", input.PriorityScore)
			}
			if input.PredictedDuration != 5.0 {
				t.Fatalf("expected predicted 5.0, got %f", input.PredictedDuration)
			}
			return models.QueueEntry{
				EntryID:     "entry-1",
				Token:       "0903-0001",
				ServiceType: input.ServiceType,
				Origin:      input.Origin,
				Status:      models.StatusWaiting,
				CreatedAt:   createdAt,
			}, nil
		},
		listActiveFn: func(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error) {
			return []models.QueueEntry{{EntryID: "entry-1", Status: models.StatusWaiting, CreatedAt: createdAt}}, nil
		},
	}
	h := NewHandler(st, Options{Now: func() time.Time { return createdAt }})

	payload := map[string]any{
		"mobile":       "9876543210",
		"name":         "Asha Verma",
		"age":          30,
		"service_type": "Cash_Deposit",
		"origin":       "walk_in",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var booked bookingResponse
	if err := json.NewDecoder(resp.Body).Decode(&booked); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if booked.Token != "0903-0001" {
		t.Fatalf("unexpected token %q", booked.Token)
	}
	if booked.Position != 1 {
		t.Fatalf("expected position 1, got %d", booked.Position)
	}
}

func TestBookValidation(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})

	scheduled := "2026-03-09T11:00:00Z"
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"short mobile", map[string]any{"mobile": "12345", "age": 30, "service_type": "Cash_Deposit", "origin": "walk_in"}},
		{"non numeric mobile", map[string]any{"mobile": "98765abc10", "age": 30, "service_type": "Cash_Deposit", "origin": "walk_in"}},
		{"underage", map[string]any{"mobile": "9876543210", "age": 17, "service_type": "Cash_Deposit", "origin": "walk_in"}},
		{"over age cap", map[string]any{"mobile": "9876543210", "age": 101, "service_type": "Cash_Deposit", "origin": "walk_in"}},
		{"unknown service", map[string]any{"mobile": "9876543210", "age": 30, "service_type": "Palmistry", "origin": "walk_in"}},
		{"bad origin", map[string]any{"mobile": "9876543210", "age": 30, "service_type": "Cash_Deposit", "origin": "teleport"}},
		{"walk-in with slot", map[string]any{"mobile": "9876543210", "age": 30, "service_type": "Cash_Deposit", "origin": "walk_in", "scheduled_time": scheduled}},
		{"appointment without slot", map[string]any{"mobile": "9876543210", "age": 30, "service_type": "Cash_Deposit", "origin": "pre_booked"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.payload)
			req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
			resp := httptest.NewRecorder()
			h.Routes().ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
		})
	}
}

func TestQueueSweepsBeforeListing(t *testing.T) {
	var order []string
	st := fakeStore{
		sweepFn: func(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
			order = append(order, "sweep")
			if grace != 5*time.Minute {
				t.Fatalf("expected default 5m grace, got %s", grace)
			}
			return 2, nil
		},
		listActiveFn: func(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error) {
			order = append(order, "list")
			return []models.QueueEntry{
				{EntryID: "a", Status: models.StatusWaiting, PriorityScore: 10},
				{EntryID: "b", Status: models.StatusWaiting, PriorityScore: 50},
			}, nil
		},
	}
	h := NewHandler(st, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(order) != 2 || order[0] != "sweep" || order[1] != "list" {
		t.Fatalf("expected sweep before list, got %v", order)
	}

	var queue queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&queue); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if queue.Swept != 2 {
		t.Fatalf("expected swept=2, got %d", queue.Swept)
	}
	if queue.Count != 2 || queue.Entries[0].EntryID != "b" {
		t.Fatalf("unexpected queue order: %+v", queue.Entries)
	}
	if queue.Entries[0].Position != 1 || queue.Entries[1].EstimatedWaitMin != 5.0 {
		t.Fatalf("unexpected annotations: %+v", queue.Entries)
	}
}

func TestBookingPositionSweepsFirst(t *testing.T) {
	var order []string
	st := fakeStore{
		bookFn: func(ctx context.Context, input store.BookInput) (models.QueueEntry, error) {
			return models.QueueEntry{EntryID: "entry-1", Token: "0903-0001", Status: models.StatusWaiting}, nil
		},
		sweepFn: func(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
			order = append(order, "sweep")
			return 0, nil
		},
		listActiveFn: func(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error) {
			order = append(order, "list")
			return []models.QueueEntry{{EntryID: "entry-1", Status: models.StatusWaiting}}, nil
		},
	}
	h := NewHandler(st, Options{})

	payload := map[string]any{
		"mobile":       "9876543210",
		"age":          30,
		"service_type": "Cash_Deposit",
		"origin":       "walk_in",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	if len(order) != 2 || order[0] != "sweep" || order[1] != "list" {
		t.Fatalf("expected sweep before the position snapshot, got %v", order)
	}
}

func TestQueueRejectsBadStatus(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/queue?status=completed", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCheckInMapsMissingCustomer(t *testing.T) {
	st := fakeStore{
		checkInFn: func(ctx context.Context, input store.CheckInInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrCustomerNotFound
		},
	}
	h := NewHandler(st, Options{})

	body, _ := json.Marshal(map[string]string{"mobile": "9876543210"})
	req := httptest.NewRequest(http.MethodPost, "/api/checkin", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "customer_not_found" {
		t.Fatalf("unexpected error code %q", payload.Error.Code)
	}
}

func TestStartStaffBusyConflict(t *testing.T) {
	st := fakeStore{
		startFn: func(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrStaffBusy
		},
	}
	h := NewHandler(st, Options{})

	body, _ := json.Marshal(map[string]string{"staff_id": "staff-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/entries/entry-1/actions/start", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestStartRequiresStaffID(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/api/entries/entry-1/actions/start", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCompleteReturnsPerformance(t *testing.T) {
	st := fakeStore{
		completeFn: func(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, store.CompletionResult, error) {
			return models.QueueEntry{EntryID: input.EntryID, Status: models.StatusCompleted, PredictedDuration: 10},
				store.CompletionResult{ActualDuration: 12, WaitTime: 7, Performance: "slower"}, nil
		},
	}
	h := NewHandler(st, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/entries/entry-1/actions/complete", bytes.NewReader([]byte("{}")))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if completion.Performance != "slower" || completion.ActualDuration != 12 {
		t.Fatalf("unexpected completion: %+v", completion)
	}
}

func TestUnknownActionNotFound(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/entries/entry-1/actions/teleport", bytes.NewReader([]byte("{}")))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestInvalidTransitionConflict(t *testing.T) {
	st := fakeStore{
		noShowFn: func(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrInvalidTransition
		},
	}
	h := NewHandler(st, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/entries/entry-1/actions/no-show", bytes.NewReader([]byte("{}")))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestEstimateEndpoint(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})

	hour := 9
	payload := map[string]any{
		"service_type":     "Cash_Deposit",
		"age":              70,
		"staff_efficiency": 1.0,
		"hour_of_day":      hour,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/estimate", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var estimate estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&estimate); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if estimate.EstimatedMinutes != 5.3 {
		t.Fatalf("expected 5.3 minutes, got %v", estimate.EstimatedMinutes)
	}
}

func TestServicesCatalog(t *testing.T) {
	h := NewHandler(fakeStore{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var services []models.Service
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(services) != 8 {
		t.Fatalf("expected 8 services, got %d", len(services))
	}
}

func TestStaffRosterWithNextCounter(t *testing.T) {
	st := fakeStore{
		listStaffFn: func(ctx context.Context) ([]models.Staff, error) {
			return []models.Staff{
				{StaffID: "staff-1", Name: "Raj Kumar", CounterNumber: 1, IsAvailable: false},
				{StaffID: "staff-2", Name: "Priya Sharma", CounterNumber: 2, IsAvailable: true},
			}, nil
		},
		nextCounterFn: func(ctx context.Context) (int, bool, error) {
			return 2, true, nil
		},
	}
	h := NewHandler(st, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/staff", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var roster staffResponse
	if err := json.NewDecoder(resp.Body).Decode(&roster); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(roster.Staff) != 2 {
		t.Fatalf("expected 2 staff, got %d", len(roster.Staff))
	}
	if roster.NextAvailableCounter == nil || *roster.NextAvailableCounter != 2 {
		t.Fatalf("expected next counter 2, got %v", roster.NextAvailableCounter)
	}
}

func TestEventsAfterFilter(t *testing.T) {
	after := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	st := fakeStore{
		eventsFn: func(ctx context.Context, gotAfter time.Time, limit int) ([]store.Event, error) {
			if !gotAfter.Equal(after) {
				t.Fatalf("expected after %s, got %s", after, gotAfter)
			}
			if limit != 10 {
				t.Fatalf("expected limit 10, got %d", limit)
			}
			return []store.Event{{EventID: "event-1", Type: "entry.created"}}, nil
		},
	}
	h := NewHandler(st, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/events?after=2026-03-09T09:00:00Z&limit=10", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}
