package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"daso/queue-service/internal/models"
	"daso/queue-service/internal/predict"
	"daso/queue-service/internal/scheduler"
	"daso/queue-service/internal/store"
)

type Handler struct {
	store store.QueueStore
	grace time.Duration
	limit int
	now   func() time.Time
}

type Options struct {
	// LateArrivalGrace is how far past the scheduled slot an appointment
	// may be before the sweep demotes it to the holding pool.
	LateArrivalGrace time.Duration
	// QueuePageSize caps queue listings when the request does not.
	QueuePageSize int
	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewHandler(st store.QueueStore, options Options) *Handler {
	grace := options.LateArrivalGrace
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	limit := options.QueuePageSize
	if limit <= 0 {
		limit = 50
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{store: st, grace: grace, limit: limit, now: now}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/estimate", h.handleEstimate)
	mux.HandleFunc("/api/bookings", h.handleBookings)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/holding-pool", h.handleHoldingPool)
	mux.HandleFunc("/api/staff", h.handleStaff)
	mux.HandleFunc("/api/checkin", h.handleCheckIn)
	mux.HandleFunc("/api/entries/", h.handleEntryActions)
	mux.HandleFunc("/api/transactions", h.handleTransactions)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, models.Services)
}

type estimateRequest struct {
	ServiceType     string  `json:"service_type"`
	Age             int     `json:"age"`
	IsDisabled      bool    `json:"is_disabled"`
	StaffEfficiency float64 `json:"staff_efficiency"`
	HourOfDay       *int    `json:"hour_of_day"`
}

type estimateResponse struct {
	ServiceType      string  `json:"service_type"`
	EstimatedMinutes float64 `json:"estimated_minutes"`
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req estimateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.ServiceType = strings.TrimSpace(req.ServiceType)
	if _, ok := models.ServiceByCode(req.ServiceType); !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown service_type")
		return
	}
	if req.Age < 18 || req.Age > 100 {
		writeError(w, http.StatusBadRequest, "invalid_request", "age must be between 18 and 100")
		return
	}
	if req.StaffEfficiency <= 0 {
		req.StaffEfficiency = 1.0
	}
	hour := h.now().Hour()
	if req.HourOfDay != nil {
		if *req.HourOfDay < 0 || *req.HourOfDay > 23 {
			writeError(w, http.StatusBadRequest, "invalid_request", "hour_of_day must be 0-23")
			return
		}
		hour = *req.HourOfDay
	}

	minutes := predict.Estimate(req.Age, req.IsDisabled, req.ServiceType, req.StaffEfficiency, hour)
	if minutes <= 0 {
		minutes = scheduler.DefaultDurationMinutes
	}
	writeJSON(w, http.StatusOK, estimateResponse{ServiceType: req.ServiceType, EstimatedMinutes: minutes})
}

type bookingRequest struct {
	Mobile        string     `json:"mobile"`
	Name          string     `json:"name"`
	Age           int        `json:"age"`
	IsDisabled    *bool      `json:"is_disabled"`
	ServiceType   string     `json:"service_type"`
	Origin        string     `json:"origin"`
	ScheduledTime *time.Time `json:"scheduled_time"`
}

type bookingResponse struct {
	Entry            models.QueueEntry `json:"entry"`
	Token            string            `json:"token"`
	Position         int               `json:"position"`
	EstimatedWaitMin float64           `json:"estimated_wait_min"`
}

func (h *Handler) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req bookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Mobile = strings.TrimSpace(req.Mobile)
	req.Name = strings.TrimSpace(req.Name)
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.Origin = strings.TrimSpace(req.Origin)

	if !isValidMobile(req.Mobile) {
		writeError(w, http.StatusBadRequest, "invalid_request", "mobile must be 10-15 digits")
		return
	}
	if req.Age < 18 || req.Age > 100 {
		writeError(w, http.StatusBadRequest, "invalid_request", "age must be between 18 and 100")
		return
	}
	if _, ok := models.ServiceByCode(req.ServiceType); !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown service_type")
		return
	}
	switch req.Origin {
	case models.OriginWalkIn:
		if req.ScheduledTime != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "scheduled_time is not allowed for walk_in")
			return
		}
	case models.OriginPreBooked:
		if req.ScheduledTime == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "scheduled_time is required for pre_booked")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "origin must be walk_in or pre_booked")
		return
	}

	now := h.now()
	disabled := req.IsDisabled != nil && *req.IsDisabled
	hour := now.Hour()
	if req.ScheduledTime != nil {
		hour = req.ScheduledTime.Hour()
	}
	predicted := predict.Estimate(req.Age, disabled, req.ServiceType, 1.0, hour)

	entry, err := h.store.Book(r.Context(), store.BookInput{
		Mobile:            req.Mobile,
		Name:              req.Name,
		Age:               req.Age,
		IsDisabled:        req.IsDisabled,
		ServiceType:       req.ServiceType,
		Origin:            req.Origin,
		ScheduledTime:     req.ScheduledTime,
		PriorityScore:     scheduler.Score(req.ServiceType, req.Age, disabled, 0),
		PredictedDuration: predicted,
		CreatedAt:         now,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	position, wait := h.queuePosition(r, entry.EntryID)
	writeJSON(w, http.StatusCreated, bookingResponse{
		Entry:            entry,
		Token:            entry.Token,
		Position:         position,
		EstimatedWaitMin: wait,
	})
}

// queuePosition computes the entry's place from one merged snapshot, with
// the late-arrival sweep applied first so held appointments cannot occupy a
// slot. A zero position means the entry is not in the active queue (for
// example a pre_booked entry waiting for its slot still is, but a held one
// is not).
func (h *Handler) queuePosition(r *http.Request, entryID string) (int, float64) {
	if _, err := h.store.SweepLateArrivals(r.Context(), h.now(), h.grace); err != nil {
		return 0, 0
	}
	entries, err := h.store.ListActive(r.Context(), store.ListFilter{})
	if err != nil {
		return 0, 0
	}
	for _, placed := range scheduler.Merge(entries, 0) {
		if placed.EntryID == entryID {
			return placed.Position, placed.EstimatedWaitMin
		}
	}
	return 0, 0
}

type queueResponse struct {
	Swept   int                `json:"swept"`
	Count   int                `json:"count"`
	Entries []scheduler.Placed `json:"entries"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := h.limit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusWaiting, models.StatusCheckedIn, models.StatusInProgress:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be waiting, checked_in, or in_progress")
		return
	}

	swept, err := h.store.SweepLateArrivals(r.Context(), h.now(), h.grace)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	entries, err := h.store.ListActive(r.Context(), store.ListFilter{Status: status})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	placed := scheduler.Merge(entries, limit)
	if placed == nil {
		placed = []scheduler.Placed{}
	}
	writeJSON(w, http.StatusOK, queueResponse{Swept: swept, Count: len(placed), Entries: placed})
}

func (h *Handler) handleHoldingPool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	entries, err := h.store.ListHolding(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type staffResponse struct {
	Staff []models.Staff `json:"staff"`
	// NextAvailableCounter is advisory: the lowest-numbered free counter
	// at read time, null when every counter is busy.
	NextAvailableCounter *int `json:"next_available_counter"`
}

func (h *Handler) handleStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	roster, err := h.store.ListStaff(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if roster == nil {
		roster = []models.Staff{}
	}
	response := staffResponse{Staff: roster}
	if counter, ok, err := h.store.NextAvailableCounter(r.Context()); err == nil && ok {
		response.NextAvailableCounter = &counter
	}
	writeJSON(w, http.StatusOK, response)
}

type checkInRequest struct {
	Mobile string `json:"mobile"`
}

type checkInResponse struct {
	Entry            models.QueueEntry `json:"entry"`
	Position         int               `json:"position"`
	EstimatedWaitMin float64           `json:"estimated_wait_min"`
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req checkInRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Mobile = strings.TrimSpace(req.Mobile)
	if !isValidMobile(req.Mobile) {
		writeError(w, http.StatusBadRequest, "invalid_request", "mobile must be 10-15 digits")
		return
	}

	entry, err := h.store.CheckIn(r.Context(), store.CheckInInput{Mobile: req.Mobile, OccurredAt: h.now()})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	position, wait := h.queuePosition(r, entry.EntryID)
	writeJSON(w, http.StatusOK, checkInResponse{Entry: entry, Position: position, EstimatedWaitMin: wait})
}

func (h *Handler) handleEntryActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entryID := parts[0]
	if entryID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "entry id is required")
		return
	}

	switch parts[2] {
	case "start":
		h.handleStart(w, r, entryID)
	case "complete":
		h.handleComplete(w, r, entryID)
	case "no-show":
		h.handleNoShow(w, r, entryID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type staffActionRequest struct {
	StaffID       string `json:"staff_id"`
	CounterNumber int    `json:"counter_number"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request, entryID string) {
	var req staffActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "staff_id is required")
		return
	}

	entry, err := h.store.Start(r.Context(), store.StaffActionInput{
		EntryID:       entryID,
		StaffID:       req.StaffID,
		CounterNumber: req.CounterNumber,
		OccurredAt:    h.now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type completionResponse struct {
	Entry             models.QueueEntry `json:"entry"`
	PredictedDuration float64           `json:"predicted_duration"`
	ActualDuration    float64           `json:"actual_duration"`
	WaitTime          float64           `json:"wait_time"`
	Performance       string            `json:"performance"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, result, err := h.store.Complete(r.Context(), store.StaffActionInput{
		EntryID:    entryID,
		OccurredAt: h.now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Entry:             entry,
		PredictedDuration: entry.PredictedDuration,
		ActualDuration:    result.ActualDuration,
		WaitTime:          result.WaitTime,
		Performance:       result.Performance,
	})
}

func (h *Handler) handleNoShow(w http.ResponseWriter, r *http.Request, entryID string) {
	entry, err := h.store.NoShow(r.Context(), store.StaffActionInput{
		EntryID:    entryID,
		OccurredAt: h.now(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.store.ListTransactions(r.Context(), limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if records == nil {
		records = []models.TransactionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var after time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func isValidMobile(value string) bool {
	if len(value) < 10 || len(value) > 15 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found", "customer not found"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrStaffNotFound):
		return http.StatusNotFound, "staff_not_found", "staff member not found"
	case errors.Is(err, store.ErrNoPendingEntry):
		return http.StatusNotFound, "no_pending_entry", "no pending entry for this customer"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "entry state does not allow this action"
	case errors.Is(err, store.ErrStaffBusy):
		return http.StatusConflict, "staff_busy", "staff member is already serving an entry"
	case errors.Is(err, store.ErrTokenConflict):
		return http.StatusConflict, "token_conflict", "token already issued"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
