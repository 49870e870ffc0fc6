// Package postgres implements the queue store on pgx. Every transition is
// one transaction: the entry row is locked, the prior status validated,
// then the write and its outbox event land together or not at all.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daso/queue-service/internal/models"
	"daso/queue-service/internal/scheduler"
	"daso/queue-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the schema and seeds the default roster when the staff
// table is empty.
func (s *Store) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id UUID PRIMARY KEY,
			mobile VARCHAR(15) UNIQUE NOT NULL,
			name VARCHAR(100),
			age INTEGER NOT NULL DEFAULT 30,
			is_disabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS queue_entries (
			entry_id UUID PRIMARY KEY,
			token VARCHAR(20) UNIQUE NOT NULL,
			customer_id UUID REFERENCES customers(customer_id),
			service_type VARCHAR(50) NOT NULL,
			origin VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'waiting',
			priority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			predicted_duration DOUBLE PRECISION,
			actual_duration DOUBLE PRECISION,
			scheduled_time TIMESTAMPTZ,
			checked_in_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			assigned_counter INTEGER,
			staff_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entries_status ON queue_entries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_entries_priority ON queue_entries(priority_score DESC)`,
		`CREATE TABLE IF NOT EXISTS staff (
			staff_id UUID PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			counter_number INTEGER UNIQUE NOT NULL,
			efficiency_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			is_available BOOLEAN NOT NULL DEFAULT TRUE,
			current_entry_id UUID
		)`,
		`CREATE TABLE IF NOT EXISTS transaction_history (
			record_id UUID PRIMARY KEY,
			entry_id UUID REFERENCES queue_entries(entry_id),
			service_type VARCHAR(50) NOT NULL,
			predicted_duration DOUBLE PRECISION NOT NULL,
			actual_duration DOUBLE PRECISION NOT NULL,
			wait_time DOUBLE PRECISION NOT NULL,
			staff_id UUID,
			completed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS token_sequences (
			day_key VARCHAR(4) PRIMARY KEY,
			next_number BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			event_id UUID PRIMARY KEY,
			type VARCHAR(50) NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	seed := []struct {
		name       string
		counter    int
		efficiency float64
	}{
		{"Raj Kumar", 1, 1.0},
		{"Priya Sharma", 2, 1.1},
		{"Amit Patel", 3, 0.95},
		{"Neha Singh", 4, 1.05},
	}
	for _, member := range seed {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO staff (staff_id, name, counter_number, efficiency_score)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (counter_number) DO NOTHING
		`, uuid.NewString(), member.name, member.counter, member.efficiency); err != nil {
			return err
		}
	}
	return nil
}

// nextToken allocates the day-scoped sequence atomically: the upsert
// increments and returns in one statement, so two concurrent bookings can
// never observe the same number.
func nextToken(ctx context.Context, tx pgx.Tx, createdAt time.Time) (string, error) {
	day := createdAt.Format("0201")
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO token_sequences (day_key, next_number)
		VALUES ($1, 1)
		ON CONFLICT (day_key)
		DO UPDATE SET next_number = token_sequences.next_number + 1
		RETURNING next_number
	`, day)
	if err := row.Scan(&next); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", day, next), nil
}

func (s *Store) Book(ctx context.Context, input store.BookInput) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	customerID, err := upsertCustomer(ctx, tx, input, createdAt)
	if err != nil {
		return models.QueueEntry{}, err
	}

	token, err := nextToken(ctx, tx, createdAt)
	if err != nil {
		return models.QueueEntry{}, err
	}

	entryID := uuid.NewString()
	tag, err := tx.Exec(ctx, `
		INSERT INTO queue_entries (
			entry_id, token, customer_id, service_type, origin, status,
			priority_score, predicted_duration, scheduled_time, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (token) DO NOTHING
	`, entryID, token, customerID, input.ServiceType, input.Origin, models.StatusWaiting,
		input.PriorityScore, nullIfNonPositive(input.PredictedDuration), input.ScheduledTime, createdAt)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrTokenConflict
		return models.QueueEntry{}, err
	}

	entry, err := getEntry(ctx, tx, entryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertEvent(ctx, tx, "entry.created", entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func upsertCustomer(ctx context.Context, tx pgx.Tx, input store.BookInput, now time.Time) (string, error) {
	age := input.Age
	if age <= 0 {
		age = 30
	}
	var customerID string
	row := tx.QueryRow(ctx, `
		INSERT INTO customers (customer_id, mobile, name, age, is_disabled, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, COALESCE($5, FALSE), $6)
		ON CONFLICT (mobile) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			age = CASE WHEN $7 THEN EXCLUDED.age ELSE customers.age END,
			is_disabled = COALESCE($5, customers.is_disabled)
		RETURNING customer_id
	`, uuid.NewString(), input.Mobile, input.Name, age, input.IsDisabled, now, input.Age > 0)
	if err := row.Scan(&customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

const entryColumns = `
	e.entry_id, e.token, e.customer_id, e.service_type, e.origin, e.status,
	e.priority_score, e.predicted_duration, e.actual_duration,
	e.scheduled_time, e.checked_in_at, e.started_at, e.ended_at,
	e.assigned_counter, e.staff_id, e.created_at,
	c.name, c.mobile, c.age, c.is_disabled`

const entryFrom = `
	FROM queue_entries e
	LEFT JOIN customers c ON c.customer_id = e.customer_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var customerID, staffID, name, mobile sql.NullString
	var predicted, actual sql.NullFloat64
	var scheduled, checkedIn, started, ended sql.NullTime
	var counter sql.NullInt64
	var age sql.NullInt64
	var disabled sql.NullBool

	err := row.Scan(
		&entry.EntryID, &entry.Token, &customerID, &entry.ServiceType, &entry.Origin, &entry.Status,
		&entry.PriorityScore, &predicted, &actual,
		&scheduled, &checkedIn, &started, &ended,
		&counter, &staffID, &entry.CreatedAt,
		&name, &mobile, &age, &disabled,
	)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if customerID.Valid {
		entry.CustomerID = customerID.String
	}
	if predicted.Valid {
		entry.PredictedDuration = predicted.Float64
	}
	if actual.Valid {
		entry.ActualDuration = actual.Float64
	}
	entry.ScheduledTime = nullTimePtr(scheduled)
	entry.CheckedInAt = nullTimePtr(checkedIn)
	entry.StartedAt = nullTimePtr(started)
	entry.EndedAt = nullTimePtr(ended)
	if counter.Valid {
		value := int(counter.Int64)
		entry.AssignedCounter = &value
	}
	if staffID.Valid {
		value := staffID.String
		entry.StaffID = &value
	}
	if name.Valid {
		entry.CustomerName = name.String
	}
	if mobile.Valid {
		entry.Mobile = mobile.String
	}
	if age.Valid {
		entry.Age = int(age.Int64)
	}
	if disabled.Valid {
		entry.IsDisabled = disabled.Bool
	}
	return entry, nil
}

func getEntry(ctx context.Context, tx pgx.Tx, entryID string) (models.QueueEntry, error) {
	row := tx.QueryRow(ctx, `SELECT`+entryColumns+entryFrom+` WHERE e.entry_id = $1`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, err
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+entryColumns+entryFrom+` WHERE e.entry_id = $1`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, err
}

func (s *Store) ListActive(ctx context.Context, filter store.ListFilter) ([]models.QueueEntry, error) {
	query := `SELECT` + entryColumns + entryFrom
	var args []any
	if filter.Status != "" {
		query += ` WHERE e.status = $1`
		args = append(args, filter.Status)
	} else {
		query += ` WHERE e.status IN ('waiting', 'checked_in', 'in_progress')`
	}
	query += `
		ORDER BY
			CASE WHEN e.status = 'in_progress' THEN 0 ELSE 1 END,
			e.priority_score DESC,
			e.created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *Store) ListHolding(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+entryColumns+entryFrom+`
		WHERE e.status = 'holding'
		ORDER BY e.scheduled_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]models.QueueEntry, error) {
	var result []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) SweepLateArrivals(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cutoff := now.Add(-grace)
	rows, err := tx.Query(ctx, `
		UPDATE queue_entries
		SET status = 'holding'
		WHERE origin = 'pre_booked'
		  AND status = 'waiting'
		  AND scheduled_time < $1
		  AND checked_in_at IS NULL
		RETURNING entry_id
	`, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		var entry models.QueueEntry
		entry, err = getEntry(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		if err = insertEvent(ctx, tx, "entry.held", entry); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) CheckIn(ctx context.Context, input store.CheckInInput) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var customerID string
	var age int
	var disabled bool
	row := tx.QueryRow(ctx, `SELECT customer_id, age, is_disabled FROM customers WHERE mobile = $1`, input.Mobile)
	if err = row.Scan(&customerID, &age, &disabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCustomerNotFound
		}
		return models.QueueEntry{}, err
	}

	row = tx.QueryRow(ctx, `SELECT`+entryColumns+entryFrom+`
		WHERE e.customer_id = $1 AND e.status IN ('waiting', 'holding')
		ORDER BY e.created_at ASC
		LIMIT 1
		FOR UPDATE OF e
	`, customerID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoPendingEntry
		}
		return models.QueueEntry{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	waited := occurredAt.Sub(entry.CreatedAt).Minutes()
	if waited < 0 {
		waited = 0
	}
	score := scheduler.Score(entry.ServiceType, age, disabled, waited) + scheduler.ArrivalBoost

	row = tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'checked_in', checked_in_at = $2, priority_score = $3
		WHERE entry_id = $1
		RETURNING entry_id
	`, entry.EntryID, occurredAt, score)
	var updatedID string
	if err = row.Scan(&updatedID); err != nil {
		return models.QueueEntry{}, err
	}

	entry, err = getEntry(ctx, tx, entry.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertEvent(ctx, tx, "entry.checked_in", entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// lockEntry loads the entry row FOR UPDATE so the read-validate-write of a
// transition is serialized per entry.
func lockEntry(ctx context.Context, tx pgx.Tx, entryID string) (models.QueueEntry, error) {
	row := tx.QueryRow(ctx, `SELECT`+entryColumns+`
		FROM queue_entries e
		LEFT JOIN customers c ON c.customer_id = e.customer_id
		WHERE e.entry_id = $1
		FOR UPDATE OF e
	`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, err
}

func (s *Store) Start(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	entry, err := lockEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !store.ValidTransition(store.ActionStart, entry.Status) {
		err = store.ErrInvalidTransition
		return models.QueueEntry{}, err
	}
	if entry.Status == models.StatusWaiting && entry.Origin == models.OriginPreBooked {
		err = store.ErrInvalidTransition
		return models.QueueEntry{}, err
	}

	// Check-and-set on availability, atomic with the binding write.
	var counterNumber int
	row := tx.QueryRow(ctx, `
		UPDATE staff
		SET is_available = FALSE, current_entry_id = $2
		WHERE staff_id = $1 AND is_available = TRUE
		RETURNING counter_number
	`, input.StaffID, input.EntryID)
	if err = row.Scan(&counterNumber); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if lookupErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM staff WHERE staff_id = $1)`, input.StaffID).Scan(&exists); lookupErr != nil {
				err = lookupErr
			} else if exists {
				err = store.ErrStaffBusy
			} else {
				err = store.ErrStaffNotFound
			}
		}
		return models.QueueEntry{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	counter := input.CounterNumber
	if counter <= 0 {
		counter = counterNumber
	}

	if _, err = tx.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'in_progress', started_at = $2, assigned_counter = $3, staff_id = $4
		WHERE entry_id = $1
	`, input.EntryID, occurredAt, counter, input.StaffID); err != nil {
		return models.QueueEntry{}, err
	}

	entry, err = getEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertEvent(ctx, tx, "entry.started", entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) Complete(ctx context.Context, input store.StaffActionInput) (models.QueueEntry, store.CompletionResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	entry, err := lockEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}
	if !store.ValidTransition(store.ActionComplete, entry.Status) {
		err = store.ErrInvalidTransition
		return models.QueueEntry{}, store.CompletionResult{}, err
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

	if _, err = tx.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'completed', ended_at = $2, actual_duration = $3
		WHERE entry_id = $1
	`, input.EntryID, occurredAt, actual); err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}

	staffID := input.StaffID
	if entry.StaffID != nil {
		staffID = *entry.StaffID
	}
	if staffID != "" {
		if _, err = tx.Exec(ctx, `
			UPDATE staff
			SET is_available = TRUE, current_entry_id = NULL
			WHERE staff_id = $1
		`, staffID); err != nil {
			return models.QueueEntry{}, store.CompletionResult{}, err
		}
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO transaction_history (record_id, entry_id, service_type, predicted_duration, actual_duration, wait_time, staff_id, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), entry.EntryID, entry.ServiceType, entry.PredictedDuration, actual, wait, nullIfEmptyUUID(staffID), occurredAt); err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}

	entry, err = getEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}
	if err = insertEvent(ctx, tx, "entry.completed", entry); err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, store.CompletionResult{}, err
	}

	return entry, store.CompletionResult{
		ActualDuration: actual,
		WaitTime:       wait,
		Performance:    performance(entry.PredictedDuration, actual),
	}, nil
}

func performance(predicted, actual float64) string {
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
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	entry, err := lockEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if !store.ValidTransition(store.ActionNoShow, entry.Status) {
		err = store.ErrInvalidTransition
		return models.QueueEntry{}, err
	}

	if _, err = tx.Exec(ctx, `UPDATE queue_entries SET status = 'no_show' WHERE entry_id = $1`, input.EntryID); err != nil {
		return models.QueueEntry{}, err
	}
	if entry.Status == models.StatusInProgress && entry.StaffID != nil {
		if _, err = tx.Exec(ctx, `
			UPDATE staff
			SET is_available = TRUE, current_entry_id = NULL
			WHERE staff_id = $1
		`, *entry.StaffID); err != nil {
			return models.QueueEntry{}, err
		}
	}

	entry, err = getEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertEvent(ctx, tx, "entry.no_show", entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]models.Staff, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT staff_id, name, counter_number, efficiency_score, is_available, current_entry_id
		FROM staff
		ORDER BY counter_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Staff
	for rows.Next() {
		var member models.Staff
		var current sql.NullString
		if err := rows.Scan(&member.StaffID, &member.Name, &member.CounterNumber, &member.Efficiency, &member.IsAvailable, &current); err != nil {
			return nil, err
		}
		if current.Valid {
			value := current.String
			member.CurrentEntryID = &value
		}
		result = append(result, member)
	}
	return result, rows.Err()
}

func (s *Store) NextAvailableCounter(ctx context.Context) (int, bool, error) {
	var counter int
	row := s.pool.QueryRow(ctx, `
		SELECT counter_number FROM staff
		WHERE is_available = TRUE
		ORDER BY counter_number ASC
		LIMIT 1
	`)
	if err := row.Scan(&counter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return counter, true, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]models.TransactionRecord, error) {
	query := `
		SELECT record_id, entry_id, service_type, predicted_duration, actual_duration, wait_time, staff_id, completed_at
		FROM transaction_history
		ORDER BY completed_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.TransactionRecord
	for rows.Next() {
		var record models.TransactionRecord
		var staffID sql.NullString
		if err := rows.Scan(&record.RecordID, &record.EntryID, &record.ServiceType, &record.PredictedDuration, &record.ActualDuration, &record.WaitTime, &staffID, &record.CompletedAt); err != nil {
			return nil, err
		}
		if staffID.Valid {
			record.StaffID = staffID.String
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (s *Store) ListEvents(ctx context.Context, after time.Time, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload, created_at
		FROM outbox_events
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []store.Event
	for rows.Next() {
		var event store.Event
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func insertEvent(ctx context.Context, tx pgx.Tx, eventType string, entry models.QueueEntry) error {
	payload, err := json.Marshal(store.EventPayload{
		EntryID:     entry.EntryID,
		Token:       entry.Token,
		ServiceType: entry.ServiceType,
		Status:      entry.Status,
		Priority:    entry.PriorityScore,
	})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payload, time.Now().UTC())
	return err
}

func nullIfNonPositive(value float64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nullIfEmptyUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
