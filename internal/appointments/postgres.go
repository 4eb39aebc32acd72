package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/natachasiqueira/clinicamentalize/internal/events"
)

// DB is the subset of pgxpool.Pool used by PostgresLedger.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RowQuerier is satisfied by pgxpool.Pool and pgx.Tx.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger implements Ledger over the appointments table.
type PostgresLedger struct {
	db  DB
	now func() time.Time
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresLedger{db: pool, now: time.Now}
}

// NewPostgresLedgerWithDB allows injecting a mock database for testing.
func NewPostgresLedgerWithDB(db DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

const appointmentColumns = `a.id, a.patient_id, a.psychologist_id, a.scheduled_at, a.status, a.notes, a.created_at, a.updated_at`

func (l *PostgresLedger) ListForPsychologist(ctx context.Context, psychologistID uuid.UUID, from, to time.Time, statuses ...Status) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		WHERE a.psychologist_id = $1
		  AND a.scheduled_at >= $2 AND a.scheduled_at < $3
		  AND (cardinality($4::text[]) = 0 OR a.status = ANY($4::text[]))
		ORDER BY a.scheduled_at, a.id
	`
	rows, err := l.db.Query(ctx, query, psychologistID, from.UTC(), to.UTC(), statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("appointments: list for psychologist: %w", err)
	}
	return collect(rows)
}

func (l *PostgresLedger) Snapshot(ctx context.Context, since time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments a
		WHERE a.scheduled_at >= $1 OR a.status = 'completed'
		ORDER BY a.scheduled_at, a.id
	`
	rows, err := l.db.Query(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: snapshot: %w", err)
	}
	return collect(rows)
}

// Count returns the number of appointments of any status.
func (l *PostgresLedger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointments: count: %w", err)
	}
	return n, nil
}

func (l *PostgresLedger) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := l.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

func (l *PostgresLedger) Insert(ctx context.Context, appt Appointment) (uuid.UUID, error) {
	stored, err := InsertWith(ctx, l.db, appt, l.now())
	if err != nil {
		return uuid.Nil, err
	}
	return stored.ID, nil
}

// InsertWith writes appt through q, which may be a transaction. A zero ID or
// status is filled in.
func InsertWith(ctx context.Context, q RowQuerier, appt Appointment, now time.Time) (Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusScheduled
	}
	appt.ScheduledAt = appt.ScheduledAt.UTC()
	appt.CreatedAt = now.UTC()
	appt.UpdatedAt = appt.CreatedAt
	query := `
		INSERT INTO appointments (id, patient_id, psychologist_id, scheduled_at, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`
	if err := q.QueryRow(ctx, query,
		appt.ID, appt.PatientID, appt.PsychologistID, appt.ScheduledAt, string(appt.Status), appt.Notes, appt.CreatedAt,
	).Scan(&appt.ID); err != nil {
		return Appointment{}, fmt.Errorf("appointments: insert: %w", err)
	}
	return appt, nil
}

// ActiveAt reports whether the psychologist has a scheduled or confirmed
// appointment at exactly at.
func ActiveAt(ctx context.Context, q RowQuerier, psychologistID uuid.UUID, at time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE psychologist_id = $1 AND scheduled_at = $2 AND status IN ('scheduled', 'confirmed')
		)
	`
	var exists bool
	if err := q.QueryRow(ctx, query, psychologistID, at.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("appointments: active at: %w", err)
	}
	return exists, nil
}

// UpdateStatus locks the row, validates the transition, persists it and appends
// the status change to the outbox in the same transaction.
func (l *PostgresLedger) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, actorID uuid.UUID) (*StatusChange, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1 FOR UPDATE`, id)
	current, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: load for update: %w", err)
	}
	from := current.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := l.now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE appointments SET status = $2, updated_at = $3 WHERE id = $1`, id, string(to), now); err != nil {
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}
	current.Status = to
	current.UpdatedAt = now

	if _, err := events.Append(ctx, tx, events.AppointmentAggregate(id), statusChangedEvent(*current, from, actorID, now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return &StatusChange{Appointment: *current, From: from, ActorID: actorID}, nil
}

func statusChangedEvent(a Appointment, from Status, actorID uuid.UUID, now time.Time) events.AppointmentStatusChangedV1 {
	evt := events.AppointmentStatusChangedV1{
		AppointmentID:  a.ID.String(),
		PatientID:      a.PatientID.String(),
		PsychologistID: a.PsychologistID.String(),
		ScheduledAt:    a.ScheduledAt,
		From:           string(from),
		To:             string(a.Status),
		OccurredAt:     now,
	}
	if actorID != uuid.Nil {
		evt.ActorID = actorID.String()
	}
	return evt
}

func (l *PostgresLedger) Search(ctx context.Context, filter Filter) ([]Row, error) {
	query := `
		SELECT ` + appointmentColumns + `, pu.full_name, su.full_name
		FROM appointments a
		JOIN patients pa ON pa.id = a.patient_id
		JOIN users pu ON pu.id = pa.user_id
		JOIN psychologists ps ON ps.id = a.psychologist_id
		JOIN users su ON su.id = ps.user_id
		WHERE ($1 = '' OR su.full_name ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR pu.full_name ILIKE '%' || $2 || '%')
		  AND ($3 = '' OR a.status = $3)
		  AND ($4::date IS NULL OR (a.scheduled_at AT TIME ZONE $6)::date >= $4::date)
		  AND ($5::date IS NULL OR (a.scheduled_at AT TIME ZONE $6)::date <= $5::date)
		ORDER BY a.scheduled_at DESC, a.id
		LIMIT $7
	`
	rows, err := l.db.Query(ctx, query,
		filter.PsychologistName, filter.PatientName, string(filter.Status),
		dateArg(filter.DateFrom), dateArg(filter.DateTo), filter.location().String(), filter.limit(),
	)
	if err != nil {
		return nil, fmt.Errorf("appointments: search: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var r Row
		var status string
		if err := rows.Scan(&r.ID, &r.PatientID, &r.PsychologistID, &r.ScheduledAt, &status, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
			&r.PatientName, &r.PsychologistName); err != nil {
			return nil, fmt.Errorf("appointments: scan search row: %w", err)
		}
		r.Status = Status(status)
		r.StatusLabel = r.Status.Label()
		out = append(out, r)
	}
	return out, rows.Err()
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.PatientID, &a.PsychologistID, &a.ScheduledAt, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
