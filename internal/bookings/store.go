package bookings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/events"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
)

// Store runs the conflict check, the participant check and the insert as one
// unit serialized per (psychologist, instant).
type Store interface {
	Book(ctx context.Context, appt appointments.Appointment) (appointments.Appointment, error)
}

// ActiveSlotIndex is the partial unique index guarding active slots.
const ActiveSlotIndex = "appointments_active_slot_idx"

func slotKey(psychologistID uuid.UUID, at time.Time) string {
	return psychologistID.String() + "|" + at.UTC().Format(time.RFC3339Nano)
}

// TxBeginner is satisfied by pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore books inside one transaction holding an advisory lock on the slot.
type PostgresStore struct {
	db  TxBeginner
	now func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresStore{db: pool, now: time.Now}
}

// NewPostgresStoreWithDB allows injecting a mock database for testing.
func NewPostgresStoreWithDB(db TxBeginner) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Book(ctx context.Context, appt appointments.Appointment) (appointments.Appointment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return appointments.Appointment{}, fmt.Errorf("bookings: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, slotKey(appt.PsychologistID, appt.ScheduledAt)); err != nil {
		return appointments.Appointment{}, fmt.Errorf("bookings: lock slot: %w", err)
	}

	busy, err := appointments.ActiveAt(ctx, tx, appt.PsychologistID, appt.ScheduledAt)
	if err != nil {
		return appointments.Appointment{}, err
	}
	if busy {
		return appointments.Appointment{}, ErrSlotConflict
	}

	var patientOK, psychologistOK bool
	err = tx.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM patients p JOIN users u ON u.id = p.user_id WHERE p.id = $1 AND u.active),
			EXISTS (SELECT 1 FROM psychologists p JOIN users u ON u.id = p.user_id WHERE p.id = $2 AND u.active)
	`, appt.PatientID, appt.PsychologistID).Scan(&patientOK, &psychologistOK)
	if err != nil {
		return appointments.Appointment{}, fmt.Errorf("bookings: check participants: %w", err)
	}
	if !patientOK {
		return appointments.Appointment{}, fmt.Errorf("%w: patient %s", ErrNotFound, appt.PatientID)
	}
	if !psychologistOK {
		return appointments.Appointment{}, fmt.Errorf("%w: psychologist %s", ErrNotFound, appt.PsychologistID)
	}

	now := s.now().UTC()
	stored, err := appointments.InsertWith(ctx, tx, appt, now)
	if err != nil {
		return appointments.Appointment{}, mapGuardViolation(err)
	}
	if _, err := events.Append(ctx, tx, events.AppointmentAggregate(stored.ID), scheduledEvent(stored, now)); err != nil {
		return appointments.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return appointments.Appointment{}, mapGuardViolation(fmt.Errorf("bookings: commit: %w", err))
	}
	return stored, nil
}

// mapGuardViolation turns a unique violation of the active-slot index into
// ErrSlotConflict and leaves every other error as is.
func mapGuardViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == ActiveSlotIndex {
		return ErrSlotConflict
	}
	return err
}

func scheduledEvent(a appointments.Appointment, now time.Time) events.AppointmentScheduledV1 {
	return events.AppointmentScheduledV1{
		AppointmentID:  a.ID.String(),
		PatientID:      a.PatientID.String(),
		PsychologistID: a.PsychologistID.String(),
		ScheduledAt:    a.ScheduledAt,
		Notes:          a.Notes,
		OccurredAt:     now,
	}
}

// MemoryStore books against an in-memory ledger with a mutex per slot.
type MemoryStore struct {
	ledger appointments.Ledger
	dir    users.Directory
	locks  keyedMutex
}

func NewMemoryStore(ledger appointments.Ledger, dir users.Directory) *MemoryStore {
	if ledger == nil || dir == nil {
		panic("bookings: ledger and directory required")
	}
	return &MemoryStore{ledger: ledger, dir: dir}
}

func (s *MemoryStore) Book(ctx context.Context, appt appointments.Appointment) (appointments.Appointment, error) {
	unlock := s.locks.Lock(slotKey(appt.PsychologistID, appt.ScheduledAt))
	defer unlock()

	at := appt.ScheduledAt.UTC()
	existing, err := s.ledger.ListForPsychologist(ctx, appt.PsychologistID, at, at.Add(time.Nanosecond), appointments.ActiveStatuses...)
	if err != nil {
		return appointments.Appointment{}, err
	}
	if len(existing) > 0 {
		return appointments.Appointment{}, ErrSlotConflict
	}

	patient, err := s.dir.GetPatient(ctx, appt.PatientID)
	if err := participantErr(err, patient != nil && patient.User.Active, "patient", appt.PatientID); err != nil {
		return appointments.Appointment{}, err
	}
	psy, err := s.dir.GetPsychologist(ctx, appt.PsychologistID)
	if err := participantErr(err, psy != nil && psy.User.Active, "psychologist", appt.PsychologistID); err != nil {
		return appointments.Appointment{}, err
	}

	appt.ScheduledAt = at
	id, err := s.ledger.Insert(ctx, appt)
	if err != nil {
		return appointments.Appointment{}, err
	}
	stored, err := s.ledger.Get(ctx, id)
	if err != nil {
		return appointments.Appointment{}, err
	}
	return *stored, nil
}

func participantErr(err error, active bool, kind string, id uuid.UUID) error {
	switch {
	case errors.Is(err, users.ErrNotFound):
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	case err != nil:
		return err
	case !active:
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	default:
		return nil
	}
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
