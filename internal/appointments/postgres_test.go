package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/natachasiqueira/clinicamentalize/internal/events"
)

var appointmentRowColumns = []string{"id", "patient_id", "psychologist_id", "scheduled_at", "status", "notes", "created_at", "updated_at"}

func newMockLedger(t *testing.T) (*PostgresLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	l := NewPostgresLedgerWithDB(mock)
	l.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return l, mock
}

func TestPostgresListForPsychologist(t *testing.T) {
	l, mock := newMockLedger(t)
	psy := uuid.New()
	from, to := at(10, 0), at(11, 0)
	id := uuid.New()

	mock.ExpectQuery("FROM appointments a").
		WithArgs(psy, from, to, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).
			AddRow(id, uuid.New(), psy, at(10, 12), "scheduled", "", at(1, 0), at(1, 0)))

	list, err := l.ListForPsychologist(context.Background(), psy, from, to, ActiveStatuses...)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id || list[0].Status != StatusScheduled {
		t.Fatalf("unexpected list %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	l, mock := newMockLedger(t)
	id := uuid.New()
	mock.ExpectQuery("FROM appointments a WHERE a.id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	if _, err := l.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUpdateStatusWritesOutboxInTransaction(t *testing.T) {
	l, mock := newMockLedger(t)
	id, patient, psy, actor := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).
			AddRow(id, patient, psy, at(10, 12), "scheduled", "first session", at(1, 0), at(1, 0)))
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs(id, "confirmed", l.now()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), events.AppointmentAggregate(id), events.TypeAppointmentStatusChanged, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	change, err := l.UpdateStatus(context.Background(), id, StatusConfirmed, actor)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if change.From != StatusScheduled || change.Appointment.Status != StatusConfirmed {
		t.Fatalf("unexpected change %+v", change)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateStatusRejectsTerminal(t *testing.T) {
	l, mock := newMockLedger(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(appointmentRowColumns).
			AddRow(id, uuid.New(), uuid.New(), at(10, 12), "cancelled", "", at(1, 0), at(1, 0)))
	mock.ExpectRollback()

	_, err := l.UpdateStatus(context.Background(), id, StatusConfirmed, uuid.Nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSearchPassesFilter(t *testing.T) {
	l, mock := newMockLedger(t)
	id := uuid.New()
	cols := append(append([]string{}, appointmentRowColumns...), "patient_name", "psychologist_name")

	mock.ExpectQuery("JOIN psychologists ps").
		WithArgs("ana", "", "completed", "2024-06-01", nil, "UTC", 50).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(id, uuid.New(), uuid.New(), at(10, 12), "completed", "", at(1, 0), at(1, 0), "Carla Dias", "Ana Souza"))

	rows, err := l.Search(context.Background(), Filter{
		PsychologistName: "ana",
		Status:           StatusCompleted,
		DateFrom:         at(1, 0),
		Limit:            50,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 1 || rows[0].PsychologistName != "Ana Souza" || rows[0].StatusLabel != "Realizado" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestActiveAt(t *testing.T) {
	_, mock := newMockLedger(t)
	psy := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").WithArgs(psy, at(10, 12)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	busy, err := ActiveAt(context.Background(), mock, psy, at(10, 12))
	if err != nil || !busy {
		t.Fatalf("ActiveAt = %v, %v", busy, err)
	}
}

func TestPostgresCount(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := l.Count(context.Background())
	if err != nil || n != 7 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
