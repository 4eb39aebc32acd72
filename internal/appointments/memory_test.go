package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natachasiqueira/clinicamentalize/internal/users"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 6, day, hour, 0, 0, 0, time.UTC)
}

func TestMemoryListForPsychologist(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(nil)
	psy, other := uuid.New(), uuid.New()

	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: at(10, 14)})
	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: at(10, 12)})
	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: at(10, 13), Status: StatusCancelled})
	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: at(11, 12)})
	mustInsert(t, l, Appointment{PsychologistID: other, ScheduledAt: at(10, 12)})

	list, err := l.ListForPsychologist(ctx, psy, at(10, 0), at(11, 0), ActiveStatuses...)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, at(10, 12), list[0].ScheduledAt)
	assert.Equal(t, at(10, 14), list[1].ScheduledAt)

	all, err := l.ListForPsychologist(ctx, psy, at(10, 0), at(11, 0))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// upper bound is exclusive
	edge, err := l.ListForPsychologist(ctx, psy, at(10, 0), at(11, 12))
	require.NoError(t, err)
	assert.Len(t, edge, 3)
}

func TestMemorySnapshotIncludesOldCompleted(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(nil)
	psy := uuid.New()
	old := time.Date(2022, 1, 5, 10, 0, 0, 0, time.UTC)

	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: old, Status: StatusCompleted})
	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: old, Status: StatusCancelled})
	mustInsert(t, l, Appointment{PsychologistID: psy, ScheduledAt: at(3, 10)})

	snap, err := l.Snapshot(ctx, at(1, 0))
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, StatusCompleted, snap[0].Status)
	assert.Equal(t, at(3, 10), snap[1].ScheduledAt)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryUpdateStatus(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(nil)
	id := mustInsert(t, l, Appointment{PsychologistID: uuid.New(), ScheduledAt: at(10, 12)})
	actor := uuid.New()

	change, err := l.UpdateStatus(ctx, id, StatusConfirmed, actor)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, change.From)
	assert.Equal(t, StatusConfirmed, change.Appointment.Status)
	assert.Equal(t, actor, change.ActorID)

	_, err = l.UpdateStatus(ctx, id, StatusCompleted, actor)
	require.NoError(t, err)
	_, err = l.UpdateStatus(ctx, id, StatusCancelled, actor)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = l.UpdateStatus(ctx, uuid.New(), StatusCancelled, actor)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.UpdateStatus(ctx, id, Status("archived"), actor)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestMemorySearchFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := users.NewInMemoryRepository()
	ana, err := repo.CreatePsychologist(ctx, users.User{FullName: "Ana Souza", Email: "ana@x.com", Active: true})
	require.NoError(t, err)
	bruno, err := repo.CreatePsychologist(ctx, users.User{FullName: "Bruno Reis", Email: "bruno@x.com", Active: true})
	require.NoError(t, err)
	carla, err := repo.CreatePatient(ctx, users.User{FullName: "Carla Dias", Email: "carla@x.com", Active: true})
	require.NoError(t, err)

	l := NewMemoryLedger(repo)
	mustInsert(t, l, Appointment{PatientID: carla.ID, PsychologistID: ana.ID, ScheduledAt: at(10, 12)})
	mustInsert(t, l, Appointment{PatientID: carla.ID, PsychologistID: ana.ID, ScheduledAt: at(12, 12), Status: StatusCompleted})
	mustInsert(t, l, Appointment{PatientID: carla.ID, PsychologistID: bruno.ID, ScheduledAt: at(11, 12)})

	rows, err := l.Search(ctx, Filter{PsychologistName: "ana"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, at(12, 12), rows[0].ScheduledAt)
	assert.Equal(t, "Carla Dias", rows[0].PatientName)
	assert.Equal(t, "Realizado", rows[0].StatusLabel)

	rows, err = l.Search(ctx, Filter{Status: StatusScheduled, DateFrom: at(11, 0), DateTo: at(11, 0)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bruno Reis", rows[0].PsychologistName)
}

func TestSearchDateUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	l := NewMemoryLedger(nil)
	// 01:00 UTC on the 11th is 22:00 on the 10th in Sao Paulo.
	mustInsert(t, l, Appointment{PsychologistID: uuid.New(), ScheduledAt: at(11, 1)})

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	rows, err := l.Search(context.Background(), Filter{DateFrom: day, DateTo: day, Location: loc})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = l.Search(context.Background(), Filter{DateFrom: day, DateTo: day})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func mustInsert(t *testing.T, l *MemoryLedger, a Appointment) uuid.UUID {
	t.Helper()
	id, err := l.Insert(context.Background(), a)
	require.NoError(t, err)
	return id
}
