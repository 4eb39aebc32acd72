package stats

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func june(day int) time.Time {
	return time.Date(2024, 6, day, 10, 0, 0, 0, time.UTC)
}

func appt(psy, patient uuid.UUID, at time.Time, status appointments.Status) appointments.Appointment {
	return appointments.Appointment{ID: uuid.New(), PsychologistID: psy, PatientID: patient, ScheduledAt: at, Status: status}
}

func TestComputeRetentionAndNoShow(t *testing.T) {
	psy := uuid.New()
	patients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	var list []appointments.Appointment
	// two returning patients and three single visits: 2/5
	list = append(list,
		appt(psy, patients[0], june(1), appointments.StatusCompleted),
		appt(psy, patients[0], june(8), appointments.StatusConfirmed),
		appt(psy, patients[1], june(2), appointments.StatusCompleted),
		appt(psy, patients[1], june(9), appointments.StatusCompleted),
		appt(psy, patients[2], june(3), appointments.StatusCompleted),
		appt(psy, patients[3], june(4), appointments.StatusConfirmed),
		appt(psy, patients[4], june(5), appointments.StatusCompleted),
	)
	for i := 0; i < 3; i++ {
		list = append(list, appt(psy, patients[i], june(10+i), appointments.StatusNoShow))
	}
	for i := 0; i < 10; i++ {
		list = append(list, appt(psy, patients[i%5], june(1+i), appointments.StatusCancelled))
	}

	report := Compute(Snapshot{Appointments: list, Psychologists: []Person{{ID: psy, Name: "Ana Souza"}}}, now, DefaultOptions())

	require.Len(t, report.MonthlyAppointments, 1)
	assert.Equal(t, MonthCount{Month: "2024-06", Label: "Jun", Total: 20}, report.MonthlyAppointments[0])
	require.Len(t, report.Retention, 1)
	assert.Equal(t, 40.0, report.Retention[0].Rate)
	require.Len(t, report.NoShow, 1)
	assert.Equal(t, MonthRate{Month: "2024-06", Label: "06/24", Rate: 15.0}, report.NoShow[0])
}

func TestComputeRetentionZeroWhenNobodyAttended(t *testing.T) {
	psy := uuid.New()
	list := []appointments.Appointment{
		appt(psy, uuid.New(), june(3), appointments.StatusCancelled),
		appt(psy, uuid.New(), june(4), appointments.StatusNoShow),
	}
	report := Compute(Snapshot{Appointments: list}, now, Options{})

	require.Len(t, report.Retention, 1)
	assert.Equal(t, 0.0, report.Retention[0].Rate)
	assert.Equal(t, 50.0, report.NoShow[0].Rate)
}

func TestComputeSessionFrequencyBands(t *testing.T) {
	psy := uuid.New()
	counts := map[uuid.UUID]int{uuid.New(): 5, uuid.New(): 6, uuid.New(): 10, uuid.New(): 11, uuid.New(): 15, uuid.New(): 16, uuid.New(): 40}

	var list []appointments.Appointment
	old := time.Date(2020, 3, 1, 9, 0, 0, 0, time.UTC)
	for patient, n := range counts {
		for i := 0; i < n; i++ {
			list = append(list, appt(psy, patient, old.AddDate(0, 0, i), appointments.StatusCompleted))
		}
		// never counted as sessions
		list = append(list, appt(psy, patient, old, appointments.StatusNoShow))
	}

	report := Compute(Snapshot{Appointments: list}, now, DefaultOptions())
	assert.Equal(t, []Band{
		{Band: "1-5", Patients: 1},
		{Band: "6-10", Patients: 2},
		{Band: "11-15", Patients: 2},
		{Band: "16+", Patients: 2},
	}, report.SessionFrequency)
	assert.Empty(t, report.MonthlyAppointments, "appointments outside the window are not counted per month")
}

func TestComputeOccupancyAndCaseload(t *testing.T) {
	ana, bruno, carla := uuid.New(), uuid.New(), uuid.New()
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()

	var list []appointments.Appointment
	for i := 0; i < 96; i++ {
		list = append(list, appt(ana, p1, now.Add(-time.Duration(i+1)*time.Hour), appointments.StatusCompleted))
	}
	list = append(list,
		appt(bruno, p1, now.Add(-24*time.Hour), appointments.StatusScheduled),
		appt(bruno, p2, now.Add(-48*time.Hour), appointments.StatusConfirmed),
		appt(bruno, p3, now.Add(-72*time.Hour), appointments.StatusCancelled),
		appt(bruno, p3, now.Add(-91*day), appointments.StatusCompleted),
		appt(bruno, p2, now.Add(time.Hour), appointments.StatusScheduled),
	)

	people := []Person{{ID: bruno, Name: "Bruno Lima"}, {ID: carla, Name: "Carla Dias"}, {ID: ana, Name: "Ana Souza"}}
	report := Compute(Snapshot{Appointments: list, Psychologists: people}, now, DefaultOptions())

	require.Len(t, report.Occupancy, 3)
	assert.Equal(t, "Ana", report.Occupancy[0].FirstName)
	assert.Equal(t, 10.0, report.Occupancy[0].Rate)
	assert.Equal(t, "Bruno Lima", report.Occupancy[1].Name)
	// four in window (the future one is excluded): 4/960
	assert.Equal(t, 0.4, report.Occupancy[1].Rate)
	assert.Equal(t, 0.0, report.Occupancy[2].Rate)

	require.Len(t, report.ActiveCaseload, 3)
	assert.Equal(t, 1, report.ActiveCaseload[0].Patients)
	assert.Equal(t, 2, report.ActiveCaseload[1].Patients, "cancelled and older than 90 days are not active")
	assert.Equal(t, 0, report.ActiveCaseload[2].Patients)
}

func TestComputeWindowBoundsAreInclusive(t *testing.T) {
	psy := uuid.New()
	opts := DefaultOptions()
	list := []appointments.Appointment{
		appt(psy, uuid.New(), now.Add(-opts.Window), appointments.StatusScheduled),
		appt(psy, uuid.New(), now, appointments.StatusScheduled),
		appt(psy, uuid.New(), now.Add(-opts.Window-time.Second), appointments.StatusScheduled),
		appt(psy, uuid.New(), now.Add(time.Second), appointments.StatusScheduled),
	}
	report := Compute(Snapshot{Appointments: list}, now, opts)

	total := 0
	for _, m := range report.MonthlyAppointments {
		total += m.Total
	}
	assert.Equal(t, 2, total)
	assert.Equal(t, "2023-12", report.MonthlyAppointments[0].Month)
	assert.Equal(t, "Dez", report.MonthlyAppointments[0].Label)
	assert.Equal(t, now.Add(-opts.Window), report.WindowStart)
}

func TestComputeEmptySnapshot(t *testing.T) {
	psy := uuid.New()
	report := Compute(Snapshot{Psychologists: []Person{{ID: psy, Name: "Ana"}}}, now, Options{})

	assert.Empty(t, report.MonthlyAppointments)
	assert.Empty(t, report.Retention)
	assert.Empty(t, report.NoShow)
	assert.Len(t, report.SessionFrequency, 4)
	require.Len(t, report.Occupancy, 1)
	assert.Equal(t, 0.0, report.Occupancy[0].Rate)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"monthly_appointments":[]`)
}

func TestComputeIsDeterministic(t *testing.T) {
	psyA, psyB := uuid.New(), uuid.New()
	var list []appointments.Appointment
	statuses := appointments.AllStatuses
	for i := 0; i < 60; i++ {
		psy := psyA
		if i%3 == 0 {
			psy = psyB
		}
		list = append(list, appt(psy, uuid.New(), now.AddDate(0, 0, -i*3), statuses[i%len(statuses)]))
	}
	// same name: the ID breaks the tie
	people := []Person{{ID: psyA, Name: "Ana"}, {ID: psyB, Name: "Ana"}}

	first, err := json.Marshal(Compute(Snapshot{Appointments: list, Psychologists: people}, now, DefaultOptions()))
	require.NoError(t, err)

	reversed := slices.Clone(list)
	slices.Reverse(reversed)
	second, err := json.Marshal(Compute(Snapshot{Appointments: reversed, Psychologists: []Person{people[1], people[0]}}, now, DefaultOptions()))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestPercentAndLabels(t *testing.T) {
	assert.Equal(t, 0.0, percent(3, 0))
	assert.Equal(t, 33.3, percent(1, 3))
	assert.Equal(t, 66.7, percent(2, 3))
	assert.Equal(t, "Jan", monthLabel("2025-01"))
	assert.Equal(t, "12/23", shortMonth("2023-12"))
	assert.Equal(t, "", firstName("   "))
}
