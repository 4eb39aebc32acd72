package bookings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/clinic"
	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	"github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/internal/scheduling"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

var now = time.Date(2024, 6, 10, 13, 0, 0, 0, time.UTC)

type env struct {
	repo    *users.InMemoryRepository
	ledger  *appointments.MemoryLedger
	service *Service
	patient *users.Patient
	psy     *users.Psychologist
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	repo := users.NewInMemoryRepository()
	patient, err := repo.CreatePatient(ctx, users.User{FullName: "Carla Dias", Email: "carla@x.com", Active: true})
	require.NoError(t, err)
	psy, err := repo.CreatePsychologist(ctx, users.User{FullName: "Ana Souza", Email: "ana@x.com", Active: true})
	require.NoError(t, err)

	ledger := appointments.NewMemoryLedger(repo)
	templates := scheduling.StaticTemplate{Settings: clinic.DefaultSettings("America/Sao_Paulo", time.Hour)}
	svc := NewService(NewMemoryStore(ledger, repo), templates, scheduling.FixedClock{T: now}, logging.New("error"))
	return &env{repo: repo, ledger: ledger, service: svc, patient: patient, psy: psy}
}

func (e *env) request(at time.Time) Request {
	return Request{PatientID: e.patient.ID, PsychologistID: e.psy.ID, ScheduledAt: at}
}

func TestBookLeadTime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.service.Book(ctx, e.request(now.Add(30*time.Minute)))
	assert.ErrorIs(t, err, ErrInvalidLeadTime)

	_, err = e.service.Book(ctx, e.request(now.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidLeadTime, "exactly now+lead is rejected")

	id, err := e.service.Book(ctx, e.request(now.Add(90*time.Minute)))
	require.NoError(t, err)

	stored, err := e.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusScheduled, stored.Status)
	assert.Equal(t, now.Add(90*time.Minute), stored.ScheduledAt)
}

func TestBookConflictAndReleaseOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	at := now.Add(3 * time.Hour)

	id, err := e.service.Book(ctx, e.request(at))
	require.NoError(t, err)
	_, err = e.service.Book(ctx, e.request(at))
	assert.ErrorIs(t, err, ErrSlotConflict)

	_, err = e.ledger.UpdateStatus(ctx, id, appointments.StatusCancelled, uuid.Nil)
	require.NoError(t, err)
	_, err = e.service.Book(ctx, e.request(at))
	assert.NoError(t, err, "a cancelled appointment frees the slot")
}

func TestBookChecksRunInOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	at := now.Add(3 * time.Hour)
	_, err := e.service.Book(ctx, e.request(at))
	require.NoError(t, err)

	unknown := Request{PatientID: uuid.New(), PsychologistID: e.psy.ID, ScheduledAt: at}
	_, err = e.service.Book(ctx, unknown)
	assert.ErrorIs(t, err, ErrSlotConflict, "conflict is checked before participants")

	unknown.ScheduledAt = now.Add(10 * time.Minute)
	_, err = e.service.Book(ctx, unknown)
	assert.ErrorIs(t, err, ErrInvalidLeadTime, "lead time is checked first")

	unknown.ScheduledAt = now.Add(4 * time.Hour)
	_, err = e.service.Book(ctx, unknown)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookInactiveParticipantIsNotFound(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.repo.SetActive(context.Background(), e.psy.User.ID, false))

	_, err := e.service.Book(context.Background(), e.request(now.Add(3*time.Hour)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	e := newEnv(t)
	at := now.Add(5 * time.Hour)
	const attempts = 32

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.service.Book(context.Background(), e.request(at))
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)

	held, err := e.ledger.ListForPsychologist(context.Background(), e.psy.ID, at, at.Add(time.Second), appointments.ActiveStatuses...)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

type auditSpy struct{ types []compliance.AuditEventType }

func (a *auditSpy) Record(ctx context.Context, eventType compliance.AuditEventType, actorID, subjectID string, details any) error {
	a.types = append(a.types, eventType)
	return nil
}

func TestBookRecordsAudit(t *testing.T) {
	e := newEnv(t)
	spy := &auditSpy{}
	e.service.WithAudit(spy)

	_, err := e.service.Book(context.Background(), e.request(now.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, []compliance.AuditEventType{compliance.EventAppointmentBooked}, spy.types)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	unlockA()
	unlockB()
	assert.Empty(t, k.locks)
}

func asUser(r *http.Request, userID uuid.UUID, role users.Role) *http.Request {
	claims := middleware.Claims{Role: string(role), RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}
	return r.WithContext(middleware.WithClaims(r.Context(), claims))
}

func TestHandlerCreate(t *testing.T) {
	e := newEnv(t)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	h := NewHandler(e.service, e.repo, loc, logging.New("error"))

	post := func(userID uuid.UUID, role users.Role, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Create(rec, asUser(httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(body)), userID, role))
		return rec
	}
	psy := e.psy.ID.String()

	// 13:00 UTC is 10:00 in Sao Paulo; 14:00 local is four hours ahead.
	rec := post(e.patient.User.ID, users.RolePatient, `{"psychologist_id":"`+psy+`","date":"2024-06-10","time":"14:00","notes":"primeira consulta"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id"`)

	rec = post(e.patient.User.ID, users.RolePatient, `{"psychologist_id":"`+psy+`","scheduled_at":"2024-06-10T17:00:00Z"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(e.patient.User.ID, users.RolePatient, `{"psychologist_id":"`+psy+`","scheduled_at":"2024-06-10T13:30:00Z"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(uuid.New(), users.RoleAdmin, `{"psychologist_id":"`+psy+`","patient_id":"`+uuid.NewString()+`","scheduled_at":"2024-06-11T17:00:00Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(uuid.New(), users.RoleAdmin, `{"psychologist_id":"`+psy+`","patient_id":"`+e.patient.ID.String()+`","scheduled_at":"2024-06-11T17:00:00Z"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = post(e.psy.User.ID, users.RolePsychologist, `{"psychologist_id":"`+psy+`","scheduled_at":"2024-06-12T17:00:00Z"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = post(e.patient.User.ID, users.RolePatient, `{"psychologist_id":"`+psy+`","date":"amanhã"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
