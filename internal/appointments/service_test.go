package appointments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	"github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

type auditCall struct {
	eventType compliance.AuditEventType
	subjectID string
}

type captureAudit struct{ calls []auditCall }

func (c *captureAudit) Record(ctx context.Context, eventType compliance.AuditEventType, actorID, subjectID string, details any) error {
	c.calls = append(c.calls, auditCall{eventType: eventType, subjectID: subjectID})
	return nil
}

type fixture struct {
	repo    *users.InMemoryRepository
	ledger  *MemoryLedger
	service *Service
	audit   *captureAudit
	patient *users.Patient
	psy     *users.Psychologist
	apptID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := users.NewInMemoryRepository()
	patient, err := repo.CreatePatient(ctx, users.User{FullName: "Carla Dias", Email: "carla@x.com", Active: true})
	require.NoError(t, err)
	psy, err := repo.CreatePsychologist(ctx, users.User{FullName: "Ana Souza", Email: "ana@x.com", Active: true})
	require.NoError(t, err)

	ledger := NewMemoryLedger(repo)
	id, err := ledger.Insert(ctx, Appointment{PatientID: patient.ID, PsychologistID: psy.ID, ScheduledAt: at(10, 12)})
	require.NoError(t, err)

	audit := &captureAudit{}
	return &fixture{
		repo:    repo,
		ledger:  ledger,
		service: NewService(ledger, repo, audit, logging.New("error")),
		audit:   audit,
		patient: patient,
		psy:     psy,
		apptID:  id,
	}
}

func TestChangeStatusOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stranger, err := f.repo.CreatePatient(ctx, users.User{FullName: "Outro", Email: "o@x.com", Active: true})
	require.NoError(t, err)
	_, err = f.service.ChangeStatus(ctx, Actor{UserID: stranger.User.ID, Role: users.RolePatient}, f.apptID, StatusCancelled)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.ChangeStatus(ctx, Actor{UserID: f.patient.User.ID, Role: users.RolePatient}, f.apptID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrForbidden)

	change, err := f.service.ChangeStatus(ctx, Actor{UserID: f.psy.User.ID, Role: users.RolePsychologist}, f.apptID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, change.Appointment.Status)

	change, err = f.service.ChangeStatus(ctx, Actor{UserID: f.patient.User.ID, Role: users.RolePatient}, f.apptID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, change.From)

	require.Len(t, f.audit.calls, 2)
	assert.Equal(t, compliance.EventAppointmentStatusChanged, f.audit.calls[0].eventType)
	assert.Equal(t, f.apptID.String(), f.audit.calls[0].subjectID)

	_, err = f.service.ChangeStatus(ctx, Actor{UserID: uuid.New(), Role: users.RoleAdmin}, f.apptID, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func requestAs(r *http.Request, userID uuid.UUID, role users.Role) *http.Request {
	claims := middleware.Claims{Role: string(role), RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()}}
	return r.WithContext(middleware.WithClaims(r.Context(), claims))
}

func TestHandlerUpdateStatus(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service, nil, logging.New("error"))
	router := chi.NewRouter()
	router.Patch("/appointments/{id}/status", h.UpdateStatus)

	send := func(userID uuid.UUID, role users.Role, id string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/appointments/"+id+"/status", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, requestAs(req, userID, role))
		return rec
	}

	rec := send(f.patient.User.ID, users.RolePatient, f.apptID.String(), `{"status":"completed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = send(f.psy.User.ID, users.RolePsychologist, f.apptID.String(), `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(f.psy.User.ID, users.RolePsychologist, uuid.NewString(), `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(f.psy.User.ID, users.RolePsychologist, f.apptID.String(), `{"status":"no_show"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"no_show"`)

	rec = send(uuid.New(), users.RoleAdmin, f.apptID.String(), `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerSearch(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service, nil, logging.New("error"))

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/admin/appointments?psicologo_nome=ana&data_inicio=2024-06-10&data_fim=2024-06-10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
	assert.Contains(t, rec.Body.String(), `"patient_name":"Carla Dias"`)

	rec = httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/admin/appointments?data_inicio=10/06/2024", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/admin/appointments?status=pending", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
