package bookings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// PatientResolver maps the caller to their patient record.
type PatientResolver interface {
	PatientForUser(ctx context.Context, userID uuid.UUID) (*users.Patient, error)
}

// Handler serves POST /appointments.
type Handler struct {
	service  *Service
	patients PatientResolver
	loc      *time.Location
	logger   *logging.Logger
}

func NewHandler(service *Service, patients PatientResolver, loc *time.Location, logger *logging.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, patients: patients, loc: loc, logger: logger}
}

// bookRequest accepts either an RFC3339 instant or a local date and time.
type bookRequest struct {
	PsychologistID string `json:"psychologist_id"`
	PatientID      string `json:"patient_id,omitempty"`
	ScheduledAt    string `json:"scheduled_at,omitempty"`
	Date           string `json:"date,omitempty"`
	Time           string `json:"time,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

func (r bookRequest) instant(loc *time.Location) (time.Time, error) {
	if r.ScheduledAt != "" {
		return time.Parse(time.RFC3339, r.ScheduledAt)
	}
	return time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(r.Date)+" "+strings.TrimSpace(r.Time), loc)
}

// Create books an appointment. Patients book for themselves; admins name the patient.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	actorID, err := claims.UserID()
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	psychologistID, err := uuid.Parse(req.PsychologistID)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid psychologist_id")
		return
	}
	at, err := req.instant(h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "scheduled_at must be RFC3339 or date YYYY-MM-DD with time HH:MM")
		return
	}

	var patientID uuid.UUID
	switch users.Role(claims.Role) {
	case users.RolePatient:
		p, err := h.patients.PatientForUser(r.Context(), actorID)
		if err != nil {
			httpx.WriteError(w, http.StatusNotFound, "patient not found")
			return
		}
		patientID = p.ID
	case users.RoleAdmin:
		patientID, err = uuid.Parse(req.PatientID)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid patient_id")
			return
		}
	default:
		httpx.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}

	id, err := h.service.Book(r.Context(), Request{
		PatientID:      patientID,
		PsychologistID: psychologistID,
		ScheduledAt:    at,
		Notes:          strings.TrimSpace(req.Notes),
		ActorID:        actorID,
	})
	switch {
	case errors.Is(err, ErrInvalidLeadTime):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorMessage(ErrInvalidLeadTime))
	case errors.Is(err, ErrSlotConflict):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorMessage(ErrSlotConflict))
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorMessage(ErrNotFound))
	case err != nil:
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	default:
		httpx.WriteJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
	}
}
