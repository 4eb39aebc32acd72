package appointments

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Handler serves appointment listing and status endpoints.
type Handler struct {
	service *Service
	loc     *time.Location
	logger  *logging.Logger
}

func NewHandler(service *Service, loc *time.Location, logger *logging.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, loc: loc, logger: logger}
}

func firstQuery(r *http.Request, keys ...string) string {
	q := r.URL.Query()
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// Search handles GET /admin/appointments.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		PsychologistName: firstQuery(r, "psychologist", "psicologo_nome"),
		PatientName:      firstQuery(r, "patient", "paciente_nome"),
		Location:         h.loc,
	}
	if raw := firstQuery(r, "status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = st
	}
	for _, bound := range []struct {
		dst  *time.Time
		keys []string
	}{
		{&filter.DateFrom, []string{"date_from", "data_inicio"}},
		{&filter.DateTo, []string{"date_to", "data_fim"}},
	} {
		raw := firstQuery(r, bound.keys...)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
			return
		}
		*bound.dst = t
	}
	if raw := firstQuery(r, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	rows, err := h.service.Ledger().Search(r.Context(), filter)
	if err != nil {
		h.logger.Error("appointment search failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": rows, "total": len(rows)})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /appointments/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	role, err := users.ParseRole(claims.Role)
	if err != nil {
		httpx.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid status")
		return
	}

	change, err := h.service.ChangeStatus(r.Context(), Actor{UserID: userID, Role: role}, id, to)
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, httpx.ErrorMessage(err))
	case errors.Is(err, ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorMessage(err))
	case err != nil:
		h.logger.Error("status change failed", "appointment_id", id, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	default:
		httpx.WriteJSON(w, http.StatusOK, change.Appointment)
	}
}
