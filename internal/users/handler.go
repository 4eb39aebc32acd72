package users

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Handler serves account endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a users handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

func filterFromQuery(r *http.Request) ListFilter {
	q := r.URL.Query()
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := q.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return ListFilter{
		Name:  pick("name", "nome"),
		Email: pick("email"),
		Phone: pick("phone", "telefone"),
	}
}

// ListPatients handles GET /admin/patients.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.service.Repository().ListPatients(r.Context(), filterFromQuery(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"patients": patients, "total": len(patients)})
}

// ListPsychologists handles GET /admin/psychologists.
func (h *Handler) ListPsychologists(w http.ResponseWriter, r *http.Request) {
	psychologists, err := h.service.Repository().ListPsychologists(r.Context(), filterFromQuery(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"psychologists": psychologists, "total": len(psychologists)})
}

type publicPsychologist struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
}

// PublicPsychologists handles GET /psychologists, the booking picker.
func (h *Handler) PublicPsychologists(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.Repository().ListPsychologists(r.Context(), ListFilter{})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := []publicPsychologist{}
	for _, p := range all {
		if p.User.Active {
			out = append(out, publicPsychologist{ID: p.ID, FullName: p.User.FullName})
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"psychologists": out})
}

// RegisterPsychologist handles POST /admin/psychologists.
func (h *Handler) RegisterPsychologist(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	actorID := actorFromRequest(r)
	p, err := h.service.RegisterPsychologist(r.Context(), actorID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// RegisterPatient handles POST /auth/register.
func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.service.RegisterPatient(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

// Deactivate handles POST /admin/users/{userID}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.service.Deactivate(r.Context(), actorFromRequest(r), userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := actorFromRequest(r)
	if userID == uuid.Nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.service.Repository().GetUser(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

// UpdateProfile handles PUT /me/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := actorFromRequest(r)
	if userID == uuid.Nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ProfileUpdate
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func actorFromRequest(r *http.Request) uuid.UUID {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorMessage(err))
	case errors.Is(err, ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, httpx.ErrorMessage(err))
	case errors.Is(err, ErrMissingField), errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrPasswordTooShort):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorMessage(err))
	default:
		h.logger.Error("users request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
