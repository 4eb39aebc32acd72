package clinic

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Handler provides HTTP endpoints for clinic settings management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new clinic settings HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// GetSettings returns the clinic settings.
// GET /admin/clinic/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get clinic settings", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

// UpdateSettingsRequest is the request body for updating settings.
type UpdateSettingsRequest struct {
	Name            string         `json:"name,omitempty"`
	Timezone        string         `json:"timezone,omitempty"`
	SlotMinutes     *int           `json:"slot_minutes,omitempty"`
	LeadTimeMinutes *int           `json:"lead_time_minutes,omitempty"`
	BusinessHours   *BusinessHours `json:"business_hours,omitempty"`
}

// UpdateSettings applies a partial update.
// PUT /admin/clinic/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get clinic settings", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.SlotMinutes != nil {
		cfg.SlotMinutes = *req.SlotMinutes
	}
	if req.LeadTimeMinutes != nil {
		cfg.LeadTimeMinutes = *req.LeadTimeMinutes
	}
	if req.BusinessHours != nil {
		cfg.BusinessHours = *req.BusinessHours
	}

	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.logger.Info("clinic settings updated", "timezone", cfg.Timezone, "slot_minutes", cfg.SlotMinutes)
	httpx.WriteJSON(w, http.StatusOK, cfg)
}

// GetPsychologistHours returns the hours that apply to one psychologist.
// GET /admin/psychologists/{id}/hours
func (h *Handler) GetPsychologistHours(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "invalid psychologist id"}`, http.StatusBadRequest)
		return
	}
	override, err := h.store.GetPsychologistHours(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get psychologist hours", "psychologist_id", id, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	tmpl, err := h.store.Template(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get psychologist template", "psychologist_id", id, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"psychologist_id": id,
		"custom":          override != nil,
		"business_hours":  tmpl.BusinessHours,
	})
}

// SetPsychologistHours stores or clears (JSON null) an override.
// PUT /admin/psychologists/{id}/hours
func (h *Handler) SetPsychologistHours(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "invalid psychologist id"}`, http.StatusBadRequest)
		return
	}
	var hours *BusinessHours
	if err := json.NewDecoder(r.Body).Decode(&hours); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if err := h.store.SetPsychologistHours(r.Context(), id, hours); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.logger.Info("psychologist hours updated", "psychologist_id", id, "cleared", hours == nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidSettings):
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorMessage(err))
	case errors.Is(err, ErrNoStore):
		httpx.WriteError(w, http.StatusServiceUnavailable, "settings store unavailable")
	default:
		h.logger.Error("failed to save clinic settings", "error", err)
		http.Error(w, `{"error": "failed to save settings"}`, http.StatusInternalServerError)
	}
}
