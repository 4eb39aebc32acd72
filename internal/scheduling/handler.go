package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Handler serves GET /psychologists/{id}/slots.
type Handler struct {
	engine *Engine
	dir    users.Directory
	clock  Clock
	logger *logging.Logger
}

func NewHandler(engine *Engine, dir users.Directory, clock Clock, logger *logging.Logger) *Handler {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, dir: dir, clock: clock, logger: logger}
}

type slotsResponse struct {
	PsychologistID uuid.UUID `json:"psychologist_id"`
	Date           string    `json:"date"`
	Timezone       string    `json:"timezone"`
	Slots          []string  `json:"slots"`
	Instants       []string  `json:"instants"`
}

// ListSlots returns the free slots of one day as local HH:MM plus UTC instants.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid psychologist id")
		return
	}
	date, err := ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if h.dir != nil {
		p, err := h.dir.GetPsychologist(r.Context(), id)
		switch {
		case errors.Is(err, users.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "psychologist not found")
			return
		case err != nil:
			h.logger.Error("psychologist lookup failed", "psychologist_id", id, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		case !p.User.Active:
			httpx.WriteError(w, http.StatusNotFound, "psychologist not found")
			return
		}
	}

	slots, err := h.engine.Available(r.Context(), id, date, h.clock.Now())
	if err != nil {
		h.logger.Error("availability query failed", "psychologist_id", id, "date", date.String(), "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	loc := slots.Location()
	resp := slotsResponse{
		PsychologistID: id,
		Date:           date.String(),
		Timezone:       loc.String(),
		Slots:          []string{},
		Instants:       []string{},
	}
	for s := range slots.All() {
		resp.Slots = append(resp.Slots, s.In(loc).Format("15:04"))
		resp.Instants = append(resp.Instants, s.UTC().Format(time.RFC3339))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
