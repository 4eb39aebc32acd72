package compliance

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	audit  *AuditService
	logger *logging.Logger
}

// NewHandler creates an audit HTTP handler.
func NewHandler(audit *AuditService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{audit: audit, logger: logger}
}

// ListEvents returns audit events.
// GET /admin/audit?type=a,b&subject=...&start=RFC3339&end=RFC3339&limit=N
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AuditFilter{SubjectID: strings.TrimSpace(q.Get("subject"))}
	for _, t := range strings.Split(q.Get("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.EventTypes = append(filter.EventTypes, AuditEventType(t))
		}
	}
	if s := q.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, `{"error": "invalid start time, use RFC3339 format"}`, http.StatusBadRequest)
			return
		}
		filter.StartTime = t
	}
	if e := q.Get("end"); e != "" {
		t, err := time.Parse(time.RFC3339, e)
		if err != nil {
			http.Error(w, `{"error": "invalid end time, use RFC3339 format"}`, http.StatusBadRequest)
			return
		}
		filter.EndTime = t
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	events, err := h.audit.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"events": events, "total": len(events)}); err != nil {
		h.logger.Error("failed to encode audit events", "error", err)
	}
}
