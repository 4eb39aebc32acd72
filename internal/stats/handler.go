package stats

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Archiver stores a rendered report and returns its object key.
type Archiver interface {
	ArchiveReport(ctx context.Context, kind string, generatedAt time.Time, payload any) (string, error)
}

type dashboardResponse struct {
	Report
	Operations Operations `json:"operations"`
}

type Handler struct {
	service  *Service
	archiver Archiver
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// NewHandler wires the dashboard endpoints. archiver may be nil, which disables
// POST /admin/dashboard/archive.
func NewHandler(service *Service, archiver Archiver, gatherer prometheus.Gatherer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{service: service, archiver: archiver, gatherer: gatherer, logger: logger}
}

// GetDashboard returns the dashboard report.
// GET /admin/dashboard
// Query params:
//   - at: RFC3339 reference time (optional, defaults to now)
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dashboardResponse{Report: report, Operations: SnapshotOperations(h.gatherer)})
}

// Archive uploads the current report.
// POST /admin/dashboard/archive
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	key, err := h.archiver.ArchiveReport(r.Context(), "dashboard", report.GeneratedAt, report)
	if err != nil {
		h.logger.Error("failed to archive dashboard", "error", err)
		httpx.WriteError(w, http.StatusBadGateway, "archive failed")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) (Report, bool) {
	var (
		report Report
		err    error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		at, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid at, use RFC3339 format")
			return Report{}, false
		}
		report, err = h.service.At(r.Context(), at)
	} else {
		report, err = h.service.Dashboard(r.Context())
	}
	if err != nil {
		h.logger.Error("failed to compute dashboard", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return Report{}, false
	}
	return report, true
}
