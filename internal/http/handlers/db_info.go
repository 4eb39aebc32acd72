package handlers

import (
	"database/sql"
	"net/http"
	"os"
	"strings"

	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// DBInfoHandler reports which database the API is talking to, with
// credentials masked, and a few row counts.
type DBInfoHandler struct {
	db        *sql.DB
	dsn       string
	lookupEnv func(string) (string, bool)
	logger    *logging.Logger
}

func NewDBInfoHandler(db *sql.DB, dsn string, logger *logging.Logger) *DBInfoHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DBInfoHandler{db: db, dsn: dsn, lookupEnv: os.LookupEnv, logger: logger}
}

type PatientSample struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type DBInfoResponse struct {
	ConfiguredDSN       string          `json:"configured_dsn"`
	EnvDatabaseURLSet   bool            `json:"env_database_url_present"`
	EnvDatabaseURL      string          `json:"env_database_url,omitempty"`
	UsersTotal          int             `json:"users_total"`
	UsersPatients       int             `json:"users_patients"`
	PatientsTotal       int             `json:"patients_total"`
	PatientsJoinedUsers int             `json:"patients_joined_users"`
	PsychologistsTotal  int             `json:"psychologists_total"`
	AppointmentsTotal   int             `json:"appointments_total"`
	PatientSample       []PatientSample `json:"patient_sample"`
}

var dbInfoCounts = []struct {
	query string
	dst   func(*DBInfoResponse) *int
}{
	{`SELECT COUNT(*) FROM users`, func(r *DBInfoResponse) *int { return &r.UsersTotal }},
	{`SELECT COUNT(*) FROM users WHERE role = 'patient'`, func(r *DBInfoResponse) *int { return &r.UsersPatients }},
	{`SELECT COUNT(*) FROM patients`, func(r *DBInfoResponse) *int { return &r.PatientsTotal }},
	{`SELECT COUNT(*) FROM patients p JOIN users u ON u.id = p.user_id`, func(r *DBInfoResponse) *int { return &r.PatientsJoinedUsers }},
	{`SELECT COUNT(*) FROM psychologists`, func(r *DBInfoResponse) *int { return &r.PsychologistsTotal }},
	{`SELECT COUNT(*) FROM appointments`, func(r *DBInfoResponse) *int { return &r.AppointmentsTotal }},
}

// GetDBInfo returns database diagnostics.
// GET /admin/db-info
func (h *DBInfoHandler) GetDBInfo(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	ctx := r.Context()

	resp := DBInfoResponse{ConfiguredDSN: MaskDSN(h.dsn), PatientSample: []PatientSample{}}
	if v, ok := h.lookupEnv("DATABASE_URL"); ok {
		resp.EnvDatabaseURLSet = true
		resp.EnvDatabaseURL = MaskDSN(v)
	}

	for _, c := range dbInfoCounts {
		if err := h.db.QueryRowContext(ctx, c.query).Scan(c.dst(&resp)); err != nil {
			h.logger.Error("db-info count failed", "query", c.query, "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT p.id, u.full_name, u.email
		FROM patients p JOIN users u ON u.id = p.user_id
		ORDER BY u.full_name, p.id
		LIMIT 10
	`)
	if err != nil {
		h.logger.Error("db-info sample failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer rows.Close()
	for rows.Next() {
		var s PatientSample
		if err := rows.Scan(&s.ID, &s.Name, &s.Email); err != nil {
			h.logger.Error("db-info sample scan failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.PatientSample = append(resp.PatientSample, s)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("db-info sample iterate failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// MaskDSN replaces the credentials of a URL-style DSN with ***:***.
// Values without both "://" and "@" are returned unchanged.
func MaskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return dsn
	}
	return scheme + "://***:***@" + rest[at+1:]
}
