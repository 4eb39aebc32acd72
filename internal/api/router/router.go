package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/auth"
	"github.com/natachasiqueira/clinicamentalize/internal/bookings"
	"github.com/natachasiqueira/clinicamentalize/internal/clinic"
	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	"github.com/natachasiqueira/clinicamentalize/internal/http/handlers"
	"github.com/natachasiqueira/clinicamentalize/internal/http/httpx"
	httpmiddleware "github.com/natachasiqueira/clinicamentalize/internal/http/middleware"
	"github.com/natachasiqueira/clinicamentalize/internal/livefeed"
	"github.com/natachasiqueira/clinicamentalize/internal/scheduling"
	"github.com/natachasiqueira/clinicamentalize/internal/stats"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	AuthSecret         string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	MetricsHandler     http.Handler

	AuthHandler         *auth.Handler
	UsersHandler        *users.Handler
	SlotsHandler        *scheduling.Handler
	BookingsHandler     *bookings.Handler
	AppointmentsHandler *appointments.Handler
	ClinicHandler       *clinic.Handler
	StatsHandler        *stats.Handler
	AuditHandler        *compliance.Handler
	DBInfoHandler       *handlers.DBInfoHandler
	LiveFeed            *livefeed.Hub
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.AuthHandler != nil {
			public.Post("/auth/login", cfg.AuthHandler.Login)
		}
		if cfg.UsersHandler != nil {
			public.Post("/auth/register", cfg.UsersHandler.RegisterPatient)
			public.Get("/psychologists", cfg.UsersHandler.PublicPsychologists)
		}
	})

	// Any signed-in user
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.RequireAuth(cfg.AuthSecret))
		if cfg.UsersHandler != nil {
			authed.Get("/me", cfg.UsersHandler.Me)
			authed.Put("/me", cfg.UsersHandler.UpdateProfile)
		}
		if cfg.SlotsHandler != nil {
			authed.Get("/psychologists/{id}/slots", cfg.SlotsHandler.ListSlots)
		}
		if cfg.BookingsHandler != nil {
			authed.With(httpmiddleware.RequireAuth(cfg.AuthSecret, string(users.RolePatient), string(users.RoleAdmin))).
				Post("/appointments", cfg.BookingsHandler.Create)
		}
		if cfg.AppointmentsHandler != nil {
			authed.Patch("/appointments/{id}/status", cfg.AppointmentsHandler.UpdateStatus)
		}
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.RequireAuth(cfg.AuthSecret, string(users.RoleAdmin)))
		if cfg.UsersHandler != nil {
			admin.Get("/patients", cfg.UsersHandler.ListPatients)
			admin.Get("/psychologists", cfg.UsersHandler.ListPsychologists)
			admin.Post("/psychologists", cfg.UsersHandler.RegisterPsychologist)
			admin.Post("/users/{userID}/deactivate", cfg.UsersHandler.Deactivate)
		}
		if cfg.AppointmentsHandler != nil {
			admin.Get("/appointments", cfg.AppointmentsHandler.Search)
		}
		if cfg.ClinicHandler != nil {
			admin.Get("/clinic/settings", cfg.ClinicHandler.GetSettings)
			admin.Put("/clinic/settings", cfg.ClinicHandler.UpdateSettings)
			admin.Get("/psychologists/{id}/hours", cfg.ClinicHandler.GetPsychologistHours)
			admin.Put("/psychologists/{id}/hours", cfg.ClinicHandler.SetPsychologistHours)
		}
		if cfg.StatsHandler != nil {
			admin.Get("/dashboard", cfg.StatsHandler.GetDashboard)
			admin.Post("/dashboard/archive", cfg.StatsHandler.Archive)
		}
		if cfg.AuditHandler != nil {
			admin.Get("/audit", cfg.AuditHandler.ListEvents)
		}
		if cfg.DBInfoHandler != nil {
			admin.Get("/db-info", cfg.DBInfoHandler.GetDBInfo)
		}
		if cfg.LiveFeed != nil {
			admin.Get("/live", cfg.LiveFeed.HandleWebSocket)
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
