package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natachasiqueira/clinicamentalize/cmd/mainconfig"
	"github.com/natachasiqueira/clinicamentalize/internal/api/router"
	"github.com/natachasiqueira/clinicamentalize/internal/app/bootstrap"
	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/archive"
	"github.com/natachasiqueira/clinicamentalize/internal/auth"
	"github.com/natachasiqueira/clinicamentalize/internal/bookings"
	"github.com/natachasiqueira/clinicamentalize/internal/clinic"
	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	appconfig "github.com/natachasiqueira/clinicamentalize/internal/config"
	"github.com/natachasiqueira/clinicamentalize/internal/events"
	"github.com/natachasiqueira/clinicamentalize/internal/http/handlers"
	"github.com/natachasiqueira/clinicamentalize/internal/livefeed"
	"github.com/natachasiqueira/clinicamentalize/internal/notify"
	"github.com/natachasiqueira/clinicamentalize/internal/observability/metrics"
	"github.com/natachasiqueira/clinicamentalize/internal/scheduling"
	"github.com/natachasiqueira/clinicamentalize/internal/stats"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env not loaded: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicamentalize API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.close()

	go app.deliverer.Start(ctx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

type application struct {
	handler   http.Handler
	deliverer *events.Deliverer
	closers   []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// storage groups the persistence backends. Without DATABASE_URL everything
// runs in memory and no outbox is drained.
type storage struct {
	users    users.Repository
	ledger   appointments.Ledger
	counts   stats.AppointmentSource
	bookings bookings.Store
	outbox   *events.OutboxStore
}

func buildStorage(pool *pgxpool.Pool, logger *logging.Logger) storage {
	if pool == nil {
		logger.Warn("DATABASE_URL not set; using in-memory storage")
		repo := users.NewInMemoryRepository()
		ledger := appointments.NewMemoryLedger(repo)
		return storage{
			users:    repo,
			ledger:   ledger,
			counts:   ledger,
			bookings: bookings.NewMemoryStore(ledger, repo),
		}
	}
	ledger := appointments.NewPostgresLedger(pool)
	return storage{
		users:    users.NewPostgresRepository(pool),
		ledger:   ledger,
		counts:   ledger,
		bookings: bookings.NewPostgresStore(pool),
		outbox:   events.NewOutboxStore(pool),
	}
}

func setupMetrics() (http.Handler, *prometheus.Registry, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg, m
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
	}
	sqlDB, err := bootstrap.BuildSQLDB(cfg.DatabaseURL)
	if err != nil {
		app.close()
		return nil, err
	}
	if sqlDB != nil {
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	metricsHandler, registry, schedulingMetrics := setupMetrics()
	store := buildStorage(pool, logger)
	clinicStore := bootstrap.BuildClinicStore(redisClient, cfg)
	loc := clinic.DefaultSettings(cfg.Timezone, cfg.BookingLeadTime).Location()
	clock := scheduling.SystemClock{}

	var audit compliance.Recorder
	var auditHandler *compliance.Handler
	if sqlDB != nil {
		auditService := compliance.NewAuditService(sqlDB)
		audit = auditService
		auditHandler = compliance.NewHandler(auditService, logger)
	}

	userService := users.NewService(store.users, audit, logger)
	if created, err := userService.EnsureAdmin(ctx, cfg.DefaultAdminEmail, cfg.DefaultAdminName, cfg.DefaultAdminPassword); err != nil {
		logger.Error("failed to seed admin", "error", err)
	} else if created {
		logger.Info("seeded default admin", "email", cfg.DefaultAdminEmail)
	}

	engine := scheduling.NewEngine(store.ledger, clinicStore).WithMetrics(schedulingMetrics)
	bookingService := bookings.NewService(store.bookings, clinicStore, clock, logger).
		WithAudit(audit).
		WithMetrics(schedulingMetrics)
	appointmentService := appointments.NewService(store.ledger, store.users, audit, logger).
		WithMetrics(schedulingMetrics)

	statsOpts := stats.DefaultOptions()
	statsOpts.Window = cfg.StatsWindow()
	statsOpts.CaseloadWindow = cfg.CaseloadWindow()
	statsService := stats.NewService(stats.NewLoader(store.counts, store.users), clock, statsOpts, logger).
		WithMetrics(schedulingMetrics)

	s3Client, ses := buildAWSClients(ctx, cfg, logger)
	var archiver stats.Archiver
	if s3Client != nil {
		archiver = archive.NewStore(s3Client, cfg.ReportsBucket, logger)
	}

	emailSender, provider, reason := bootstrap.BuildEmailSender(cfg, ses, logger)
	logger.Info("email provider selected", "provider", provider, "reason", reason)

	notifier := notify.NewAppointmentNotifier(emailSender, store.users, clinicStore, logger)
	if redisClient != nil {
		notifier.WithClaims(notify.NewRedisClaims(redisClient, notify.DefaultClaimTTL))
	}
	// only the notifier holds an entry back; the live feed and the stream
	// are fire and forget
	hub := livefeed.NewHub(logger)
	fanout := events.Fanout{notifier, events.BestEffort("livefeed", hub, logger)}
	if redisClient != nil {
		fanout = append(fanout, events.BestEffort("redis_stream", events.NewRedisStreamHandler(redisClient, events.DefaultStream), logger))
	}
	app.deliverer = events.NewDeliverer(store.outbox, fanout, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval)

	var dbInfo *handlers.DBInfoHandler
	if sqlDB != nil {
		dbInfo = handlers.NewDBInfoHandler(sqlDB, cfg.DatabaseURL, logger)
	}

	app.handler = router.New(&router.Config{
		Logger:              logger,
		AuthSecret:          cfg.JWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		MetricsHandler:      metricsHandler,
		AuthHandler:         auth.NewHandler(userService, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), logger),
		UsersHandler:        users.NewHandler(userService, logger),
		SlotsHandler:        scheduling.NewHandler(engine, store.users, clock, logger),
		BookingsHandler:     bookings.NewHandler(bookingService, store.users, loc, logger),
		AppointmentsHandler: appointments.NewHandler(appointmentService, loc, logger),
		ClinicHandler:       clinic.NewHandler(clinicStore, logger),
		StatsHandler:        stats.NewHandler(statsService, archiver, registry, logger),
		AuditHandler:        auditHandler,
		DBInfoHandler:       dbInfo,
		LiveFeed:            hub,
	})
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Warn("JWT_SECRET not set; authenticated routes will reject every request")
	}
	return app, nil
}

// buildAWSClients returns the S3 archive client when a bucket is configured
// and the SES client when SES delivery is selected. Either may be nil.
func buildAWSClients(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (archive.S3API, notify.SESAPI) {
	wantS3 := strings.TrimSpace(cfg.ReportsBucket) != ""
	wantSES := cfg.EmailProvider == "ses"
	if !wantS3 && !wantSES {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		return nil, nil
	}
	var s3Client archive.S3API
	if wantS3 {
		s3Client = mainconfig.NewS3Client(awsCfg, cfg)
	}
	var ses notify.SESAPI
	if wantSES {
		ses = mainconfig.NewSESClient(awsCfg)
	}
	return s3Client, ses
}
