package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/compliance"
	"github.com/natachasiqueira/clinicamentalize/internal/observability/metrics"
	"github.com/natachasiqueira/clinicamentalize/internal/scheduling"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinicamentalize.internal.bookings")

// Request is a booking attempt.
type Request struct {
	PatientID      uuid.UUID
	PsychologistID uuid.UUID
	ScheduledAt    time.Time
	Notes          string
	ActorID        uuid.UUID
}

// Service validates and commits new appointments.
type Service struct {
	store     Store
	templates scheduling.TemplateSource
	clock     scheduling.Clock
	audit     compliance.Recorder
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
}

// NewService constructs a bookings service. templates supplies the lead time.
func NewService(store Store, templates scheduling.TemplateSource, clock scheduling.Clock, logger *logging.Logger) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if templates == nil {
		templates = scheduling.StaticTemplate{}
	}
	if clock == nil {
		clock = scheduling.SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, templates: templates, clock: clock, logger: logger}
}

func (s *Service) WithAudit(audit compliance.Recorder) *Service {
	s.audit = audit
	return s
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// Book checks, in order, the lead time, the slot and the participants, then
// inserts the appointment as scheduled and returns its ID.
func (s *Service) Book(ctx context.Context, req Request) (uuid.UUID, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.patient_id", req.PatientID.String()),
		attribute.String("clinic.psychologist_id", req.PsychologistID.String()),
		attribute.String("clinic.scheduled_at", req.ScheduledAt.UTC().Format(time.RFC3339)),
	)

	id, err := s.book(ctx, req)
	s.metrics.ObserveBooking(outcome(err))
	if err != nil {
		span.RecordError(err)
		if outcome(err) == metrics.OutcomeError {
			s.logger.Error("booking failed", "patient_id", req.PatientID, "psychologist_id", req.PsychologistID, "error", err)
		} else {
			s.logger.Info("booking rejected", "patient_id", req.PatientID, "psychologist_id", req.PsychologistID, "reason", outcome(err))
		}
		return uuid.Nil, err
	}
	s.logger.Info("appointment booked", "appointment_id", id, "patient_id", req.PatientID,
		"psychologist_id", req.PsychologistID, "scheduled_at", req.ScheduledAt.UTC())
	return id, nil
}

func (s *Service) book(ctx context.Context, req Request) (uuid.UUID, error) {
	tmpl, err := s.templates.Template(ctx, req.PsychologistID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bookings: load template: %w", err)
	}
	now := s.clock.Now()
	if !req.ScheduledAt.After(now.Add(tmpl.LeadTime())) {
		return uuid.Nil, ErrInvalidLeadTime
	}

	stored, err := s.store.Book(ctx, appointments.Appointment{
		PatientID:      req.PatientID,
		PsychologistID: req.PsychologistID,
		ScheduledAt:    req.ScheduledAt.UTC(),
		Status:         appointments.StatusScheduled,
		Notes:          req.Notes,
	})
	if err != nil {
		return uuid.Nil, err
	}

	if s.audit != nil {
		actor := req.ActorID
		if actor == uuid.Nil {
			actor = req.PatientID
		}
		details := map[string]string{
			"patient_id":      req.PatientID.String(),
			"psychologist_id": req.PsychologistID.String(),
			"scheduled_at":    stored.ScheduledAt.Format(time.RFC3339),
		}
		if err := s.audit.Record(ctx, compliance.EventAppointmentBooked, actor.String(), stored.ID.String(), details); err != nil {
			s.logger.Warn("audit record failed", "appointment_id", stored.ID, "error", err)
		}
	}
	return stored.ID, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrSlotConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrInvalidLeadTime):
		return metrics.OutcomeInvalidLeadTime
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
