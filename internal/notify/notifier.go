package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
	"github.com/natachasiqueira/clinicamentalize/internal/clinic"
	"github.com/natachasiqueira/clinicamentalize/internal/events"
	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// SettingsSource supplies the clinic name and timezone used in messages.
type SettingsSource interface {
	Get(ctx context.Context) (*clinic.Settings, error)
}

// AppointmentNotifier emails patients and psychologists about their
// appointments. It is an events.DeliveryHandler fed by the outbox.
type AppointmentNotifier struct {
	email    EmailSender
	dir      users.Directory
	settings SettingsSource
	claims   Claims
	logger   *logging.Logger
}

func NewAppointmentNotifier(email EmailSender, dir users.Directory, settings SettingsSource, logger *logging.Logger) *AppointmentNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentNotifier{email: email, dir: dir, settings: settings, claims: NewMemoryClaims(0), logger: logger}
}

// WithClaims replaces the in-process claims, typically with RedisClaims so
// replicas agree on what was sent.
func (n *AppointmentNotifier) WithClaims(c Claims) *AppointmentNotifier {
	if c != nil {
		n.claims = c
	}
	return n
}

var _ events.DeliveryHandler = (*AppointmentNotifier)(nil)

// Handle sends the emails for one outbox entry. Unknown event types are
// ignored. Recipients already emailed for the entry's event are skipped.
func (n *AppointmentNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if n == nil || n.email == nil || n.dir == nil {
		return nil
	}
	env := events.EnvelopeFor(entry)
	switch entry.Type {
	case events.TypeAppointmentScheduled:
		var evt events.AppointmentScheduledV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return n.notifyScheduled(ctx, env.EventID, evt)
	case events.TypeAppointmentStatusChanged:
		var evt events.AppointmentStatusChangedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		return n.notifyStatusChanged(ctx, env.EventID, evt)
	default:
		n.logger.Debug("notify: ignoring event", "event_type", entry.Type)
		return nil
	}
}

type participants struct {
	patient      users.User
	psychologist users.User
	clinicName   string
	loc          *time.Location
}

func (n *AppointmentNotifier) load(ctx context.Context, patientID, psychologistID string) (*participants, error) {
	pid, err := uuid.Parse(patientID)
	if err != nil {
		return nil, fmt.Errorf("notify: patient id: %w", err)
	}
	sid, err := uuid.Parse(psychologistID)
	if err != nil {
		return nil, fmt.Errorf("notify: psychologist id: %w", err)
	}
	patient, err := n.dir.GetPatient(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("notify: load patient: %w", err)
	}
	psychologist, err := n.dir.GetPsychologist(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("notify: load psychologist: %w", err)
	}

	p := &participants{patient: patient.User, psychologist: psychologist.User, clinicName: DefaultFromName, loc: time.UTC}
	if n.settings != nil {
		cfg, err := n.settings.Get(ctx)
		if err != nil {
			n.logger.Warn("notify: clinic settings unavailable, using defaults", "error", err)
		} else {
			p.clinicName = cfg.Name
			p.loc = cfg.Location()
		}
	}
	return p, nil
}

func (n *AppointmentNotifier) notifyScheduled(ctx context.Context, eventID uuid.UUID, evt events.AppointmentScheduledV1) error {
	return n.notify(ctx, eventID, NoticeScheduled, evt.AppointmentID, evt.PatientID, evt.PsychologistID, evt.ScheduledAt)
}

func (n *AppointmentNotifier) notifyStatusChanged(ctx context.Context, eventID uuid.UUID, evt events.AppointmentStatusChangedV1) error {
	to, err := appointments.ParseStatus(evt.To)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	switch to {
	case appointments.StatusConfirmed:
		return n.notify(ctx, eventID, NoticeConfirmed, evt.AppointmentID, evt.PatientID, evt.PsychologistID, evt.ScheduledAt)
	case appointments.StatusCancelled:
		return n.notify(ctx, eventID, NoticeCancelled, evt.AppointmentID, evt.PatientID, evt.PsychologistID, evt.ScheduledAt)
	default:
		// completed and no-show are bookkeeping; nobody is emailed
		return nil
	}
}

func (n *AppointmentNotifier) notify(ctx context.Context, eventID uuid.UUID, notice Notice, appointmentID, patientID, psychologistID string, at time.Time) error {
	p, err := n.load(ctx, patientID, psychologistID)
	if err != nil {
		return err
	}
	when := formatWhen(at, p.loc)

	var errs []error
	for _, role := range recipients[notice] {
		to, counterpart := p.patient, p.psychologist
		if role == RolePsychologist {
			to, counterpart = p.psychologist, p.patient
		}
		msg, ok := renderNotice(notice, role, to, counterpart, when, p.clinicName)
		if !ok {
			continue
		}
		msg.EventID = eventID
		msg.AppointmentID = appointmentID
		if err := n.send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// send emails one recipient at most once per event. A failed send gives the
// claim back so the outbox retry can try again.
func (n *AppointmentNotifier) send(ctx context.Context, msg AppointmentEmail) error {
	if msg.To == "" {
		n.logger.Warn("notify: recipient has no email", "appointment_id", msg.AppointmentID, "role", msg.Role)
		return nil
	}
	key := msg.DedupeKey()
	claimed, err := n.claims.Claim(ctx, key)
	if err != nil {
		n.logger.Warn("notify: claim unavailable, sending anyway", "error", err, "key", key)
		claimed = true
	}
	if !claimed {
		n.logger.Debug("notify: already sent", "key", key)
		return nil
	}
	if err := n.email.Send(ctx, msg); err != nil {
		if rerr := n.claims.Release(ctx, key); rerr != nil {
			n.logger.Warn("notify: release claim failed", "error", rerr, "key", key)
		}
		return err
	}
	return nil
}

// formatWhen renders "10/06/2024 às 14:00" in the clinic timezone.
func formatWhen(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02/01/2006 às 15:04")
}
