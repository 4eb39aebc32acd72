package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/natachasiqueira/clinicamentalize/internal/users"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// DefaultFromName is used when no sender name is configured.
const DefaultFromName = "Clínica Mentalize"

// Notice names the appointment change an email reports.
type Notice string

const (
	NoticeScheduled Notice = "scheduled"
	NoticeConfirmed Notice = "confirmed"
	NoticeCancelled Notice = "cancelled"
)

// Role is the side of the appointment a recipient is on.
type Role string

const (
	RolePatient      Role = "patient"
	RolePsychologist Role = "psychologist"
)

// AppointmentEmail is one rendered notice addressed to one participant.
type AppointmentEmail struct {
	EventID       uuid.UUID
	AppointmentID string
	Notice        Notice
	Role          Role
	To            string
	ToName        string
	Subject       string
	Text          string
	HTML          string
}

// DedupeKey is stable across outbox retries of the same event.
func (m AppointmentEmail) DedupeKey() string {
	return "notify:" + m.EventID.String() + ":" + string(m.Role)
}

// EmailSender delivers one appointment email. SendGrid, SES and the stub
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg AppointmentEmail) error
}

type noticeTemplate struct {
	subject string
	// line is formatted with the counterpart's full name and the slot time
	line string
}

var noticeTemplates = map[Notice]map[Role]noticeTemplate{
	NoticeScheduled: {
		RolePatient:      {subject: "Consulta agendada", line: "Sua consulta com %s foi agendada para %s."},
		RolePsychologist: {subject: "Nova consulta", line: "Nova consulta agendada com %s para %s."},
	},
	NoticeConfirmed: {
		RolePatient: {subject: "Consulta confirmada", line: "Sua consulta com %s em %s está confirmada."},
	},
	NoticeCancelled: {
		RolePatient:      {subject: "Consulta cancelada", line: "Sua consulta com %s em %s foi cancelada."},
		RolePsychologist: {subject: "Consulta cancelada", line: "A consulta com %s em %s foi cancelada. O horário está livre novamente."},
	},
}

// recipients lists who hears about each notice, in send order.
var recipients = map[Notice][]Role{
	NoticeScheduled: {RolePatient, RolePsychologist},
	NoticeConfirmed: {RolePatient},
	NoticeCancelled: {RolePatient, RolePsychologist},
}

// renderNotice builds the email for one recipient. It reports false when the
// notice has no template for that role.
func renderNotice(notice Notice, role Role, to, counterpart users.User, when, clinicName string) (AppointmentEmail, bool) {
	tmpl, ok := noticeTemplates[notice][role]
	if !ok {
		return AppointmentEmail{}, false
	}
	greeting := fmt.Sprintf("Olá, %s!", to.FirstName())
	line := fmt.Sprintf(tmpl.line, counterpart.FullName, when)
	text := greeting + "\n\n" + line + "\n\n" + clinicName

	var b strings.Builder
	b.WriteString("<p>" + html.EscapeString(greeting) + "</p>")
	b.WriteString("<p>" + html.EscapeString(line) + "</p>")
	b.WriteString(`<p style="color:#666">` + html.EscapeString(clinicName) + "</p>")

	return AppointmentEmail{
		Notice:  notice,
		Role:    role,
		To:      to.Email,
		ToName:  to.FullName,
		Subject: tmpl.subject + " - " + clinicName,
		Text:    text,
		HTML:    b.String(),
	}, true
}

// SendGridSender sends appointment emails through the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// sendGridMail tags the message with the notice and the event it came from so
// webhook events can be traced back to the outbox.
func (s *SendGridSender) sendGridMail(msg AppointmentEmail) *mail.SGMailV3 {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	m.AddCategories("appointment", string(msg.Notice))
	if len(m.Personalizations) > 0 {
		p := m.Personalizations[0]
		p.SetCustomArg("event_id", msg.EventID.String())
		p.SetCustomArg("appointment_id", msg.AppointmentID)
		p.SetCustomArg("role", string(msg.Role))
	}
	return m
}

func (s *SendGridSender) Send(ctx context.Context, msg AppointmentEmail) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.sendGridMail(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "appointment_id", msg.AppointmentID, "notice", msg.Notice)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected appointment email", "status", response.StatusCode, "body", response.Body, "appointment_id", msg.AppointmentID)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("appointment email sent", "provider", "sendgrid", "appointment_id", msg.AppointmentID, "notice", msg.Notice, "role", msg.Role)
	return nil
}

// StubEmailSender logs instead of sending and keeps what it was asked to send.
type StubEmailSender struct {
	logger *logging.Logger
	mu     sync.Mutex
	sent   []AppointmentEmail
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg AppointmentEmail) error {
	s.logger.Info("appointment email not sent (stub)", "appointment_id", msg.AppointmentID, "notice", msg.Notice, "role", msg.Role)
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of the emails passed to Send.
func (s *StubEmailSender) Sent() []AppointmentEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AppointmentEmail(nil), s.sent...)
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
