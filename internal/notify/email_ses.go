package notify

import (
	"context"
	"fmt"
	netmail "net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends appointment emails through AWS SES.
type SESSender struct {
	client SESAPI
	from   string
	logger *logging.Logger
}

type SESConfig struct {
	FromEmail string
	FromName  string
}

// NewSESSender returns nil without a client. The from name is encoded for
// the header since the default one is not ASCII.
func NewSESSender(client SESAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	from := (&netmail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String()
	return &SESSender{client: client, from: from, logger: logger}
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

func (s *SESSender) input(msg AppointmentEmail) *sesv2.SendEmailInput {
	to := (&netmail.Address{Name: msg.ToName, Address: msg.To}).String()
	body := &types.Body{Text: utf8Content(msg.Text)}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
		// tags show up on SES event destinations
		EmailTags: []types.MessageTag{
			{Name: aws.String("notice"), Value: aws.String(string(msg.Notice))},
			{Name: aws.String("role"), Value: aws.String(string(msg.Role))},
			{Name: aws.String("event_id"), Value: aws.String(msg.EventID.String())},
		},
	}
}

func (s *SESSender) Send(ctx context.Context, msg AppointmentEmail) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	output, err := s.client.SendEmail(ctx, s.input(msg))
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "appointment_id", msg.AppointmentID, "notice", msg.Notice)
		return fmt.Errorf("notify: SES send: %w", err)
	}
	s.logger.Info("appointment email sent", "provider", "ses", "appointment_id", msg.AppointmentID, "notice", msg.Notice, "role", msg.Role, "message_id", aws.ToString(output.MessageId))
	return nil
}

var _ EmailSender = (*SESSender)(nil)
