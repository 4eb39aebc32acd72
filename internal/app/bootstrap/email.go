package bootstrap

import (
	"strings"

	appconfig "github.com/natachasiqueira/clinicamentalize/internal/config"
	"github.com/natachasiqueira/clinicamentalize/internal/notify"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// BuildEmailSender selects the outbound email provider. It always returns a
// usable sender; the stub is chosen when the preferred provider is not
// configured, and reason explains why.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (sender notify.EmailSender, provider, reason string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub", "missing config"
	}

	fromName := strings.TrimSpace(cfg.EmailFromName)
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  fromName,
		}, logger); s != nil {
			return s, "sendgrid", ""
		}
		reason = "SENDGRID_API_KEY not set"
	case "ses":
		if strings.TrimSpace(cfg.EmailFrom) == "" {
			reason = "EMAIL_FROM not set"
			break
		}
		if s := notify.NewSESSender(ses, notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  fromName,
		}, logger); s != nil {
			return s, "ses", ""
		}
		reason = "ses client unavailable"
	case "", "stub":
		reason = "stub selected"
	default:
		reason = "unknown provider " + cfg.EmailProvider
	}
	return notify.NewStubEmailSender(logger), "stub", reason
}
