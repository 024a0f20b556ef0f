package mail

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/medscan/hospital-records/internal/core/port"
	"github.com/medscan/hospital-records/internal/infra/config"
	"github.com/medscan/hospital-records/internal/infra/logger"
)

// Mailer delivers verification codes over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	log    *zap.Logger
}

// NewMailer constructs an SMTP-backed code sender.
func NewMailer(cfg config.SMTPSettings, log *zap.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    log,
	}
}

// SendVerificationCode emails the registration code to the applicant.
func (m *Mailer) SendVerificationCode(ctx context.Context, email, name, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Your registration verification code")

	msg.SetBody("text/html", verificationBody(name, code))

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.log.Warn("verification email delivery failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		return fmt.Errorf("send verification email: %w", err)
	}

	m.log.Info("verification email sent", zap.String("email", logger.MaskEmail(email)))
	return nil
}

// verificationBody renders the HTML body. The name is applicant
// supplied and must be escaped.
func verificationBody(name, code string) string {
	return fmt.Sprintf(`
		<h3>Hello %s,</h3>
		<p>Your verification code is <strong>%s</strong>.</p>
		<p>Enter it in the registration form to activate your account. The code expires in 30 minutes.</p>
		<p>If you did not request this registration, you can ignore this email.</p>
	`, html.EscapeString(name), code)
}

var _ port.CodeSender = (*Mailer)(nil)
