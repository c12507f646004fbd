package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"strings"

	"github.com/go-mail/mail/v2"
	"github.com/sirupsen/logrus"

	"bankly-api/internal/config"
)

// mailDialer часть *mail.Dialer, которой пользуется EmailSender
type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

type EmailSender struct {
	dialer  mailDialer
	from    string
	logger  *logrus.Logger
	enabled bool
}

func NewEmailSender(cfg *config.Config, logger *logrus.Logger) *EmailSender {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	return &EmailSender{
		dialer:  d,
		from:    cfg.SMTPFrom,
		logger:  logger,
		enabled: cfg.EmailSenderEnabled,
	}
}

// SendMessage отправляет HTML письмо. Если отправка отключена, письмо только логируется.
func (es *EmailSender) SendMessage(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !es.enabled {
		es.logger.WithFields(logrus.Fields{
			"to":      address,
			"subject": subject,
		}).Warn("Отправка писем отключена")
		return nil
	}
	return es.sendEmail(address, subject, body)
}

func (es *EmailSender) sendEmail(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", es.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := es.dialer.DialAndSend(m); err != nil {
		es.logger.WithError(err).Error("Ошибка отправки email")
		return fmt.Errorf("не удалось отправить email: %w", err)
	}

	es.logger.Infof("Email успешно отправлен на %s", to)
	return nil
}

const otpSubject = "Your Bankly Verification Code"

var otpEmailTemplate = template.Must(template.New("otp").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #0A4D92; text-align: center;">Bankly</h1>
  <div style="background: #f8f9fa; padding: 30px; border-radius: 10px; text-align: center;">
    <h2 style="color: #333;">Verification Code</h2>
    <p style="color: #666;">Please use the following code to verify your identity:</p>
    <p style="font-size: 32px; font-weight: bold; color: #0A4D92; letter-spacing: 4px;">{{.Code}}</p>
    <p style="color: #666; font-size: 14px;">This code will expire in {{.Minutes}} minutes.</p>
    <p style="color: #666; font-size: 14px;">If you didn't request this code, please ignore this email.</p>
  </div>
</div>
`))

// renderOTPEmail тело письма с кодом
func renderOTPEmail(code string, minutes int) (string, error) {
	var b strings.Builder
	err := otpEmailTemplate.Execute(&b, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: minutes})
	if err != nil {
		return "", fmt.Errorf("failed to render otp email: %w", err)
	}
	return b.String(), nil
}
