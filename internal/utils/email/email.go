package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mlebedev/payflow/internal/config"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// Enabled reports whether an SMTP host is configured.
func (s *Sender) Enabled() bool {
	return s.cfg.SMTPHost != ""
}

// SendPaymentNotification notifies the owner about an executed scheduled payment
func (s *Sender) SendPaymentNotification(to, username, recipient string, amount decimal.Decimal, executedAt time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Scheduled Payment Executed"

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"A scheduled payment of %s has been sent to %s.\n"+
			"Execution time: %s\n",
		username, amount.String(), recipient, executedAt.Format("2006-01-02 15:04:05"),
	)
	body += "\nBest regards,\nPayflow"
	e.Text = []byte(body)

	return s.send(e)
}

// SendDepositNotification notifies the owner about a credited deposit
func (s *Sender) SendDepositNotification(to, username string, amount, balance decimal.Decimal) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Deposit Notification"

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your account has been credited with %s.\n"+
			"Transaction time: %s\n"+
			"Current balance: %s\n",
		username, amount.String(), time.Now().Format("2006-01-02 15:04:05"), balance.String(),
	)
	body += "\nBest regards,\nPayflow"
	e.Text = []byte(body)

	return s.send(e)
}

func (s *Sender) send(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %v: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}
