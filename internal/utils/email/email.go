package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/config"
)

// Decision is the part of a credit decision shown to the customer
type Decision struct {
	DecisionID         string
	Approved           bool
	CreditLimitCents   int64
	AmountGrantedCents int64
	PlanID             string
}

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender. It returns nil when SMTP is not
// configured; a nil Sender sends nothing.
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	if cfg.SMTPHost == "" {
		return nil
	}
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendDecisionNotification tells the customer the outcome of their request
func (s *Sender) SendDecisionNotification(to string, d Decision) error {
	if s == nil || to == "" {
		return nil
	}

	e := decisionEmail(s.cfg.SenderEmail, to, d)
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.WithError(err).WithField("decision_id", d.DecisionID).Error("Failed to send decision email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.WithField("decision_id", d.DecisionID).Infof("Email sent: %s", e.Subject)
	return nil
}

func decisionEmail(from, to string, d Decision) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}

	body := "Hello,\n\n"
	if d.Approved {
		e.Subject = "Your pay-later request was approved"
		body += fmt.Sprintf(
			"Good news! You have been approved for $%s.\n"+
				"Your credit limit is $%s.\n"+
				"Plan reference: %s\n",
			dollars(d.AmountGrantedCents), dollars(d.CreditLimitCents), d.PlanID,
		)
	} else {
		e.Subject = "Update on your pay-later request"
		body += "We are unable to approve your request right now.\n" +
			"Decisions are based on recent account activity, so you are welcome to try again later.\n"
	}
	body += fmt.Sprintf("\nDecision reference: %s\n\nBest regards,\nBNPL Service", d.DecisionID)
	e.Text = []byte(body)
	return e
}

func dollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
