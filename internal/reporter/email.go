package reporter

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"

	"cheque-report-service/internal/reconciler"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// SMTPConfig configures report delivery by email
type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Enabled reports whether any recipient is configured
func (c *SMTPConfig) Enabled() bool {
	return len(c.To) > 0
}

// Addr returns host:port
func (c *SMTPConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Validate checks that a message can be addressed and sent
func (c *SMTPConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "smtp.host", c.Host, nil)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "smtp.port", c.Port,
			fmt.Errorf("port must be between 1 and 65535"))
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "smtp.from", c.From, nil)
	}
	if !c.Enabled() {
		return errors.ConfigurationError(errors.CodeMissingConfig, "smtp.to", c.To, nil)
	}
	return nil
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// EmailSink mails the console report as the body with the CSV report attached
type EmailSink struct {
	config     SMTPConfig
	body       *ReportGenerator
	attachment *ReportGenerator
	send       sendFunc
	logger     logger.Logger
}

// NewEmailSink creates an email sink
func NewEmailSink(config SMTPConfig) (*EmailSink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	bodyConfig := DefaultReportConfig()
	bodyConfig.UseColors = false
	body, err := NewReportGenerator(bodyConfig)
	if err != nil {
		return nil, err
	}

	csvConfig := DefaultReportConfig()
	csvConfig.Format = FormatCSV
	attachment, err := NewReportGenerator(csvConfig)
	if err != nil {
		return nil, err
	}

	return &EmailSink{
		config:     config,
		body:       body,
		attachment: attachment,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
		logger: logger.GetGlobalLogger().WithComponent("email_sink"),
	}, nil
}

// Name implements reconciler.Sink
func (s *EmailSink) Name() string {
	return "email"
}

// Subject returns the message subject for result
func Subject(result *reconciler.ReportResult) string {
	return result.Header.ReportID + " " + result.Header.Title
}

// BuildMessage renders the report into an email message
func (s *EmailSink) BuildMessage(result *reconciler.ReportResult) (*email.Email, error) {
	var text bytes.Buffer
	if err := s.body.GenerateReport(result, &text); err != nil {
		return nil, err
	}

	var attachment bytes.Buffer
	if err := s.attachment.GenerateReport(result, &attachment); err != nil {
		return nil, err
	}

	e := email.NewEmail()
	e.From = s.config.From
	e.To = s.config.To
	e.Subject = Subject(result)
	e.Text = text.Bytes()

	name := DefaultFileName(result, FormatCSV)
	if _, err := e.Attach(&attachment, name, "text/csv"); err != nil {
		return nil, errors.ReportingError(errors.CodeRenderFailed, "email attachment", err)
	}
	return e, nil
}

// Deliver implements reconciler.Sink
func (s *EmailSink) Deliver(ctx context.Context, result *reconciler.ReportResult) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeCancelled, "report delivery", err)
	}

	e, err := s.BuildMessage(result)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := s.config.Addr()
	if err := s.send(e, addr, auth); err != nil {
		s.logger.WithError(err).WithField("smtp", addr).Error("Failed to send report email")
		return errors.ReportingError(errors.CodeDeliveryFailed, addr, err)
	}

	s.logger.WithFields(logger.Fields{
		"to":      strings.Join(s.config.To, ","),
		"subject": e.Subject,
	}).Info("Report email sent")
	return nil
}
