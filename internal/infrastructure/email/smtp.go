// Package email delivers templated payment emails over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/infrastructure/template"
	"github.com/orris-inc/paygate/internal/shared/logger"
	"github.com/orris-inc/paygate/internal/shared/services/markdown"
	"github.com/orris-inc/paygate/internal/shared/utils"
)

var ErrEmailServiceNotConfigured = errors.New("email service not configured")

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// Sender is the part of gomail.Dialer the dispatcher needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPDispatcher renders markdown templates and sends them as
// multipart text and HTML messages.
type SMTPDispatcher struct {
	config    SMTPConfig
	sender    Sender
	templates *template.Loader
	markdown  markdown.MarkdownService
	logger    logger.Interface
}

var _ usecases.EmailDispatcher = (*SMTPDispatcher)(nil)

func NewSMTPDispatcher(config SMTPConfig, templates *template.Loader, md markdown.MarkdownService, logger logger.Interface) *SMTPDispatcher {
	var sender Sender
	if config.Host != "" {
		sender = gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	}
	return NewDispatcherWithSender(config, sender, templates, md, logger)
}

// NewDispatcherWithSender is NewSMTPDispatcher with an explicit transport.
func NewDispatcherWithSender(config SMTPConfig, sender Sender, templates *template.Loader, md markdown.MarkdownService, logger logger.Interface) *SMTPDispatcher {
	return &SMTPDispatcher{
		config:    config,
		sender:    sender,
		templates: templates,
		markdown:  md,
		logger:    logger,
	}
}

func (d *SMTPDispatcher) Dispatch(ctx context.Context, recipient, name string, vars map[string]any) error {
	if d.sender == nil {
		d.logger.Warnw("email service not configured, cannot send", "template", name, "to", utils.MaskEmail(recipient))
		return ErrEmailServiceNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, text, htmlBody, err := d.compose(name, vars)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", d.config.FromAddress, d.config.FromName)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", htmlBody)

	if err := d.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	d.logger.Infow("email sent", "template", name, "to", utils.MaskEmail(recipient))
	return nil
}

// compose renders template name into its subject, plain text and HTML parts.
func (d *SMTPDispatcher) compose(name string, vars map[string]any) (subject, text, htmlBody string, err error) {
	rendered, err := d.templates.Render(name, vars)
	if err != nil {
		return "", "", "", err
	}
	htmlBody, err = d.markdown.ToHTMLSanitized(rendered.Markdown)
	if err != nil {
		return "", "", "", err
	}
	return rendered.Subject, rendered.Markdown, htmlBody, nil
}
