package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/mediagallery/gallery-api/internal/observability"
)

const (
	MailTemplateVerification  = "verification"
	MailTemplatePasswordReset = "password_reset"
	MailTemplateWelcome       = "welcome"
)

var mailSubjects = map[string]string{
	MailTemplateVerification:  "Email Verification - Media Gallery",
	MailTemplatePasswordReset: "Password Reset - Media Gallery",
	MailTemplateWelcome:       "Welcome to Media Gallery!",
}

var mailAccents = map[string]string{
	MailTemplateVerification:  "linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
	MailTemplatePasswordReset: "linear-gradient(135deg, #ff6b6b 0%, #ee5a24 100%)",
	MailTemplateWelcome:       "linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
}

var mailHeadings = map[string]string{
	MailTemplateVerification:  "Email Verification",
	MailTemplatePasswordReset: "Password Reset",
	MailTemplateWelcome:       "Welcome!",
}

//go:embed templates/*.html
var mailTemplateFS embed.FS

// Mailer delivers account notifications. Implementations report failure through
// the returned error and never panic.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, name, code, link string) error
	SendPasswordResetEmail(ctx context.Context, to, name, code, link string) error
	SendWelcomeEmail(ctx context.Context, to, name string) error
}

type mailData struct {
	Name      string
	Code      string
	Link      string
	ExpiresIn string
	Accent    string
	Heading   string
}

// mailRenderer renders subject and HTML body for each template.
type mailRenderer struct {
	templates   map[string]*template.Template
	frontendURL string
	codeTTL     time.Duration
}

func newMailRenderer(frontendURL string, codeTTL time.Duration) (*mailRenderer, error) {
	r := &mailRenderer{templates: make(map[string]*template.Template), frontendURL: frontendURL, codeTTL: codeTTL}
	for name := range mailSubjects {
		tpl, err := template.ParseFS(mailTemplateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse mail template %s: %w", name, err)
		}
		r.templates[name] = tpl
	}
	return r, nil
}

func (r *mailRenderer) render(name string, data mailData) (string, string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}
	data.Accent = mailAccents[name]
	data.Heading = mailHeadings[name]
	data.ExpiresIn = humanizeMinutes(r.codeTTL)
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", "", fmt.Errorf("render mail template %s: %w", name, err)
	}
	return mailSubjects[name], buf.String(), nil
}

func humanizeMinutes(d time.Duration) string {
	m := int(d.Minutes())
	if m <= 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// LogMailer writes rendered mail to the logger. Local environments only.
type LogMailer struct {
	logger   *slog.Logger
	renderer *mailRenderer
}

func NewLogMailer(logger *slog.Logger, frontendURL string, codeTTL time.Duration) (*LogMailer, error) {
	renderer, err := newMailRenderer(frontendURL, codeTTL)
	if err != nil {
		return nil, err
	}
	return &LogMailer{logger: logger, renderer: renderer}, nil
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, to, name, code, link string) error {
	return m.send(ctx, MailTemplateVerification, to, mailData{Name: name, Code: code, Link: link})
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, to, name, code, link string) error {
	return m.send(ctx, MailTemplatePasswordReset, to, mailData{Name: name, Code: code, Link: link})
}

func (m *LogMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.send(ctx, MailTemplateWelcome, to, mailData{Name: name, Link: m.renderer.frontendURL})
}

func (m *LogMailer) send(ctx context.Context, tpl, to string, data mailData) error {
	subject, _, err := m.renderer.render(tpl, data)
	if err != nil {
		observability.RecordMailDelivery(ctx, tpl, "log", "error")
		return err
	}
	// The code is logged under "delivery" so local runs can complete the flow.
	m.logger.InfoContext(ctx, "mail captured",
		"driver", "log",
		"template", tpl,
		"to", to,
		"subject", subject,
		"delivery", fmt.Sprintf("code=%s link=%s", data.Code, data.Link),
	)
	observability.RecordMailDelivery(ctx, tpl, "log", "sent")
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends through an SMTP relay using go-mail.
type SMTPMailer struct {
	client   *gomail.Client
	from     string
	renderer *mailRenderer
	logger   *slog.Logger
}

func NewSMTPMailer(cfg SMTPConfig, frontendURL string, codeTTL time.Duration, logger *slog.Logger) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	renderer, err := newMailRenderer(frontendURL, codeTTL)
	if err != nil {
		return nil, err
	}
	return &SMTPMailer{client: client, from: cfg.From, renderer: renderer, logger: logger}, nil
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, name, code, link string) error {
	return m.send(ctx, MailTemplateVerification, to, mailData{Name: name, Code: code, Link: link})
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to, name, code, link string) error {
	return m.send(ctx, MailTemplatePasswordReset, to, mailData{Name: name, Code: code, Link: link})
}

func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.send(ctx, MailTemplateWelcome, to, mailData{Name: name, Link: m.renderer.frontendURL})
}

func (m *SMTPMailer) send(ctx context.Context, tpl, to string, data mailData) error {
	subject, body, err := m.renderer.render(tpl, data)
	if err != nil {
		observability.RecordMailDelivery(ctx, tpl, "smtp", "error")
		return err
	}
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		observability.RecordMailDelivery(ctx, tpl, "smtp", "error")
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		observability.RecordMailDelivery(ctx, tpl, "smtp", "error")
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		observability.RecordMailDelivery(ctx, tpl, "smtp", "error")
		m.logger.WarnContext(ctx, "mail delivery failed", "template", tpl, "to", to, "error", err)
		return fmt.Errorf("send %s mail: %w", tpl, err)
	}
	observability.RecordMailDelivery(ctx, tpl, "smtp", "sent")
	return nil
}
