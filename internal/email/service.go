// Package email sends share-link notifications via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// ShareLinkData fills the share notification template.
type ShareLinkData struct {
	Company   string
	Recipient string
	Title     string
	URL       string
	ExpiresAt time.Time
	Protected bool
}

// SendShareLink mails a public proposal link to one recipient.
func (s *Service) SendShareLink(to string, data ShareLinkData) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	subject := "Коммерческое предложение"
	if title := strings.TrimSpace(data.Title); title != "" {
		subject += ": " + title
	}
	html, err := renderTemplate(shareLinkTemplate, data)
	if err != nil {
		return fmt.Errorf("render share link template: %w", err)
	}
	msg := s.buildMessage([]string{to}, subject, shareLinkText(data), html)
	if err := s.send(s.server, s.auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send share link: %w", err)
	}
	return nil
}

// buildMessage assembles a multipart/alternative message with a plain text
// part and an HTML part.
func (s *Service) buildMessage(to []string, subject, text, html string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}
	boundary := "kp-share-boundary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", text)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", html)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func shareLinkText(data ShareLinkData) string {
	var b strings.Builder
	if data.Recipient != "" {
		fmt.Fprintf(&b, "Здравствуйте, %s!\r\n\r\n", data.Recipient)
	}
	b.WriteString("Для вас подготовлено коммерческое предложение")
	if data.Company != "" {
		fmt.Fprintf(&b, " от %s", data.Company)
	}
	fmt.Fprintf(&b, ":\r\n%s\r\n", data.URL)
	if data.Protected {
		b.WriteString("Для просмотра понадобится пароль.\r\n")
	}
	if !data.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "Ссылка действует до %s.\r\n", data.ExpiresAt.Format("02.01.2006"))
	}
	return b.String()
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format("02.01.2006") },
	}).Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const shareLinkTemplate = `<!DOCTYPE html>
<html lang="ru">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    {{if .Recipient}}<p>Здравствуйте, {{.Recipient}}!</p>{{end}}
    <p>Для вас подготовлено коммерческое предложение{{if .Company}} от {{.Company}}{{end}}{{if .Title}} «{{.Title}}»{{end}}.</p>
    <p><a href="{{.URL}}" class="button">Открыть предложение</a></p>
    <p class="link">{{.URL}}</p>
    {{if .Protected}}<p>Для просмотра понадобится пароль, который вам сообщит отправитель.</p>{{end}}
    {{if not .ExpiresAt.IsZero}}<div class="footer"><p>Ссылка действует до {{date .ExpiresAt}}.</p></div>{{end}}
</body>
</html>`
