package services

import (
	"bytes"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/croftbase/member-console/config"
	"github.com/croftbase/member-console/models"
)

//go:embed templates/*.html
var emailTemplateFS embed.FS

// EmailSender delivers transactional mail. Callers treat failures as
// non-fatal; a lost email never rolls back the action that triggered it.
type EmailSender interface {
	SendWelcomeEmail(to, name string) error
	SendVerificationEmail(to, name, token string) error
	SendInvitationEmail(to, inviterName string, role models.UserRole, token string) error
	SendPasswordResetEmail(to, token string) error
}

type EmailService struct {
	cfg       *config.Config
	templates *template.Template
}

func NewEmailService(cfg *config.Config) (*EmailService, error) {
	templates, err := template.ParseFS(emailTemplateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &EmailService{cfg: cfg, templates: templates}, nil
}

func (s *EmailService) SendWelcomeEmail(to, name string) error {
	data := struct {
		Name     string
		LoginURL string
	}{
		Name:     name,
		LoginURL: fmt.Sprintf("%s/login", s.cfg.PublicURL),
	}
	body, err := s.render("welcome_email.html", data)
	if err != nil {
		return err
	}
	return s.send(to, "Welcome aboard", body)
}

func (s *EmailService) SendVerificationEmail(to, name, token string) error {
	data := struct {
		Name      string
		VerifyURL string
	}{
		Name:      name,
		VerifyURL: fmt.Sprintf("%s/verify-email?token=%s", s.cfg.PublicURL, token),
	}
	body, err := s.render("verify_email.html", data)
	if err != nil {
		return err
	}
	return s.send(to, "Confirm your email address", body)
}

func (s *EmailService) SendInvitationEmail(to, inviterName string, role models.UserRole, token string) error {
	data := struct {
		InviterName string
		Role        string
		AcceptURL   string
	}{
		InviterName: inviterName,
		Role:        string(role),
		AcceptURL:   fmt.Sprintf("%s/invitations/%s", s.cfg.PublicURL, token),
	}
	body, err := s.render("invitation_email.html", data)
	if err != nil {
		return err
	}
	return s.send(to, fmt.Sprintf("%s invited you to join", inviterName), body)
}

func (s *EmailService) SendPasswordResetEmail(to, token string) error {
	data := struct {
		ResetURL string
	}{
		ResetURL: fmt.Sprintf("%s/reset-password?token=%s", s.cfg.PublicURL, token),
	}
	body, err := s.render("password_reset_email.html", data)
	if err != nil {
		return err
	}
	return s.send(to, "Reset your password", body)
}

func (s *EmailService) render(name string, data interface{}) (string, error) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("failed to render email template %s: %w", name, err)
	}
	return body.String(), nil
}

func (s *EmailService) send(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)

	msg := []byte("To: " + to + "\r\n" +
		"From: " + s.cfg.SMTPFrom + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n" +
		"\r\n" +
		body + "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	tlsConfig := &tls.Config{ServerName: s.cfg.SMTPHost}

	var client *smtp.Client
	if s.cfg.SMTPPort == 465 {
		// Implicit TLS.
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial: %w", err)
		}
		defer conn.Close()
		client, err = smtp.NewClient(conn, s.cfg.SMTPHost)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
	} else {
		// STARTTLS upgrade, the usual path on 587.
		c, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		client = c
		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(s.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return nil
}
