package notification

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"golang.org/x/time/rate"
)

// EmailAPI is satisfied by resend.Client.Emails.
type EmailAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type EmailConfig struct {
	From    string
	AppURL  string
	LogoURL string
	// RedirectTo sends every email to this address instead of the recipient. Used in development.
	RedirectTo string
	// RatePerSecond bounds calls to the provider. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// EmailSender delivers notifications through Resend.
type EmailSender struct {
	api      EmailAPI
	contacts ContactDirectory
	cfg      EmailConfig
	limiter  *rate.Limiter
}

// NewResendAPI builds the production EmailAPI.
func NewResendAPI(apiKey string) EmailAPI {
	return resend.NewClient(apiKey).Emails
}

func NewEmailSender(api EmailAPI, contacts ContactDirectory, cfg EmailConfig) *EmailSender {
	if cfg.From == "" {
		cfg.From = "notifications@resend.dev"
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &EmailSender{api: api, contacts: contacts, cfg: cfg, limiter: limiter}
}

func (s *EmailSender) Channel() Channel { return Email }

func (s *EmailSender) Attempt(ctx context.Context, n *Notification) error {
	contact, err := s.contacts.Lookup(ctx, n.UserID)
	if err != nil {
		return err
	}
	if contact.Email == "" {
		return fmt.Errorf("%w: user %s has no email", ErrNoContact, n.UserID)
	}

	html, err := RenderEmail(BuildEmailData(n, contact.Name, s.cfg.AppURL, s.cfg.LogoURL))
	if err != nil {
		return err
	}

	return s.Send(ctx, contact.Email, EmailSubject(n), html)
}

// Send delivers a rendered email, honouring the rate limit and the development redirect.
func (s *EmailSender) Send(ctx context.Context, to, subject, html string) error {
	if s.cfg.RedirectTo != "" {
		subject = fmt.Sprintf("[DEV-REDIRECT] %s (Original: %s)", subject, to)
		to = s.cfg.RedirectTo
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email rate limiter: %w", err)
	}

	_, err := s.api.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.cfg.From,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}
	return nil
}
