package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/config"
	"campaign-mailer-go/internal/mailer"
	"campaign-mailer-go/internal/mailer/gmail"
	"campaign-mailer-go/internal/mailer/httpapi"
	"campaign-mailer-go/internal/mailer/mailgun"
	"campaign-mailer-go/internal/mailer/ses"
)

// NewTransport builds the outbound transport named by cfg.Provider
func NewTransport(ctx context.Context, cfg config.MailConfig) (mailer.Transport, error) {
	sender := mailer.Sender{From: cfg.From, ReplyTo: cfg.ReplyTo}
	provider := strings.ToLower(cfg.Provider)

	var (
		t   mailer.Transport
		err error
	)
	switch provider {
	case "", "log":
		t = mailer.NewLogTransport(sender)
	case "gmail":
		t, err = gmail.New(ctx, gmail.Config{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
			UserEmail:    cfg.Gmail.UserEmail,
		}, sender)
	case "mailgun":
		t, err = mailgun.New(cfg.Mailgun.Domain, cfg.Mailgun.APIKey,
			mailgun.SetFrom(cfg.From),
			mailgun.SetReplyTo(cfg.ReplyTo),
			mailgun.SetAPIBase(cfg.Mailgun.APIBase),
		)
	case "ses":
		t, err = ses.New(cfg.SES.Region, sender)
	case "http":
		t = httpapi.New(httpapi.Config{
			BaseURL:    cfg.HTTP.BaseURL,
			APIKey:     cfg.HTTP.APIKey,
			Timeout:    cfg.HTTP.Timeout,
			MaxRetries: cfg.HTTP.MaxRetries,
		}, sender)
	default:
		return nil, fmt.Errorf("unsupported mail provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s transport: %w", provider, err)
	}

	logrus.WithField("provider", provider).Info("Mail transport ready")
	return t, nil
}
