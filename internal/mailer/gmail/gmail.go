// Package gmail sends campaign mail through the Gmail API
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"campaign-mailer-go/internal/mailer"
)

const maxAttempts = 3

// Config holds the OAuth2 client and the mailbox sending on its behalf
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	UserEmail    string
}

// Transport sends through users.messages.send
type Transport struct {
	service   *gmailapi.Service
	userEmail string
	sender    mailer.Sender
	wait      func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// New creates a Gmail transport from a refresh token
func New(ctx context.Context, cfg Config, sender mailer.Sender) (*Transport, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmailapi.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmailapi.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return newTransport(service, cfg.UserEmail, sender), nil
}

func newTransport(service *gmailapi.Service, userEmail string, sender mailer.Sender) *Transport {
	if userEmail == "" {
		userEmail = "me"
	}
	return &Transport{
		service:   service,
		userEmail: userEmail,
		sender:    sender,
		wait:      sleep,
		now:       time.Now,
	}
}

// Send delivers msg, retrying rate-limited attempts with growing waits
func (t *Transport) Send(ctx context.Context, msg mailer.Message) (string, error) {
	raw, err := mailer.BuildMIME(t.sender, msg, t.now())
	if err != nil {
		return "", fmt.Errorf("failed to build message: %w", err)
	}
	payload := &gmailapi.Message{Raw: base64.URLEncoding.EncodeToString(raw)}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sent, err := t.service.Users.Messages.Send(t.userEmail, payload).Context(ctx).Do()
		if err == nil {
			return sent.Id, nil
		}

		lastErr = err
		logrus.WithFields(logrus.Fields{
			"to":      msg.To,
			"attempt": attempt,
		}).Warnf("Failed to send email: %v", err)

		if !isRateLimited(err) || attempt == maxAttempts {
			break
		}

		waitTime := time.Duration(attempt*attempt) * time.Second
		logrus.Infof("Rate limited, waiting %v before retry", waitTime)
		if err := t.wait(ctx, waitTime); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("failed to send email: %w", lastErr)
}

// TestConnection checks that the credentials can read the sending profile
func (t *Transport) TestConnection(ctx context.Context) error {
	if _, err := t.service.Users.GetProfile(t.userEmail).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to test Gmail API connection: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	return nil
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
