// Package httpapi sends campaign mail through a hosted JSON email API
// (Resend-compatible POST /emails).
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/mailer"
)

const userAgent = "campaign-mailer-go"

// Config describes the API endpoint
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Transport struct {
	client *retryablehttp.Client

	endpoint string
	apiKey   string
	sender   mailer.Sender
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// New creates an HTTP API transport
func New(cfg Config, sender mailer.Sender) *Transport {
	client := retryablehttp.NewClient()
	client.Logger = logrus.StandardLogger()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	return &Transport{
		client:   client,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/emails",
		apiKey:   cfg.APIKey,
		sender:   sender,
	}
}

func (t *Transport) Send(ctx context.Context, msg mailer.Message) (string, error) {
	body, err := json.Marshal(sendRequest{
		From:    t.sender.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.Body,
		Text:    mailer.PlainText(msg.Body),
		ReplyTo: t.sender.ReplyTo,
	})
	if err != nil {
		return "", errors.Wrap(err, "Failed to encode email request")
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "Failed to create request")
	}

	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "Failed to send message to %s", msg.To)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 || resp.StatusCode <= 199 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("Unexpected response code %d received from email API: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "Failed to decode email API response")
	}
	return out.ID, nil
}

func (t *Transport) Close() error {
	t.client.HTTPClient.CloseIdleConnections()
	return nil
}
