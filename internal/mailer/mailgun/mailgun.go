// Package mailgun sends campaign mail through the Mailgun API
package mailgun

import (
	"context"

	"github.com/mailgun/mailgun-go/v3"
	"github.com/pkg/errors"

	"campaign-mailer-go/internal/mailer"
)

type Option func(t *Transport) error

func SetFrom(from string) Option {
	return func(t *Transport) error {
		t.from = from
		return nil
	}
}

func SetReplyTo(replyTo string) Option {
	return func(t *Transport) error {
		t.replyTo = replyTo
		return nil
	}
}

// SetAPIBase points the client at another Mailgun region or a test server
func SetAPIBase(base string) Option {
	return func(t *Transport) error {
		if base == "" {
			return nil
		}
		impl, ok := t.mg.(*mailgun.MailgunImpl)
		if !ok {
			return errors.New("api base can only be set on the default client")
		}
		impl.SetAPIBase(base)
		return nil
	}
}

type Transport struct {
	mg mailgun.Mailgun

	from    string
	replyTo string
}

// New creates a Mailgun transport for domain
func New(domain, apiKey string, options ...Option) (*Transport, error) {
	return NewWithClient(mailgun.NewMailgun(domain, apiKey), options...)
}

func NewWithClient(client mailgun.Mailgun, options ...Option) (*Transport, error) {
	t := &Transport{mg: client}

	for _, option := range options {
		if err := option(t); err != nil {
			return nil, errors.Wrap(err, "Failed to apply mailgun option")
		}
	}

	return t, nil
}

func (t *Transport) Send(ctx context.Context, msg mailer.Message) (string, error) {
	m := t.mg.NewMessage(t.from, msg.Subject, mailer.PlainText(msg.Body), msg.To)
	m.SetHtml(msg.Body)

	if t.replyTo != "" {
		m.SetReplyTo(t.replyTo)
	}

	_, id, err := t.mg.Send(ctx, m)
	if err != nil {
		return "", errors.Wrapf(err, "Failed to send message to %s", msg.To)
	}
	return id, nil
}

func (t *Transport) Close() error {
	return nil
}
