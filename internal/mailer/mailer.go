// Package mailer delivers rendered campaign messages through a pluggable
// transport. Provider implementations live in the subpackages.
package mailer

import (
	"context"
)

// Message is one rendered email for one recipient. Body is HTML.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport sends a message and returns the provider's message id
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
	Close() error
}

// Sender identifies who campaign mail comes from
type Sender struct {
	From    string
	ReplyTo string
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, msg Message) (string, error)

// Send calls f
func (f TransportFunc) Send(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}

// Close does nothing
func (f TransportFunc) Close() error {
	return nil
}
