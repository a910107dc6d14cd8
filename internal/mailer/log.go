package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogTransport writes messages to the log instead of delivering them
type LogTransport struct {
	logger *logrus.Entry
	sender Sender
}

// NewLogTransport creates a transport for development setups
func NewLogTransport(sender Sender) *LogTransport {
	return &LogTransport{
		logger: logrus.WithField("transport", "log"),
		sender: sender,
	}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	t.logger.WithFields(logrus.Fields{
		"message_id": id,
		"from":       t.sender.From,
		"to":         msg.To,
		"subject":    msg.Subject,
		"body_bytes": len(msg.Body),
	}).Info("Email delivered to log")
	return id, nil
}

func (t *LogTransport) Close() error {
	return nil
}
