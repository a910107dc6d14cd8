// Package ses sends campaign mail through Amazon SES
package ses

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/pkg/errors"

	"campaign-mailer-go/internal/mailer"
)

const charset = "UTF-8"

type Transport struct {
	ses sesiface.SESAPI

	sender mailer.Sender
}

// New creates an SES transport in region using the default credential chain
func New(region string, sender mailer.Sender) (*Transport, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create AWS session")
	}
	return NewWithClient(ses.New(sess), sender), nil
}

func NewWithClient(client sesiface.SESAPI, sender mailer.Sender) *Transport {
	return &Transport{ses: client, sender: sender}
}

func (t *Transport) Send(ctx context.Context, msg mailer.Message) (string, error) {
	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(msg.To)},
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Html: &ses.Content{
					Charset: aws.String(charset),
					Data:    aws.String(msg.Body),
				},
				Text: &ses.Content{
					Charset: aws.String(charset),
					Data:    aws.String(mailer.PlainText(msg.Body)),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(charset),
				Data:    aws.String(msg.Subject),
			},
		},
		Source: aws.String(t.sender.From),
	}
	if t.sender.ReplyTo != "" {
		input.ReplyToAddresses = []*string{aws.String(t.sender.ReplyTo)}
	}

	out, err := t.ses.SendEmailWithContext(ctx, input)
	if err != nil {
		return "", errors.Wrapf(err, "Failed to send message to %s", msg.To)
	}
	return aws.StringValue(out.MessageId), nil
}

func (t *Transport) Close() error {
	return nil
}
