package bounce

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/config"
)

// RawMessage is one unread message from the bounce mailbox
type RawMessage struct {
	UID  uint32
	Body []byte
}

// Mailbox is an open session on the bounce mailbox
type Mailbox interface {
	Unread(ctx context.Context) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

// Dialer opens a new mailbox session
type Dialer func(ctx context.Context) (Mailbox, error)

// IMAPMailbox reads the bounce mailbox over IMAP with TLS
type IMAPMailbox struct {
	client *client.Client
}

// IMAPDialer returns a Dialer that logs in with cfg on every call. Sweeps run
// minutes apart, so a session is opened per sweep rather than kept alive.
func IMAPDialer(cfg config.IMAPConfig) Dialer {
	return func(ctx context.Context) (Mailbox, error) {
		return DialIMAP(ctx, cfg)
	}
}

// DialIMAP connects, logs in and selects the configured mailbox
func DialIMAP(ctx context.Context, cfg config.IMAPConfig) (*IMAPMailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	return &IMAPMailbox{client: c}, nil
}

// Unread fetches every message without the \Seen flag. Bodies are fetched with
// BODY.PEEK so nothing is marked read until MarkSeen.
func (m *IMAPMailbox) Unread(ctx context.Context) ([]RawMessage, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		return []RawMessage{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- m.client.UidFetch(seqset, []imap.FetchItem{section.FetchItem(), imap.FetchUid}, messages)
	}()

	raw := make([]RawMessage, 0, len(uids))
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			logrus.Warnf("IMAP message %d has no body", msg.Uid)
			continue
		}
		body, err := io.ReadAll(r)
		if err != nil {
			logrus.Warnf("Failed to read IMAP message %d: %v", msg.Uid, err)
			continue
		}
		raw = append(raw, RawMessage{UID: msg.Uid, Body: body})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return raw, nil
}

func (m *IMAPMailbox) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := m.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to flag messages seen: %w", err)
	}
	return nil
}

func (m *IMAPMailbox) Close() error {
	return m.client.Logout()
}
