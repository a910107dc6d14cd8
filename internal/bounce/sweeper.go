package bounce

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/metrics"
)

// RecipientStore moves the delivered recipient a bounce names to Bounced.
// messageIDs identify the returned message when the notification carries it.
type RecipientStore interface {
	MarkBounced(ctx context.Context, email string, messageIDs []string) (int64, error)
}

// Ledger remembers applied notifications
type Ledger interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string, recipients int, bounced int64) error
}

// SweepResult summarizes one pass over the bounce mailbox
type SweepResult struct {
	Messages   int   `json:"messages"`
	Reports    int   `json:"reports"`
	Duplicates int   `json:"duplicates"`
	Ignored    int   `json:"ignored"`
	Bounced    int64 `json:"bounced"`
}

// Sweeper applies bounce notifications to campaign recipients
type Sweeper struct {
	dial       Dialer
	recipients RecipientStore
	ledger     Ledger
	metrics    *metrics.Metrics
}

func NewSweeper(dial Dialer, recipients RecipientStore, ledger Ledger, m *metrics.Metrics) *Sweeper {
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	return &Sweeper{dial: dial, recipients: recipients, ledger: ledger, metrics: m}
}

// Sweep reads every unread message, marks the recipients each bounce names
// and flags the handled messages seen. Messages that fail to parse or apply
// stay unread and are retried on the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	mb, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer mb.Close()

	messages, err := mb.Unread(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Messages: len(messages)}
	handled := make([]uint32, 0, len(messages))

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			break
		}

		kind, bounced, err := s.apply(ctx, msg)
		if err != nil {
			logrus.WithField("uid", msg.UID).Warnf("Failed to apply bounce: %v", err)
			continue
		}
		handled = append(handled, msg.UID)
		switch kind {
		case applied:
			result.Reports++
			result.Bounced += bounced
		case duplicate:
			result.Duplicates++
		default:
			result.Ignored++
		}
	}

	if err := mb.MarkSeen(ctx, handled); err != nil {
		return result, err
	}

	s.metrics.BouncesRecorded.Add(float64(result.Bounced))
	logrus.WithFields(logrus.Fields{
		"messages":   result.Messages,
		"reports":    result.Reports,
		"duplicates": result.Duplicates,
		"ignored":    result.Ignored,
		"bounced":    result.Bounced,
	}).Info("Bounce sweep finished")

	return result, nil
}

type applyKind int

const (
	ignored applyKind = iota
	applied
	duplicate
)

// apply marks the recipients one message reports as bounced
func (s *Sweeper) apply(ctx context.Context, msg RawMessage) (applyKind, int64, error) {
	report, err := Parse(bytes.NewReader(msg.Body))
	if err != nil {
		return ignored, 0, err
	}
	if len(report.Recipients) == 0 {
		return ignored, 0, nil
	}

	key := report.MessageID
	if key == "" {
		key = "uid:" + strconv.FormatUint(uint64(msg.UID), 10)
	}

	done, err := s.ledger.IsProcessed(ctx, key)
	if err != nil {
		return ignored, 0, err
	}
	if done {
		return duplicate, 0, nil
	}

	var bounced int64
	for _, addr := range report.Recipients {
		n, err := s.recipients.MarkBounced(ctx, addr, report.OriginalMessageIDs)
		if err != nil {
			return ignored, 0, fmt.Errorf("failed to mark %s bounced: %w", addr, err)
		}
		bounced += n
	}

	if err := s.ledger.MarkProcessed(ctx, key, len(report.Recipients), bounced); err != nil {
		return ignored, 0, err
	}
	return applied, bounced, nil
}
