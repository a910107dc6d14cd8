package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/mailer"
	"campaign-mailer-go/internal/metrics"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/placeholder"
	"campaign-mailer-go/internal/repository"
)

// CampaignStore is the persistence the send pipeline needs
type CampaignStore interface {
	FindCampaignForSend(ctx context.Context, id uint) (*model.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id uint, status model.CampaignStatus) error
	UpdateRecipientStatus(ctx context.Context, campaignID, contactID uint, u repository.RecipientUpdate) (*model.CampaignRecipient, error)
}

// SendResult summarizes one send run
type SendResult struct {
	Message         string `json:"message"`
	Sent            int    `json:"sent"`
	Failed          int    `json:"failed"`
	TotalRecipients int    `json:"totalRecipients"`
}

// outcome of one delivery attempt: sentAt is set on success, reason on failure
type outcome struct {
	sentAt *time.Time
	reason string
}

// CampaignSender runs the send pipeline for one campaign at a time
type CampaignSender struct {
	store       CampaignStore
	transport   mailer.Transport
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

// SenderOption configures a CampaignSender
type SenderOption func(*CampaignSender)

// WithConcurrency sends to up to n recipients at once. n <= 1 is sequential.
func WithConcurrency(n int) SenderOption {
	return func(s *CampaignSender) {
		s.concurrency = n
	}
}

// WithClock overrides the time source used for sentAt
func WithClock(now func() time.Time) SenderOption {
	return func(s *CampaignSender) {
		s.now = now
	}
}

func NewCampaignSender(store CampaignStore, transport mailer.Transport, m *metrics.Metrics, opts ...SenderOption) *CampaignSender {
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	s := &CampaignSender{
		store:       store,
		transport:   transport,
		metrics:     m,
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSendable checks every send precondition without changing anything
// and returns the campaign loaded for sending.
func (s *CampaignSender) ValidateSendable(ctx context.Context, id uint) (*model.Campaign, error) {
	if id == 0 {
		return nil, apperrors.Validation("campaign id must be a positive integer")
	}

	campaign, err := s.store.FindCampaignForSend(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Template == nil {
		return nil, apperrors.NotFound("template %d for campaign %d not found", campaign.TemplateID, id)
	}
	if len(campaign.Recipients) == 0 {
		return nil, apperrors.ErrNoPendingRecipients
	}
	return campaign, nil
}

// SendCampaign delivers the campaign to every pending recipient. Delivery
// failures are recorded per recipient and never returned; only precondition
// and persistence errors are.
func (s *CampaignSender) SendCampaign(ctx context.Context, id uint) (*SendResult, error) {
	campaign, err := s.ValidateSendable(ctx, id)
	if err != nil {
		return nil, err
	}

	timer := prometheus.NewTimer(s.metrics.SendDuration)
	defer timer.ObserveDuration()

	// once started, a send runs to completion even if the caller goes away,
	// so no recipient is recorded Failed only because the caller left
	sendCtx := context.WithoutCancel(ctx)

	if err := s.store.UpdateCampaignStatus(sendCtx, id, model.CampaignSending); err != nil {
		return nil, fmt.Errorf("failed to mark campaign sending: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{
		"campaign_id": id,
		"recipients":  len(campaign.Recipients),
	})
	log.Info("Sending campaign")

	outcomes := make([]outcome, len(campaign.Recipients))
	if s.concurrency <= 1 {
		for i, r := range campaign.Recipients {
			outcomes[i] = s.deliver(sendCtx, campaign, r)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i, r := range campaign.Recipients {
			g.Go(func() error {
				outcomes[i] = s.deliver(sendCtx, campaign, r)
				return nil
			})
		}
		g.Wait()
	}

	total := len(outcomes)
	sent := 0
	for _, o := range outcomes {
		if o.sentAt != nil {
			sent++
		}
	}
	failed := total - sent

	status := aggregateStatus(sent, failed, total)
	if err := s.store.UpdateCampaignStatus(sendCtx, id, status); err != nil {
		return nil, fmt.Errorf("failed to record campaign status: %w", err)
	}
	s.metrics.CampaignsSent.WithLabelValues(string(status)).Inc()

	log.WithFields(logrus.Fields{
		"sent":   sent,
		"failed": failed,
		"status": status,
	}).Info("Campaign send finished")

	return &SendResult{
		Message:         fmt.Sprintf("Campaign sent: %d succeeded, %d failed out of %d recipients", sent, failed, total),
		Sent:            sent,
		Failed:          failed,
		TotalRecipients: total,
	}, nil
}

// deliver renders and sends one recipient's message and records the result
func (s *CampaignSender) deliver(ctx context.Context, campaign *model.Campaign, r model.CampaignRecipient) outcome {
	var o outcome
	var messageID string

	if r.Contact == nil {
		o.reason = fmt.Sprintf("contact %d not found", r.ContactID)
	} else {
		rendered := placeholder.Render(campaign.Template.Subject, campaign.Template.Body, r.Contact.Variables())
		id, err := s.transport.Send(ctx, mailer.Message{
			To:      r.Contact.Email,
			Subject: rendered.Subject,
			Body:    rendered.Body,
		})
		if err != nil {
			o.reason = apperrors.Transport(err, "failed to send to %s", r.Contact.Email).Error()
		} else {
			sentAt := s.now()
			o.sentAt = &sentAt
			messageID = id
		}
	}

	update := repository.RecipientUpdate{Status: model.RecipientSent, SentAt: o.sentAt, MessageID: messageID}
	if o.sentAt == nil {
		update = repository.RecipientUpdate{Status: model.RecipientFailed, Error: o.reason}
		s.metrics.RecipientSends.WithLabelValues("failed").Inc()
		logrus.WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"contact_id":  r.ContactID,
		}).Warn(o.reason)
	} else {
		s.metrics.RecipientSends.WithLabelValues("sent").Inc()
	}

	if _, err := s.store.UpdateRecipientStatus(ctx, campaign.ID, r.ContactID, update); err != nil {
		logrus.WithFields(logrus.Fields{
			"campaign_id": campaign.ID,
			"contact_id":  r.ContactID,
			"status":      update.Status,
		}).Errorf("Failed to record recipient status: %v", err)
	}
	return o
}

func aggregateStatus(sent, failed, total int) model.CampaignStatus {
	switch {
	case failed == total:
		return model.CampaignFailed
	case sent == total:
		return model.CampaignSent
	default:
		return model.CampaignPartiallySent
	}
}
