package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/placeholder"
	"campaign-mailer-go/internal/repository"
)

// CampaignInput creates a campaign
type CampaignInput struct {
	Name        string     `json:"name" validate:"required,max=255"`
	TemplateID  uint       `json:"templateId" validate:"required,gt=0"`
	ContactIDs  []uint     `json:"contactIds" validate:"required,min=1,dive,gt=0"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// CampaignPatch changes a campaign that has not been sent yet. A non-nil
// ContactIDs replaces the recipient set. Unschedule clears ScheduledAt.
type CampaignPatch struct {
	Name        *string    `json:"name" validate:"omitempty,max=255"`
	TemplateID  *uint      `json:"templateId" validate:"omitempty,gt=0"`
	ContactIDs  []uint     `json:"contactIds" validate:"omitempty,min=1,dive,gt=0"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	Unschedule  bool       `json:"unschedule"`
}

// CampaignStats counts a campaign's recipients by status
type CampaignStats struct {
	CampaignID uint                            `json:"campaignId"`
	Status     model.CampaignStatus            `json:"status"`
	Total      int64                           `json:"total"`
	ByStatus   map[model.RecipientStatus]int64 `json:"byStatus"`
}

// Preview is a campaign's message rendered for one contact
type Preview struct {
	ContactID uint   `json:"contactId"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// CampaignService manages campaigns and their recipient lists
type CampaignService struct {
	campaigns *repository.CampaignRepository
	templates *repository.TemplateRepository
	contacts  *repository.ContactRepository
}

func NewCampaignService(repos *repository.Repositories) *CampaignService {
	return &CampaignService{
		campaigns: repos.Campaigns,
		templates: repos.Templates,
		contacts:  repos.Contacts,
	}
}

func (s *CampaignService) Create(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if err := s.checkTemplate(ctx, in.TemplateID); err != nil {
		return nil, err
	}
	contactIDs, err := s.checkContacts(ctx, in.ContactIDs)
	if err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:        in.Name,
		TemplateID:  in.TemplateID,
		ScheduledAt: in.ScheduledAt,
		Status:      statusFor(in.ScheduledAt),
	}
	if err := s.campaigns.Create(ctx, c, contactIDs); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"recipients":  len(contactIDs),
		"status":      c.Status,
	}).Info("Campaign created")
	return s.campaigns.Get(ctx, c.ID)
}

func (s *CampaignService) Get(ctx context.Context, id uint) (*model.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

func (s *CampaignService) List(ctx context.Context, f repository.CampaignFilter) ([]model.Campaign, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperrors.Validation("unknown campaign status %q", f.Status)
	}
	return s.campaigns.List(ctx, f)
}

func (s *CampaignService) Update(ctx context.Context, id uint, patch CampaignPatch) (*model.Campaign, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Editable() {
		return nil, apperrors.Conflict("campaign %d is %s and can no longer be changed", id, c.Status)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.Validation("name is required")
		}
		c.Name = name
	}
	if patch.TemplateID != nil && *patch.TemplateID != c.TemplateID {
		if err := s.checkTemplate(ctx, *patch.TemplateID); err != nil {
			return nil, err
		}
		c.TemplateID = *patch.TemplateID
		c.Template = nil
	}

	var contactIDs []uint
	if patch.ContactIDs != nil {
		if len(patch.ContactIDs) == 0 {
			return nil, apperrors.Validation("contactIds cannot be empty")
		}
		if contactIDs, err = s.checkContacts(ctx, patch.ContactIDs); err != nil {
			return nil, err
		}
	}

	switch {
	case patch.Unschedule:
		c.ScheduledAt = nil
		c.Status = model.CampaignDraft
	case patch.ScheduledAt != nil:
		c.ScheduledAt = patch.ScheduledAt
		c.Status = model.CampaignScheduled
	}

	if err := s.campaigns.Update(ctx, c, contactIDs); err != nil {
		return nil, err
	}
	return s.campaigns.Get(ctx, id)
}

// Delete removes a campaign and its recipient rows. A campaign that is
// currently sending cannot be deleted.
func (s *CampaignService) Delete(ctx context.Context, id uint) error {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == model.CampaignSending {
		return apperrors.Conflict("campaign %d is sending", id)
	}
	if err := s.campaigns.Delete(ctx, id); err != nil {
		return err
	}
	logrus.WithField("campaign_id", id).Info("Campaign deleted")
	return nil
}

func (s *CampaignService) Stats(ctx context.Context, id uint) (*CampaignStats, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.campaigns.RecipientStats(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &CampaignStats{CampaignID: id, Status: c.Status, ByStatus: byStatus}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

func (s *CampaignService) Recipients(ctx context.Context, id uint, page repository.Page) ([]model.CampaignRecipient, int64, error) {
	if _, err := s.campaigns.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.campaigns.ListRecipients(ctx, id, page)
}

// Preview renders the campaign's template for one contact exactly as a send would
func (s *CampaignService) Preview(ctx context.Context, id, contactID uint) (*Preview, error) {
	if contactID == 0 {
		return nil, apperrors.Validation("contactId is required")
	}

	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Template == nil {
		return nil, apperrors.NotFound("template %d for campaign %d not found", c.TemplateID, id)
	}
	contact, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}

	rendered := placeholder.Render(c.Template.Subject, c.Template.Body, contact.Variables())
	return &Preview{
		ContactID: contact.ID,
		To:        contact.Email,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
	}, nil
}

// RecordEvent applies a post-delivery event (Opened, Clicked, Bounced) to a recipient
func (s *CampaignService) RecordEvent(ctx context.Context, campaignID, contactID uint, status model.RecipientStatus) (*model.CampaignRecipient, error) {
	switch status {
	case model.RecipientOpened, model.RecipientClicked, model.RecipientBounced:
	default:
		return nil, apperrors.Validation("status must be one of Opened, Clicked, Bounced")
	}
	return s.campaigns.UpdateRecipientStatus(ctx, campaignID, contactID, repository.RecipientUpdate{Status: status})
}

// DueScheduled returns Scheduled campaigns whose time has come
func (s *CampaignService) DueScheduled(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	return s.campaigns.FindDueScheduled(ctx, now)
}

// FailScheduled retires a Scheduled campaign that can never be sent so the
// scheduler stops picking it up
func (s *CampaignService) FailScheduled(ctx context.Context, id uint) (bool, error) {
	return s.campaigns.FailScheduled(ctx, id)
}

func (s *CampaignService) checkTemplate(ctx context.Context, id uint) error {
	t, err := s.templates.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Archived {
		return apperrors.Validation("template %d is archived", id)
	}
	return nil
}

// checkContacts deduplicates ids and requires every contact to exist and be active
func (s *CampaignService) checkContacts(ctx context.Context, ids []uint) ([]uint, error) {
	seen := make(map[uint]bool, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	contacts, err := s.contacts.FindByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	found := make(map[uint]bool, len(contacts))
	for _, c := range contacts {
		if c.Archived {
			return nil, apperrors.Validation("contact %d is archived", c.ID)
		}
		found[c.ID] = true
	}
	for _, id := range unique {
		if !found[id] {
			return nil, apperrors.Validation("contact %d does not exist", id)
		}
	}
	return unique, nil
}

func statusFor(scheduledAt *time.Time) model.CampaignStatus {
	if scheduledAt != nil {
		return model.CampaignScheduled
	}
	return model.CampaignDraft
}
