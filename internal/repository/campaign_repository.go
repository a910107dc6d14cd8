package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/model"
)

// CampaignFilter narrows a campaign listing
type CampaignFilter struct {
	Status model.CampaignStatus
	Page   Page
}

// RecipientUpdate is one status change for a campaign recipient. SentAt,
// MessageID and Error are only written when set.
type RecipientUpdate struct {
	Status    model.RecipientStatus
	SentAt    *time.Time
	MessageID string
	Error     string
}

// CampaignRepository persists campaigns and their recipients
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a campaign store
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts the campaign and one Scheduled recipient row per contact
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign, contactIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Template", "Recipients").Create(c).Error; err != nil {
			return writeError(err, "create campaign")
		}
		return addRecipients(tx, c.ID, contactIDs)
	})
}

func (r *CampaignRepository) Get(ctx context.Context, id uint) (*model.Campaign, error) {
	var c model.Campaign
	if err := r.db.WithContext(ctx).Preload("Template").First(&c, id).Error; err != nil {
		return nil, notFoundOr(err, "campaign %d not found", id)
	}
	return &c, nil
}

func (r *CampaignRepository) List(ctx context.Context, f CampaignFilter) ([]model.Campaign, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Campaign{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, notFoundOr(err, "campaigns")
	}

	var campaigns []model.Campaign
	if err := f.Page.scope(q).Order("id DESC").Find(&campaigns).Error; err != nil {
		return nil, 0, notFoundOr(err, "campaigns")
	}
	return campaigns, total, nil
}

// Update saves the campaign row. When contactIDs is non-nil the recipient set
// is replaced: rows for dropped contacts are removed and new contacts are
// added as Scheduled. Rows for contacts that stay are left untouched.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign, contactIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Template", "Recipients").Save(c).Error; err != nil {
			return writeError(err, "update campaign")
		}
		if contactIDs == nil {
			return nil
		}

		var existing []uint
		if err := tx.Model(&model.CampaignRecipient{}).Where("campaign_id = ?", c.ID).Pluck("contact_id", &existing).Error; err != nil {
			return fmt.Errorf("failed to load recipients: %w", err)
		}

		keep := make(map[uint]bool, len(contactIDs))
		for _, id := range contactIDs {
			keep[id] = true
		}
		have := make(map[uint]bool, len(existing))
		var dropped []uint
		for _, id := range existing {
			have[id] = true
			if !keep[id] {
				dropped = append(dropped, id)
			}
		}
		if len(dropped) > 0 {
			if err := tx.Where("campaign_id = ? AND contact_id IN ?", c.ID, dropped).Delete(&model.CampaignRecipient{}).Error; err != nil {
				return fmt.Errorf("failed to remove recipients: %w", err)
			}
		}

		var added []uint
		for _, id := range contactIDs {
			if !have[id] {
				added = append(added, id)
			}
		}
		return addRecipients(tx, c.ID, added)
	})
}

// Delete removes the campaign together with its recipient rows
func (r *CampaignRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&model.CampaignRecipient{}).Error; err != nil {
			return fmt.Errorf("failed to delete recipients: %w", err)
		}
		if err := tx.Delete(&model.Campaign{}, id).Error; err != nil {
			return writeError(err, "delete campaign")
		}
		return nil
	})
}

// FindCampaignForSend loads a campaign with its template and its pending
// recipients (each with its contact) in recipient insertion order.
func (r *CampaignRepository) FindCampaignForSend(ctx context.Context, id uint) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.WithContext(ctx).
		Preload("Template").
		Preload("Recipients", func(db *gorm.DB) *gorm.DB {
			return db.Where("status IN ?", model.PendingRecipientStatuses).Order("id")
		}).
		Preload("Recipients.Contact").
		First(&c, id).Error
	if err != nil {
		return nil, notFoundOr(err, "campaign %d not found", id)
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateCampaignStatus(ctx context.Context, id uint, status model.CampaignStatus) error {
	result := r.db.WithContext(ctx).Model(&model.Campaign{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update campaign status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("campaign %d not found", id)
	}
	return nil
}

// FailScheduled moves a campaign that is still Scheduled to Failed and
// reports whether it did
func (r *CampaignRepository) FailScheduled(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ? AND status = ?", id, model.CampaignScheduled).
		Update("status", model.CampaignFailed)
	if result.Error != nil {
		return false, fmt.Errorf("failed to fail scheduled campaign: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// UpdateRecipientStatus changes one (campaign, contact) row and returns it
func (r *CampaignRepository) UpdateRecipientStatus(ctx context.Context, campaignID, contactID uint, u RecipientUpdate) (*model.CampaignRecipient, error) {
	db := r.db.WithContext(ctx)

	var rec model.CampaignRecipient
	if err := db.Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).First(&rec).Error; err != nil {
		return nil, notFoundOr(err, "recipient for campaign %d and contact %d not found", campaignID, contactID)
	}

	updates := map[string]interface{}{"status": u.Status}
	if u.SentAt != nil {
		updates["sent_at"] = *u.SentAt
	}
	if u.MessageID != "" {
		updates["message_id"] = u.MessageID
	}
	if u.Error != "" {
		updates["error_msg"] = u.Error
	}

	if err := db.Model(&model.CampaignRecipient{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update recipient status: %w", err)
	}

	if err := db.First(&rec, rec.ID).Error; err != nil {
		return nil, notFoundOr(err, "recipient %d not found", rec.ID)
	}
	return &rec, nil
}

// RecipientStats counts the campaign's recipients by status
func (r *CampaignRepository) RecipientStats(ctx context.Context, id uint) (map[model.RecipientStatus]int64, error) {
	var rows []struct {
		Status model.RecipientStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.CampaignRecipient{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", id).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count recipients: %w", err)
	}

	stats := make(map[model.RecipientStatus]int64, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}

// ListRecipients pages through a campaign's recipients with their contacts
func (r *CampaignRepository) ListRecipients(ctx context.Context, id uint, page Page) ([]model.CampaignRecipient, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.CampaignRecipient{}).Where("campaign_id = ?", id)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count recipients: %w", err)
	}

	var recipients []model.CampaignRecipient
	if err := page.scope(q).Preload("Contact").Order("id").Find(&recipients).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recipients, total, nil
}

// FindDueScheduled returns Scheduled campaigns whose send time has passed
func (r *CampaignRepository) FindDueScheduled(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", model.CampaignScheduled, now).
		Order("scheduled_at").
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due campaigns: %w", err)
	}
	return campaigns, nil
}

// MarkBounced moves the one Sent recipient a bounce refers to to Bounced and
// returns how many rows changed. The row whose provider message id matches
// one of messageIDs wins; without a match the most recently sent row
// addressed to email is used.
func (r *CampaignRepository) MarkBounced(ctx context.Context, email string, messageIDs []string) (int64, error) {
	db := r.db.WithContext(ctx)
	sentTo := func() *gorm.DB {
		contactIDs := db.Model(&model.Contact{}).Select("id").Where("LOWER(email) = LOWER(?)", email)
		return db.Model(&model.CampaignRecipient{}).
			Where("status = ? AND contact_id IN (?)", model.RecipientSent, contactIDs)
	}

	var target model.CampaignRecipient
	found := false
	if ids := messageIDCandidates(messageIDs); len(ids) > 0 {
		err := sentTo().Where("message_id IN ?", ids).Order("id DESC").Take(&target).Error
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return 0, fmt.Errorf("failed to find bounced message: %w", err)
		}
	}
	if !found {
		err := sentTo().Order("sent_at IS NULL").Order("sent_at DESC").Order("id DESC").Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to find bounced recipient: %w", err)
		}
	}

	result := db.Model(&model.CampaignRecipient{}).
		Where("id = ? AND status = ?", target.ID, model.RecipientSent).
		Update("status", model.RecipientBounced)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark bounced: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// messageIDCandidates lists the forms a provider may have stored a
// Message-ID in: with or without angle brackets, or only its local part as
// SES returns it.
func messageIDCandidates(messageIDs []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, id := range messageIDs {
		bare := strings.Trim(strings.TrimSpace(id), "<>")
		if bare == "" {
			continue
		}
		add(bare)
		add("<" + bare + ">")
		if i := strings.Index(bare, "@"); i > 0 {
			add(bare[:i])
		}
	}
	return out
}

func addRecipients(tx *gorm.DB, campaignID uint, contactIDs []uint) error {
	if len(contactIDs) == 0 {
		return nil
	}
	rows := make([]model.CampaignRecipient, 0, len(contactIDs))
	for _, id := range contactIDs {
		rows = append(rows, model.CampaignRecipient{
			CampaignID: campaignID,
			ContactID:  id,
			Status:     model.RecipientScheduled,
		})
	}
	if err := tx.Omit("Contact").Create(&rows).Error; err != nil {
		return writeError(err, "add recipients")
	}
	return nil
}
