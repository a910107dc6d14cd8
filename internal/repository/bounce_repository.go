package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"campaign-mailer-go/internal/model"
)

// BounceRepository remembers which bounce notifications were already applied
type BounceRepository struct {
	db *gorm.DB
}

func NewBounceRepository(db *gorm.DB) *BounceRepository {
	return &BounceRepository{db: db}
}

func (r *BounceRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ProcessedBounce{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	if err != nil {
		return false, notFoundOr(err, "processed bounce")
	}
	return count > 0, nil
}

func (r *BounceRepository) MarkProcessed(ctx context.Context, messageID string, recipients int, bounced int64) error {
	row := &model.ProcessedBounce{
		MessageID:   messageID,
		Recipients:  recipients,
		Bounced:     bounced,
		ProcessedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return writeError(err, "record processed bounce")
	}
	return nil
}
