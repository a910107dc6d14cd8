package model

import (
	"time"
)

// ProcessedBounce records a bounce notification that has already been applied,
// keyed by its Message-ID so a sweep never counts the same report twice.
type ProcessedBounce struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string    `json:"messageId" gorm:"type:varchar(255);not null;uniqueIndex"`
	Recipients  int       `json:"recipients"`
	Bounced     int64     `json:"bounced"`
	ProcessedAt time.Time `json:"processedAt"`
}

func (ProcessedBounce) TableName() string {
	return "processed_bounces"
}
