package model

import (
	"time"
)

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

// Campaign statuses
const (
	CampaignDraft         CampaignStatus = "Draft"
	CampaignScheduled     CampaignStatus = "Scheduled"
	CampaignSending       CampaignStatus = "Sending"
	CampaignSent          CampaignStatus = "Sent"
	CampaignPartiallySent CampaignStatus = "Partially Sent"
	CampaignFailed        CampaignStatus = "Failed"
)

// Valid reports whether s is a known campaign status
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignPartiallySent, CampaignFailed:
		return true
	}
	return false
}

// Editable reports whether a campaign in this status may still be changed
func (s CampaignStatus) Editable() bool {
	return s == CampaignDraft || s == CampaignScheduled
}

// RecipientStatus is the delivery state of one contact within a campaign
type RecipientStatus string

// Recipient statuses. RecipientDraft never comes from this service but
// rows carrying it are still treated as pending.
const (
	RecipientDraft     RecipientStatus = "Draft"
	RecipientScheduled RecipientStatus = "Scheduled"
	RecipientSent      RecipientStatus = "Sent"
	RecipientFailed    RecipientStatus = "Failed"
	RecipientOpened    RecipientStatus = "Opened"
	RecipientClicked   RecipientStatus = "Clicked"
	RecipientBounced   RecipientStatus = "Bounced"
)

// PendingRecipientStatuses are the statuses eligible for a send attempt
var PendingRecipientStatuses = []RecipientStatus{RecipientScheduled, RecipientDraft}

// Valid reports whether s is a known recipient status
func (s RecipientStatus) Valid() bool {
	switch s {
	case RecipientDraft, RecipientScheduled, RecipientSent, RecipientFailed,
		RecipientOpened, RecipientClicked, RecipientBounced:
		return true
	}
	return false
}

// Pending reports whether a recipient in this status should be sent to
func (s RecipientStatus) Pending() bool {
	return s == RecipientScheduled || s == RecipientDraft
}

// Campaign is one batch send of a template to a set of contacts
type Campaign struct {
	ID          uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string         `json:"name" gorm:"type:varchar(255);not null"`
	Status      CampaignStatus `json:"status" gorm:"type:varchar(50);not null;index"`
	TemplateID  uint           `json:"templateId" gorm:"not null;index"`
	ScheduledAt *time.Time     `json:"scheduledAt,omitempty" gorm:"index"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`

	Template   *Template           `json:"template,omitempty" gorm:"foreignKey:TemplateID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Recipients []CampaignRecipient `json:"recipients,omitempty" gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Campaign
func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignRecipient joins a campaign to a contact and tracks delivery
type CampaignRecipient struct {
	ID         uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	CampaignID uint            `json:"campaignId" gorm:"not null;uniqueIndex:idx_campaign_contact"`
	ContactID  uint            `json:"contactId" gorm:"not null;uniqueIndex:idx_campaign_contact;index"`
	Status     RecipientStatus `json:"status" gorm:"type:varchar(50);not null;index"`
	SentAt     *time.Time      `json:"sentAt,omitempty"`
	MessageID  string          `json:"messageId,omitempty" gorm:"type:varchar(255)"`
	ErrorMsg   string          `json:"errorMsg,omitempty" gorm:"type:text"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`

	Contact *Contact `json:"contact,omitempty" gorm:"foreignKey:ContactID;constraint:OnDelete:RESTRICT"`
}

// TableName specifies the table name for CampaignRecipient
func (CampaignRecipient) TableName() string {
	return "campaign_recipients"
}

// All returns every model, in migration order
func All() []interface{} {
	return []interface{}{&Template{}, &Contact{}, &Campaign{}, &CampaignRecipient{}, &ProcessedBounce{}}
}
