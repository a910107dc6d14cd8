package model

import (
	"time"
)

// Field limits for templates
const (
	MaxTemplateNameLength    = 255
	MaxTemplateSubjectLength = 255
	MaxTemplateBodyLength    = 10000
)

// Template is a reusable subject/body pair with {{placeholder}} tokens
type Template struct {
	ID                 uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Name               string     `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Subject            string     `json:"subject" gorm:"type:varchar(255);not null"`
	Body               string     `json:"body" gorm:"type:text;not null"`
	Archived           bool       `json:"archived" gorm:"not null;default:false;index"`
	CustomPlaceholders StringList `json:"customPlaceholders" gorm:"type:text"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for Template
func (Template) TableName() string {
	return "templates"
}
