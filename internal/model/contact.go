package model

import (
	"sort"
	"strings"
	"time"
)

// Contact is a person campaigns can be sent to
type Contact struct {
	ID        uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Email     string     `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	FirstName string     `json:"firstName" gorm:"type:varchar(255);not null"`
	LastName  *string    `json:"lastName" gorm:"type:varchar(255)"`
	Company   *string    `json:"company" gorm:"type:varchar(255)"`
	Tags      StringList `json:"tags" gorm:"type:text"`
	Archived  bool       `json:"archived" gorm:"not null;default:false;index"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for Contact
func (Contact) TableName() string {
	return "contacts"
}

// Variables returns the personalization values every send supplies.
// Absent optional fields map to the empty string.
func (c Contact) Variables() map[string]string {
	return map[string]string{
		"firstName": c.FirstName,
		"lastName":  deref(c.LastName),
		"email":     c.Email,
		"company":   deref(c.Company),
	}
}

// NormalizeTags trims, drops empties, deduplicates and sorts tags
func NormalizeTags(tags []string) StringList {
	seen := make(map[string]struct{}, len(tags))
	out := make(StringList, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
