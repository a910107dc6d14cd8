package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"campaign-mailer-go/internal/apperrors"
)

// Pagination limits
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects one slice of a listing. Zero values mean the first page at
// the default size.
type Page struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"pageSize"`
}

// Normalize clamps the page into the supported range
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) scope(db *gorm.DB) *gorm.DB {
	p = p.Normalize()
	return db.Offset((p.Page - 1) * p.PageSize).Limit(p.PageSize)
}

// Repositories bundles the stores the services need
type Repositories struct {
	Templates *TemplateRepository
	Contacts  *ContactRepository
	Campaigns *CampaignRepository
	Bounces   *BounceRepository
}

// New creates all repositories over one connection
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Templates: NewTemplateRepository(db),
		Contacts:  NewContactRepository(db),
		Campaigns: NewCampaignRepository(db),
		Bounces:   NewBounceRepository(db),
	}
}

func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(format, args...)
	}
	return fmt.Errorf("database error: %w", err)
}

func writeError(err error, op string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Conflict("%s: duplicate value", op)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
