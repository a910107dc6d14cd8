package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"campaign-mailer-go/internal/model"
)

// ContactFilter narrows a contact listing
type ContactFilter struct {
	Search   string
	Tag      string
	Archived *bool
	Page     Page
}

// ContactRepository persists contacts
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a contact store
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return writeError(err, "create contact")
	}
	return nil
}

func (r *ContactRepository) Get(ctx context.Context, id uint) (*model.Contact, error) {
	var c model.Contact
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFoundOr(err, "contact %d not found", id)
	}
	return &c, nil
}

func (r *ContactRepository) List(ctx context.Context, f ContactFilter) ([]model.Contact, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Contact{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(company) LIKE ?",
			like, like, like, like)
	}
	if f.Tag != "" {
		// tags are stored as a sorted JSON array of strings
		q = q.Where("tags LIKE ?", `%"`+f.Tag+`"%`)
	}
	if f.Archived != nil {
		q = q.Where("archived = ?", *f.Archived)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, notFoundOr(err, "contacts")
	}

	var contacts []model.Contact
	if err := f.Page.scope(q).Order("id").Find(&contacts).Error; err != nil {
		return nil, 0, notFoundOr(err, "contacts")
	}
	return contacts, total, nil
}

// FindByIDs loads the given contacts; missing ids are silently absent
func (r *ContactRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Contact, error) {
	var contacts []model.Contact
	if len(ids) == 0 {
		return contacts, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&contacts).Error; err != nil {
		return nil, notFoundOr(err, "contacts")
	}
	return contacts, nil
}

func (r *ContactRepository) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	var c model.Contact
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&c).Error; err != nil {
		return nil, notFoundOr(err, "contact %s not found", email)
	}
	return &c, nil
}

func (r *ContactRepository) Update(ctx context.Context, c *model.Contact) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return writeError(err, "update contact")
	}
	return nil
}

func (r *ContactRepository) SetArchived(ctx context.Context, id uint, archived bool) error {
	result := r.db.WithContext(ctx).Model(&model.Contact{}).Where("id = ?", id).Update("archived", archived)
	if result.Error != nil {
		return writeError(result.Error, "archive contact")
	}
	return nil
}

func (r *ContactRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Contact{}, id).Error; err != nil {
		return writeError(err, "delete contact")
	}
	return nil
}

// EmailTaken reports whether another contact already uses email
func (r *ContactRepository) EmailTaken(ctx context.Context, email string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("email = ? AND id <> ?", email, excludeID).
		Count(&count).Error
	if err != nil {
		return false, notFoundOr(err, "contact")
	}
	return count > 0, nil
}

// IsReferenced reports whether the contact is a recipient of any campaign
func (r *ContactRepository) IsReferenced(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.CampaignRecipient{}).Where("contact_id = ?", id).Count(&count).Error; err != nil {
		return false, notFoundOr(err, "campaign recipient")
	}
	return count > 0, nil
}
