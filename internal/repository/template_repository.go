package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"campaign-mailer-go/internal/model"
)

// TemplateFilter narrows a template listing
type TemplateFilter struct {
	Search   string
	Archived *bool
	Page     Page
}

// TemplateRepository persists templates
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a template store
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return writeError(err, "create template")
	}
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, id uint) (*model.Template, error) {
	var t model.Template
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFoundOr(err, "template %d not found", id)
	}
	return &t, nil
}

func (r *TemplateRepository) List(ctx context.Context, f TemplateFilter) ([]model.Template, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Template{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(subject) LIKE ?", like, like)
	}
	if f.Archived != nil {
		q = q.Where("archived = ?", *f.Archived)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, notFoundOr(err, "templates")
	}

	var templates []model.Template
	if err := f.Page.scope(q).Order("id").Find(&templates).Error; err != nil {
		return nil, 0, notFoundOr(err, "templates")
	}
	return templates, total, nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.Template) error {
	if err := r.db.WithContext(ctx).Save(t).Error; err != nil {
		return writeError(err, "update template")
	}
	return nil
}

func (r *TemplateRepository) SetArchived(ctx context.Context, id uint, archived bool) error {
	result := r.db.WithContext(ctx).Model(&model.Template{}).Where("id = ?", id).Update("archived", archived)
	if result.Error != nil {
		return writeError(result.Error, "archive template")
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Template{}, id).Error; err != nil {
		return writeError(err, "delete template")
	}
	return nil
}

// NameTaken reports whether another template already uses name
func (r *TemplateRepository) NameTaken(ctx context.Context, name string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Template{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	if err != nil {
		return false, notFoundOr(err, "template")
	}
	return count > 0, nil
}

// IsReferenced reports whether any campaign uses the template
func (r *TemplateRepository) IsReferenced(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Campaign{}).Where("template_id = ?", id).Count(&count).Error; err != nil {
		return false, notFoundOr(err, "campaign")
	}
	return count > 0, nil
}
