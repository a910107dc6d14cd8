package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/placeholder"
	"campaign-mailer-go/internal/repository"
)

// TemplateInput creates a template
type TemplateInput struct {
	Name    string `json:"name" validate:"required,max=255"`
	Subject string `json:"subject" validate:"required,max=255"`
	Body    string `json:"body" validate:"required,max=10000"`
}

// TemplatePatch changes a template; nil fields are left alone
type TemplatePatch struct {
	Name    *string `json:"name" validate:"omitempty,max=255"`
	Subject *string `json:"subject" validate:"omitempty,max=255"`
	Body    *string `json:"body" validate:"omitempty,max=10000"`
}

// TemplateService manages templates and their derived placeholder lists
type TemplateService struct {
	repo *repository.TemplateRepository
}

func NewTemplateService(repo *repository.TemplateRepository) *TemplateService {
	return &TemplateService{repo: repo}
}

func (s *TemplateService) Create(ctx context.Context, in TemplateInput) (*model.Template, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, in.Name, 0); err != nil {
		return nil, err
	}

	t := &model.Template{
		Name:               in.Name,
		Subject:            in.Subject,
		Body:               in.Body,
		CustomPlaceholders: placeholder.ExtractAll(in.Subject, in.Body),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"template_id": t.ID, "name": t.Name}).Info("Template created")
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, id uint) (*model.Template, error) {
	return s.repo.Get(ctx, id)
}

func (s *TemplateService) List(ctx context.Context, f repository.TemplateFilter) ([]model.Template, int64, error) {
	return s.repo.List(ctx, f)
}

// Update applies patch. Placeholders are recomputed only when the subject or
// body actually changes.
func (s *TemplateService) Update(ctx context.Context, id uint, patch TemplatePatch) (*model.Template, error) {
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
		if trimmed == "" {
			return nil, apperrors.Validation("name is required")
		}
	}
	if (patch.Subject != nil && *patch.Subject == "") || (patch.Body != nil && *patch.Body == "") {
		return nil, apperrors.Validation("subject and body cannot be empty")
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil && *patch.Name != t.Name {
		if err := s.ensureNameFree(ctx, *patch.Name, t.ID); err != nil {
			return nil, err
		}
		t.Name = *patch.Name
	}

	contentChanged := false
	if patch.Subject != nil && *patch.Subject != t.Subject {
		t.Subject = *patch.Subject
		contentChanged = true
	}
	if patch.Body != nil && *patch.Body != t.Body {
		t.Body = *patch.Body
		contentChanged = true
	}
	if contentChanged {
		t.CustomPlaceholders = placeholder.ExtractAll(t.Subject, t.Body)
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the template, or archives it when a campaign still uses it.
// It reports whether the template was archived instead of deleted.
func (s *TemplateService) Delete(ctx context.Context, id uint) (bool, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return false, err
	}

	referenced, err := s.repo.IsReferenced(ctx, id)
	if err != nil {
		return false, err
	}
	if referenced {
		if err := s.repo.SetArchived(ctx, id, true); err != nil {
			return false, err
		}
		logrus.WithField("template_id", id).Info("Template in use by campaigns, archived instead of deleted")
		return true, nil
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return false, err
	}
	logrus.WithField("template_id", id).Info("Template deleted")
	return false, nil
}

func (s *TemplateService) SetArchived(ctx context.Context, id uint, archived bool) (*model.Template, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetArchived(ctx, id, archived); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// ExtractPlaceholders lists the placeholder names of an unsaved subject and body
func (s *TemplateService) ExtractPlaceholders(subject, body string) []string {
	return placeholder.ExtractAll(subject, body)
}

func (s *TemplateService) ensureNameFree(ctx context.Context, name string, excludeID uint) error {
	taken, err := s.repo.NameTaken(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.Conflict("template name %q already exists", name)
	}
	return nil
}
