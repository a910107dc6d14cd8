package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/repository"
)

// ContactInput creates a contact
type ContactInput struct {
	Email     string   `json:"email" validate:"required,email,max=255"`
	FirstName string   `json:"firstName" validate:"required,max=255"`
	LastName  *string  `json:"lastName" validate:"omitempty,max=255"`
	Company   *string  `json:"company" validate:"omitempty,max=255"`
	Tags      []string `json:"tags"`
}

// ContactPatch changes a contact; nil fields are left alone. An empty
// LastName or Company clears it.
type ContactPatch struct {
	Email     *string  `json:"email" validate:"omitempty,email,max=255"`
	FirstName *string  `json:"firstName" validate:"omitempty,max=255"`
	LastName  *string  `json:"lastName" validate:"omitempty,max=255"`
	Company   *string  `json:"company" validate:"omitempty,max=255"`
	Tags      []string `json:"tags"`
}

// ContactService manages the contact list
type ContactService struct {
	repo *repository.ContactRepository
}

func NewContactService(repo *repository.ContactRepository) *ContactService {
	return &ContactService{repo: repo}
}

func (s *ContactService) Create(ctx context.Context, in ContactInput) (*model.Contact, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, in.Email, 0); err != nil {
		return nil, err
	}

	c := &model.Contact{
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  optional(in.LastName),
		Company:   optional(in.Company),
		Tags:      model.NormalizeTags(in.Tags),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"contact_id": c.ID, "email": c.Email}).Info("Contact created")
	return c, nil
}

func (s *ContactService) Get(ctx context.Context, id uint) (*model.Contact, error) {
	return s.repo.Get(ctx, id)
}

func (s *ContactService) List(ctx context.Context, f repository.ContactFilter) ([]model.Contact, int64, error) {
	return s.repo.List(ctx, f)
}

func (s *ContactService) Update(ctx context.Context, id uint, patch ContactPatch) (*model.Contact, error) {
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		patch.Email = &email
		if email == "" {
			return nil, apperrors.Validation("email is required")
		}
	}
	if patch.FirstName != nil {
		first := strings.TrimSpace(*patch.FirstName)
		patch.FirstName = &first
		if first == "" {
			return nil, apperrors.Validation("firstName is required")
		}
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != nil && *patch.Email != c.Email {
		if err := s.ensureEmailFree(ctx, *patch.Email, c.ID); err != nil {
			return nil, err
		}
		c.Email = *patch.Email
	}
	if patch.FirstName != nil {
		c.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		c.LastName = optional(patch.LastName)
	}
	if patch.Company != nil {
		c.Company = optional(patch.Company)
	}
	if patch.Tags != nil {
		c.Tags = model.NormalizeTags(patch.Tags)
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a contact that no campaign references
func (s *ContactService) Delete(ctx context.Context, id uint) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	referenced, err := s.repo.IsReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return apperrors.Conflict("contact %d is a recipient of a campaign; archive it instead", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logrus.WithField("contact_id", id).Info("Contact deleted")
	return nil
}

func (s *ContactService) SetArchived(ctx context.Context, id uint, archived bool) (*model.Contact, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetArchived(ctx, id, archived); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *ContactService) ensureEmailFree(ctx context.Context, email string, excludeID uint) error {
	taken, err := s.repo.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperrors.Conflict("contact with email %s already exists", email)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// optional maps a blank string to nil
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
