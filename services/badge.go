package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"devquest/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type BadgeService struct {
	DB    *gorm.DB
	Store FileStore
}

func NewBadgeService(db *gorm.DB, store FileStore) *BadgeService {
	return &BadgeService{DB: db, Store: store}
}

// BadgeInput is used for create and for partial updates; nil fields are left
// unchanged on update.
type BadgeInput struct {
	Title         *string              `json:"title"`
	Description   *string              `json:"description"`
	Icon          *string              `json:"icon"`
	CriteriaType  *models.CriteriaType `json:"criteria_type"`
	CriteriaValue *int64               `json:"criteria_value"`
}

func (s *BadgeService) Create(ctx context.Context, in BadgeInput) (*models.Badge, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" ||
		in.CriteriaType == nil || in.CriteriaValue == nil {
		return nil, ValidationError("Missing required fields.")
	}

	badge := &models.Badge{}
	if err := applyBadgeInput(badge, in); err != nil {
		return nil, err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := uniqueBadgeCode(tx, badge.Title, "")
		if err != nil {
			return err
		}
		badge.Code = code
		if err := tx.Create(badge).Error; err != nil {
			return InternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return badge, nil
}

// List returns the catalog, newest first.
func (s *BadgeService) List(ctx context.Context) ([]models.Badge, error) {
	badges := []models.Badge{}
	if err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&badges).Error; err != nil {
		return nil, InternalError(err)
	}
	return badges, nil
}

func (s *BadgeService) Get(ctx context.Context, id string) (*models.Badge, error) {
	var badge models.Badge
	if err := s.DB.WithContext(ctx).First(&badge, "id = ?", id).Error; err != nil {
		return nil, storeError(err, "Badge not found.")
	}
	return &badge, nil
}

func (s *BadgeService) Update(ctx context.Context, id string, in BadgeInput) (*models.Badge, error) {
	var badge models.Badge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&badge, "id = ?", id).Error; err != nil {
			return storeError(err, "Badge not found.")
		}

		oldTitle := badge.Title
		if err := applyBadgeInput(&badge, in); err != nil {
			return err
		}
		if badge.Title != oldTitle {
			code, err := uniqueBadgeCode(tx, badge.Title, badge.ID)
			if err != nil {
				return err
			}
			badge.Code = code
		}

		if err := tx.Save(&badge).Error; err != nil {
			return InternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

// Delete removes the badge from the catalog. Users who earned it keep their
// award; the row is soft deleted so the reference stays resolvable.
func (s *BadgeService) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&models.Badge{}, "id = ?", id)
	if res.Error != nil {
		return InternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFoundError("Badge not found.")
	}
	return nil
}

// UploadIcon stores the file and points the badge's icon at it.
func (s *BadgeService) UploadIcon(ctx context.Context, id string, file *multipart.FileHeader) (*models.Badge, error) {
	if file == nil {
		return nil, ValidationError("Icon file is required.")
	}
	badge, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.Store.Save(ctx, file, uploadKey("badges", badge.ID, file.Filename))
	if err != nil {
		return nil, InternalError(fmt.Errorf("save badge icon: %w", err))
	}

	if err := s.DB.WithContext(ctx).Model(badge).Update("icon", url).Error; err != nil {
		return nil, InternalError(err)
	}
	badge.Icon = url
	return badge, nil
}

func applyBadgeInput(badge *models.Badge, in BadgeInput) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return ValidationError("Title cannot be empty.")
		}
		badge.Title = title
	}
	if in.Description != nil {
		badge.Description = strings.TrimSpace(*in.Description)
	}
	if in.Icon != nil {
		badge.Icon = strings.TrimSpace(*in.Icon)
	}
	if in.CriteriaType != nil {
		if !in.CriteriaType.Valid() {
			return ValidationError("Invalid criteria type. Must be tasksCompleted, level or xp.")
		}
		badge.CriteriaType = *in.CriteriaType
	}
	if in.CriteriaValue != nil {
		if *in.CriteriaValue <= 0 {
			return ValidationError("Criteria value must be greater than 0.")
		}
		badge.CriteriaValue = *in.CriteriaValue
	}
	return nil
}

// uniqueBadgeCode slugs title and appends -2, -3, ... until no badge,
// deleted ones included, holds the code.
func uniqueBadgeCode(tx *gorm.DB, title, excludeID string) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "badge"
	}

	code := base
	for n := 2; ; n++ {
		q := tx.Unscoped().Model(&models.Badge{}).Where("code = ?", code)
		if excludeID != "" {
			q = q.Where("id <> ?", excludeID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return "", InternalError(err)
		}
		if count == 0 {
			return code, nil
		}
		code = fmt.Sprintf("%s-%d", base, n)
	}
}
