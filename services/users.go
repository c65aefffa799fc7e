// services/users.go
package services

import (
	"context"
	"errors"
	"strings"

	"devquest/models"
	"devquest/utils"

	"gorm.io/gorm"
)

const minPasswordLength = 6

type UserService struct {
	DB          *gorm.DB
	ExpireHours int
}

func NewUserService(db *gorm.DB, expireHours int) *UserService {
	return &UserService{DB: db, ExpireHours: expireHours}
}

type RegisterInput struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := utils.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" || in.Role == "" {
		return nil, ValidationError("All fields are required.")
	}
	if !in.Role.Valid() {
		return nil, ValidationError("Invalid role. Must be client, pm or developer.")
	}
	if len(in.Password) < minPasswordLength {
		return nil, ValidationError("Password must be at least %d characters.", minPasswordLength)
	}

	db := s.DB.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, InternalError(err)
	}
	if count > 0 {
		return nil, ValidationError("Email already registered.")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, InternalError(err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hash,
		Role:     in.Role,
		Level:    1,
	}
	if err := db.Create(user).Error; err != nil {
		// lost the race against a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ValidationError("Email already registered.")
		}
		return nil, InternalError(err)
	}
	user.Badges = []models.UserBadge{}

	return s.issue(user)
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := utils.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ValidationError("Email and password required.")
	}

	var user models.User
	err := s.DB.WithContext(ctx).
		Scopes(withEarnedBadges).
		Where("email = ?", email).
		First(&user).Error
	if err != nil {
		return nil, storeError(err, "User not found.")
	}

	if !utils.CheckPassword(in.Password, user.Password) {
		return nil, ValidationError("Incorrect password.")
	}
	return s.issue(&user)
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, err := utils.GenerateToken(user.ID, string(user.Role), s.ExpireHours)
	if err != nil {
		return nil, InternalError(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Me returns the caller with earned badges and involved projects.
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).
		Scopes(withEarnedBadges).
		Preload("ProjectsInvolved").
		First(&user, "id = ?", userID).Error
	if err != nil {
		return nil, storeError(err, "User not found.")
	}
	return &user, nil
}

// List returns all users, newest first. A non-empty q filters by name,
// ignoring case and accents.
func (s *UserService) List(ctx context.Context, q string) ([]models.User, error) {
	db := s.DB.WithContext(ctx).Order("created_at DESC")
	if key := utils.SearchKey(q); key != "" {
		db = db.Where("search_name LIKE ?", "%"+key+"%")
	}

	users := []models.User{}
	if err := db.Find(&users).Error; err != nil {
		return nil, InternalError(err)
	}
	return users, nil
}

func (s *UserService) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return findUser(s.DB.WithContext(ctx), userID, "User not found.")
}

func findUser(db *gorm.DB, userID, notFoundMsg string) (*models.User, error) {
	if userID == "" {
		return nil, NotFoundError(notFoundMsg)
	}
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, storeError(err, notFoundMsg)
	}
	return &user, nil
}

// withEarnedBadges preloads awarded badges, including ones since removed
// from the catalog.
func withEarnedBadges(db *gorm.DB) *gorm.DB {
	return db.Preload("Badges", func(db *gorm.DB) *gorm.DB {
		return db.Order("awarded_at ASC")
	}).Preload("Badges.Badge", func(db *gorm.DB) *gorm.DB {
		return db.Unscoped()
	})
}
