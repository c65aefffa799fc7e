package models

import (
	"time"

	"devquest/utils"

	"gorm.io/gorm"
)

type Role string

const (
	RoleClient    Role = "client"
	RolePM        Role = "pm"
	RoleDeveloper Role = "developer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RolePM, RoleDeveloper:
		return true
	}
	return false
}

// User is an account plus its gamified progression state.
type User struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	Name       string `gorm:"not null" json:"name"`
	SearchName string `gorm:"index" json:"-"` // accent-folded Name for search
	Email      string `gorm:"uniqueIndex;not null" json:"email"`
	Password   string `gorm:"not null" json:"-"` // bcrypt hash
	Role       Role   `gorm:"type:varchar(16);not null;index" json:"role"`

	// Progression
	XP             int64      `gorm:"column:xp;not null;default:0" json:"xp"`
	Level          int        `gorm:"not null;default:1" json:"level"`
	TasksCompleted int64      `gorm:"not null;default:0" json:"tasks_completed"`
	LastLevelUpAt  *time.Time `json:"last_level_up_at,omitempty"`

	Badges           []UserBadge `gorm:"foreignKey:UserID" json:"badges"`
	ProjectsInvolved []Project   `gorm:"many2many:user_projects" json:"projects_involved,omitempty"`

	Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	if u.Level < 1 {
		u.Level = 1
	}
	return nil
}

func (u *User) BeforeSave(tx *gorm.DB) error {
	u.SearchName = utils.SearchKey(u.Name)
	return nil
}
