package models

import (
	"time"

	"gorm.io/gorm"
)

// CriteriaType names the user counter a badge threshold is compared against.
type CriteriaType string

const (
	CriteriaTasksCompleted CriteriaType = "tasksCompleted"
	CriteriaLevel          CriteriaType = "level"
	CriteriaXP             CriteriaType = "xp"
)

func (c CriteriaType) Valid() bool {
	switch c {
	case CriteriaTasksCompleted, CriteriaLevel, CriteriaXP:
		return true
	}
	return false
}

// Badge is a catalog entry: unlocked once the user's counter reaches CriteriaValue.
type Badge struct {
	ID            string       `gorm:"primaryKey;type:uuid" json:"id"`
	Code          string       `gorm:"uniqueIndex;not null" json:"code"` // slug of Title, e.g. "first-thousand"
	Title         string       `gorm:"not null" json:"title"`
	Description   string       `json:"description"`
	Icon          string       `gorm:"type:text" json:"icon"` // URL or emoji
	CriteriaType  CriteriaType `gorm:"type:varchar(32);not null;index" json:"criteria_type"`
	CriteriaValue int64        `gorm:"not null" json:"criteria_value"`
	Timestamps
}

func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// UserBadge: awarded instance, at most one per (user, badge)
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_badge" json:"badge_id"`
	Badge     *Badge    `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

func (ub *UserBadge) BeforeCreate(tx *gorm.DB) error {
	ensureID(&ub.ID)
	return nil
}
