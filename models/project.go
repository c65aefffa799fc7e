package models

import (
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectAssigned  ProjectStatus = "assigned"
	ProjectAccepted  ProjectStatus = "accepted"
	ProjectWorking   ProjectStatus = "working"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

// Project is owned by a client, staffed by a PM and developer members.
type Project struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string `gorm:"size:150;not null" json:"title"`
	Description string `json:"description"`

	ClientID string  `gorm:"type:uuid;not null;index" json:"client_id"`
	Client   *User   `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	PMID     *string `gorm:"column:pm_id;type:uuid;index" json:"pm_id"`
	PM       *User   `gorm:"foreignKey:PMID" json:"pm,omitempty"`
	Members  []User  `gorm:"many2many:project_members" json:"members"`

	Status ProjectStatus `gorm:"type:varchar(16);not null;default:'assigned';index" json:"status"`

	StartDate   time.Time  `json:"start_date"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalTasks      int64 `gorm:"not null;default:0" json:"total_tasks"`
	CompletedTasks  int64 `gorm:"not null;default:0" json:"completed_tasks"`
	PercentComplete int   `gorm:"not null;default:0" json:"percent_complete"`

	Tags datatypes.JSONSlice[string] `json:"tags"`

	XPBudget      int64 `gorm:"column:xp_budget;not null;default:0" json:"xp_budget"`
	XPPerTask     int64 `gorm:"column:xp_per_task;not null;default:0" json:"xp_per_task"` // flat award on completion, 0 = default
	XPDistributed bool  `gorm:"column:xp_distributed;not null;default:false" json:"xp_distributed"`

	Settings ProjectSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`

	Timestamps
}

// ProjectSettings are switches owned by the client.
type ProjectSettings struct {
	AllowClientComments bool `gorm:"not null;default:true" json:"allow_client_comments"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	if p.Status == "" {
		p.Status = ProjectAssigned
	}
	return nil
}

// RecalculateProgress derives PercentComplete from the task counters and
// flips the project to completed the first time it reaches 100. Cancelled
// projects keep their status.
func (p *Project) RecalculateProgress(now time.Time) int {
	if p.TotalTasks <= 0 {
		p.PercentComplete = 0
	} else {
		p.PercentComplete = int(math.Round(float64(p.CompletedTasks) / float64(p.TotalTasks) * 100))
	}

	if p.PercentComplete == 100 && !p.Terminal() {
		p.Status = ProjectCompleted
		p.CompletedAt = &now
	}
	return p.PercentComplete
}

func (p *Project) IsPM(userID string) bool {
	return p.PMID != nil && *p.PMID == userID
}

// HasMember needs Members preloaded.
func (p *Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

func (p *Project) Terminal() bool {
	return p.Status == ProjectCompleted || p.Status == ProjectCancelled
}
