package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskAssigned   TaskStatus = "assigned"
	TaskAccepted   TaskStatus = "accepted"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskAssigned, TaskAccepted, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `json:"description"`

	ProjectID    string   `gorm:"type:uuid;not null;index" json:"project_id"`
	Project      *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	CreatedByID  string   `gorm:"type:uuid;not null;index" json:"created_by_id"`
	CreatedBy    *User    `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	AssignedToID *string  `gorm:"type:uuid;index" json:"assigned_to_id"`
	AssignedTo   *User    `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`

	Status   TaskStatus   `gorm:"type:varchar(16);not null;default:'assigned';index" json:"status"`
	XP       int64        `gorm:"column:xp;not null;default:0;index" json:"xp"`
	Priority TaskPriority `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`

	Deadline    *time.Time `json:"deadline,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Comments    []TaskComment    `gorm:"foreignKey:TaskID" json:"comments"`
	Attachments []TaskAttachment `gorm:"foreignKey:TaskID" json:"attachments"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	if t.Status == "" {
		t.Status = TaskAssigned
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}

func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

// TaskComment is one entry of a task's ordered discussion.
type TaskComment struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	TaskID    string    `gorm:"type:uuid;not null;index" json:"task_id"`
	AuthorID  string    `gorm:"type:uuid;not null" json:"author_id"`
	Author    *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (c *TaskComment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type TaskAttachment struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	TaskID       string    `gorm:"type:uuid;not null;index" json:"task_id"`
	Name         string    `json:"name"`
	URL          string    `gorm:"type:text;not null" json:"url"`
	UploadedByID string    `gorm:"type:uuid;not null" json:"uploaded_by_id"`
	UploadedAt   time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

func (a *TaskAttachment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
