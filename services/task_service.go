// services/task_service.go
package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"devquest/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTaskPageSize = 10
	maxTaskPageSize     = 100
)

type TaskService struct {
	DB          *gorm.DB
	Progression *ProgressionService
	Store       FileStore
	Now         func() time.Time
}

func NewTaskService(db *gorm.DB, progression *ProgressionService, store FileStore) *TaskService {
	return &TaskService{DB: db, Progression: progression, Store: store, Now: time.Now}
}

type CreateTaskInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	ProjectID    string              `json:"project_id"`
	XP           *int64              `json:"xp"`
	AssignedToID *string             `json:"assigned_to"`
	Priority     models.TaskPriority `json:"priority"`
	Deadline     *time.Time          `json:"deadline"`
}

// EditTaskInput is a partial update; nil fields are left unchanged.
type EditTaskInput struct {
	Title        *string              `json:"title"`
	Description  *string              `json:"description"`
	AssignedToID *string              `json:"assigned_to"`
	XP           *int64               `json:"xp"`
	Priority     *models.TaskPriority `json:"priority"`
	Deadline     *time.Time           `json:"deadline"`
}

func (s *TaskService) Create(ctx context.Context, actorID string, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.ProjectID == "" || in.XP == nil {
		return nil, ValidationError("Title, project and xp are required.")
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return nil, ValidationError("Invalid priority.")
	}

	task := &models.Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ProjectID:   in.ProjectID,
		CreatedByID: actorID,
		Status:      models.TaskAssigned,
		XP:          *in.XP,
		Priority:    in.Priority,
		Deadline:    in.Deadline,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := findUser(tx, actorID, "User not found.")
		if err != nil {
			return err
		}
		project, err := lockProject(tx, in.ProjectID)
		if err != nil {
			return err
		}
		if err := Authorize(ActTaskCreate, actor, Subject{Project: project}); err != nil {
			return err
		}
		if err := guardOpen(project); err != nil {
			return err
		}
		if err := checkBudget(project, task.XP); err != nil {
			return err
		}

		if in.AssignedToID != nil && *in.AssignedToID != "" {
			if err := addMember(tx, project.ID, *in.AssignedToID); err != nil {
				return err
			}
			task.AssignedToID = in.AssignedToID
		}

		if err := tx.Omit(clause.Associations).Create(task).Error; err != nil {
			return InternalError(err)
		}

		project.TotalTasks++
		project.RecalculateProgress(s.Now())
		if err := tx.Omit(clause.Associations).Save(project).Error; err != nil {
			return InternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, task.ID)
}

func (s *TaskService) Edit(ctx context.Context, actorID, taskID string, in EditTaskInput) (*models.Task, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, task, project, err := s.load(tx, actorID, taskID)
		if err != nil {
			return err
		}
		if err := Authorize(ActTaskEdit, actor, Subject{Project: project, Task: task}); err != nil {
			return err
		}
		if task.Status == models.TaskDone {
			return ValidationError("Task is already completed.")
		}

		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return ValidationError("Title cannot be empty.")
			}
			task.Title = title
		}
		if in.Description != nil {
			task.Description = strings.TrimSpace(*in.Description)
		}
		if in.XP != nil {
			if err := checkBudget(project, *in.XP); err != nil {
				return err
			}
			task.XP = *in.XP
		}
		if in.Priority != nil {
			if !in.Priority.Valid() {
				return ValidationError("Invalid priority.")
			}
			task.Priority = *in.Priority
		}
		if in.Deadline != nil {
			task.Deadline = in.Deadline
		}
		if in.AssignedToID != nil && !task.IsAssignedTo(*in.AssignedToID) {
			if *in.AssignedToID == "" {
				task.AssignedToID = nil
			} else {
				if err := addMember(tx, project.ID, *in.AssignedToID); err != nil {
					return err
				}
				assignee := *in.AssignedToID
				task.AssignedToID = &assignee
			}
		}

		res := tx.Model(&models.Task{}).
			Where("id = ? AND status <> ?", task.ID, models.TaskDone).
			Updates(map[string]interface{}{
				"title":          task.Title,
				"description":    task.Description,
				"xp":             task.XP,
				"priority":       task.Priority,
				"deadline":       task.Deadline,
				"assigned_to_id": task.AssignedToID,
			})
		if res.Error != nil {
			return InternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ValidationError("Task is already completed.")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, taskID)
}

func (s *TaskService) Accept(ctx context.Context, actorID, taskID string) (*models.Task, error) {
	return s.advance(ctx, actorID, taskID, ActTaskAccept, models.TaskAccepted)
}

func (s *TaskService) Start(ctx context.Context, actorID, taskID string) (*models.Task, error) {
	return s.advance(ctx, actorID, taskID, ActTaskStart, models.TaskInProgress)
}

func (s *TaskService) Review(ctx context.Context, actorID, taskID string) (*models.Task, error) {
	return s.advance(ctx, actorID, taskID, ActTaskReview, models.TaskReview)
}

// advance moves a task along on behalf of its assignee.
func (s *TaskService) advance(ctx context.Context, actorID, taskID string, action Action, status models.TaskStatus) (*models.Task, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, task, project, err := s.load(tx, actorID, taskID)
		if err != nil {
			return err
		}
		if err := Authorize(action, actor, Subject{Project: project, Task: task}); err != nil {
			return err
		}
		if task.Status == models.TaskDone {
			return ValidationError("Task is already completed.")
		}
		if project.Status == models.ProjectCancelled {
			return ValidationError("Project is cancelled.")
		}
		return moveTask(tx, task, status)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, taskID)
}

// Complete marks the task done, bumps the project counters and credits the
// assignee in one transaction. Progression runs after the commit.
func (s *TaskService) Complete(ctx context.Context, actorID, taskID string) (*models.Task, *ProgressUpdate, error) {
	var assignee string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, task, project, err := s.load(tx, actorID, taskID)
		if err != nil {
			return err
		}
		if err := Authorize(ActTaskComplete, actor, Subject{Project: project, Task: task}); err != nil {
			return err
		}
		if task.Status == models.TaskDone {
			return ValidationError("Task is already completed.")
		}
		if project.Status == models.ProjectCancelled {
			return ValidationError("Project is cancelled.")
		}

		now := s.Now()
		if err := finishTask(tx, task, now); err != nil {
			return err
		}

		project.CompletedTasks++
		project.RecalculateProgress(now)
		if err := tx.Omit(clause.Associations).Save(project).Error; err != nil {
			return InternalError(err)
		}

		if task.AssignedToID != nil {
			assignee = *task.AssignedToID
			return s.Progression.CreditTask(tx, assignee, task.XP)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var update *ProgressUpdate
	if assignee != "" {
		update = s.Progression.UpdateProgressSafe(ctx, assignee)
	}

	task, err := s.Get(ctx, taskID)
	return task, update, err
}

// Delete removes the task with its comments and attachments and resyncs the
// project's counters.
func (s *TaskService) Delete(ctx context.Context, actorID, taskID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, task, project, err := s.load(tx, actorID, taskID)
		if err != nil {
			return err
		}
		if err := Authorize(ActTaskDelete, actor, Subject{Project: project, Task: task}); err != nil {
			return err
		}

		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskComment{}).Error; err != nil {
			return InternalError(err)
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskAttachment{}).Error; err != nil {
			return InternalError(err)
		}
		if err := tx.Delete(task).Error; err != nil {
			return InternalError(err)
		}

		_, err = syncCounters(tx, project.ID, s.Now())
		return err
	})
}

// TaskQuery filters and pages the task list.
type TaskQuery struct {
	Page       int
	Limit      int
	Status     string
	ProjectID  string
	AssignedTo string
	Sort       string // latest, oldest, xp-high, xp-low
}

type TaskPage struct {
	Tasks      []models.Task `json:"tasks"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

var taskSorts = map[string]string{
	"latest":  "created_at DESC",
	"oldest":  "created_at ASC",
	"xp-high": "xp DESC",
	"xp-low":  "xp ASC",
}

func (s *TaskService) List(ctx context.Context, q TaskQuery) (*TaskPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultTaskPageSize
	}
	if q.Limit > maxTaskPageSize {
		q.Limit = maxTaskPageSize
	}
	order, ok := taskSorts[q.Sort]
	if !ok {
		order = taskSorts["latest"]
	}

	db := s.DB.WithContext(ctx).Model(&models.Task{})
	if q.Status != "" {
		if !models.TaskStatus(q.Status).Valid() {
			return nil, ValidationError("Invalid status filter.")
		}
		db = db.Where("status = ?", q.Status)
	}
	if q.ProjectID != "" {
		db = db.Where("project_id = ?", q.ProjectID)
	}
	if q.AssignedTo != "" {
		db = db.Where("assigned_to_id = ?", q.AssignedTo)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, InternalError(err)
	}

	tasks := []models.Task{}
	if err := db.Scopes(taskRefs).
		Order(order).Order("id ASC").
		Limit(q.Limit).Offset((q.Page - 1) * q.Limit).
		Find(&tasks).Error; err != nil {
		return nil, InternalError(err)
	}

	return &TaskPage{
		Tasks:      tasks,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: int((total + int64(q.Limit) - 1) / int64(q.Limit)),
	}, nil
}

// ByProject lists a project's tasks, newest first.
func (s *TaskService) ByProject(ctx context.Context, projectID string) ([]models.Task, error) {
	db := s.DB.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return nil, InternalError(err)
	}
	if count == 0 {
		return nil, NotFoundError("Project not found.")
	}

	tasks := []models.Task{}
	if err := db.Scopes(taskRefs).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, InternalError(err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	err := s.DB.WithContext(ctx).
		Scopes(taskRefs).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Comments.Author").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("uploaded_at ASC") }).
		First(&task, "id = ?", taskID).Error
	if err != nil {
		return nil, storeError(err, "Task not found.")
	}
	return &task, nil
}

func (s *TaskService) AddComment(ctx context.Context, actorID, taskID, message string) (*models.TaskComment, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ValidationError("Message is required.")
	}

	comment := &models.TaskComment{TaskID: taskID, AuthorID: actorID, Message: message}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, task, project, err := s.load(tx, actorID, taskID)
		if err != nil {
			return err
		}
		if err := Authorize(ActTaskComment, actor, Subject{Project: project, Task: task}); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(comment).Error; err != nil {
			return InternalError(err)
		}
		comment.Author = actor
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// AddAttachment stores file and attaches it to the task.
func (s *TaskService) AddAttachment(ctx context.Context, actorID, taskID string, file *multipart.FileHeader) (*models.TaskAttachment, error) {
	if file == nil {
		return nil, ValidationError("File is required.")
	}

	db := s.DB.WithContext(ctx)
	actor, task, project, err := s.load(db, actorID, taskID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(ActTaskAttach, actor, Subject{Project: project, Task: task}); err != nil {
		return nil, err
	}

	url, err := s.Store.Save(ctx, file, uploadKey("tasks", task.ID, file.Filename))
	if err != nil {
		return nil, InternalError(fmt.Errorf("save attachment: %w", err))
	}

	attachment := &models.TaskAttachment{
		TaskID:       task.ID,
		Name:         file.Filename,
		URL:          url,
		UploadedByID: actor.ID,
	}
	if err := db.Create(attachment).Error; err != nil {
		return nil, InternalError(err)
	}
	return attachment, nil
}

// load resolves the caller, the task and its project. Inside a transaction
// the project row is locked.
func (s *TaskService) load(tx *gorm.DB, actorID, taskID string) (*models.User, *models.Task, *models.Project, error) {
	actor, err := findUser(tx, actorID, "User not found.")
	if err != nil {
		return nil, nil, nil, err
	}
	var ref models.Task
	if err := tx.Select("id", "project_id").First(&ref, "id = ?", taskID).Error; err != nil {
		return nil, nil, nil, storeError(err, "Task not found.")
	}
	project, err := lockProject(tx, ref.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	// Re-read under lock so status checks see what a concurrent writer committed.
	var task models.Task
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, nil, nil, storeError(err, "Task not found.")
	}
	return actor, &task, project, nil
}

// moveTask sets status unless the row is already done.
func moveTask(tx *gorm.DB, task *models.Task, status models.TaskStatus) error {
	res := tx.Model(&models.Task{}).
		Where("id = ? AND status <> ?", task.ID, models.TaskDone).
		Update("status", status)
	if res.Error != nil {
		return InternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ValidationError("Task is already completed.")
	}
	task.Status = status
	return nil
}

// finishTask flips the task to done exactly once; a second caller gets a 400.
func finishTask(tx *gorm.DB, task *models.Task, now time.Time) error {
	res := tx.Model(&models.Task{}).
		Where("id = ? AND status <> ?", task.ID, models.TaskDone).
		Updates(map[string]interface{}{"status": models.TaskDone, "completed_at": now})
	if res.Error != nil {
		return InternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ValidationError("Task is already completed.")
	}
	task.Status = models.TaskDone
	task.CompletedAt = &now
	return nil
}

func checkBudget(project *models.Project, xp int64) error {
	if xp < 0 {
		return ValidationError("XP cannot be negative.")
	}
	if xp > project.XPBudget {
		return ValidationError("Task XP exceeds project XP budget (%d).", project.XPBudget)
	}
	return nil
}

func taskRefs(db *gorm.DB) *gorm.DB {
	return db.Preload("Project").Preload("CreatedBy").Preload("AssignedTo")
}
