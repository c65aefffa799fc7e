// services/project_service.go
package services

import (
	"context"
	"strings"
	"time"

	"devquest/logger"
	"devquest/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectService struct {
	DB          *gorm.DB
	Progression *ProgressionService
	DefaultXP   int64 // per-person award when a project has no xp_per_task
	Now         func() time.Time
}

func NewProjectService(db *gorm.DB, progression *ProgressionService, defaultXP int64) *ProjectService {
	return &ProjectService{DB: db, Progression: progression, DefaultXP: defaultXP, Now: time.Now}
}

type CreateProjectInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Tags        []string   `json:"tags"`
	XPBudget    int64      `json:"xp_budget"`
	XPPerTask   int64      `json:"xp_per_task"`
	PMID        *string    `json:"pm_id"`

	AllowClientComments *bool `json:"allow_client_comments"` // default true
}

type ProjectSettingsInput struct {
	AllowClientComments *bool `json:"allow_client_comments"`
}

func (s *ProjectService) Create(ctx context.Context, actorID string, in CreateProjectInput) (*models.Project, error) {
	db := s.DB.WithContext(ctx)

	actor, err := findUser(db, actorID, "User not found.")
	if err != nil {
		return nil, err
	}
	if err := Authorize(ActProjectCreate, actor, Subject{}); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ValidationError("Title is required.")
	}
	if in.XPBudget < 0 || in.XPPerTask < 0 {
		return nil, ValidationError("XP values cannot be negative.")
	}

	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	project := &models.Project{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ClientID:    actor.ID,
		Status:      models.ProjectAssigned,
		StartDate:   s.Now(),
		Deadline:    in.Deadline,
		Tags:        tags,
		XPBudget:    in.XPBudget,
		XPPerTask:   in.XPPerTask,
		Settings:    models.ProjectSettings{AllowClientComments: true},
	}
	if in.AllowClientComments != nil {
		project.Settings.AllowClientComments = *in.AllowClientComments
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if in.PMID != nil && *in.PMID != "" {
			pm, err := findPM(tx, *in.PMID)
			if err != nil {
				return err
			}
			project.PMID = &pm.ID
		}

		// Select("*") writes false settings instead of the column default.
		if err := tx.Select("*").Omit(clause.Associations).Create(project).Error; err != nil {
			return InternalError(err)
		}
		if err := linkInvolved(tx, actor.ID, project.ID); err != nil {
			return err
		}
		if project.PMID != nil {
			return linkInvolved(tx, *project.PMID, project.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ByID(ctx, project.ID)
}

// AssignPM sets the project's PM and puts the project back to assigned.
func (s *ProjectService) AssignPM(ctx context.Context, actorID, projectID, pmID string) (*models.Project, error) {
	err := s.transition(ctx, actorID, projectID, ActProjectAssignPM, func(tx *gorm.DB, p *models.Project) error {
		if err := guardOpen(p); err != nil {
			return err
		}
		if strings.TrimSpace(pmID) == "" {
			return ValidationError("PM id is required.")
		}
		pm, err := findPM(tx, pmID)
		if err != nil {
			return err
		}
		p.PMID = &pm.ID
		p.Status = models.ProjectAssigned
		return linkInvolved(tx, pm.ID, p.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.ByID(ctx, projectID)
}

// UpdateSettings applies the client's switches; omitted fields keep their value.
func (s *ProjectService) UpdateSettings(ctx context.Context, actorID, projectID string, in ProjectSettingsInput) (*models.Project, error) {
	err := s.transition(ctx, actorID, projectID, ActProjectSettings, func(_ *gorm.DB, p *models.Project) error {
		if in.AllowClientComments != nil {
			p.Settings.AllowClientComments = *in.AllowClientComments
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ByID(ctx, projectID)
}

func (s *ProjectService) Accept(ctx context.Context, actorID, projectID string) (*models.Project, error) {
	return s.setStatus(ctx, actorID, projectID, ActProjectAccept, models.ProjectAccepted)
}

func (s *ProjectService) Start(ctx context.Context, actorID, projectID string) (*models.Project, error) {
	return s.setStatus(ctx, actorID, projectID, ActProjectStart, models.ProjectWorking)
}

func (s *ProjectService) Cancel(ctx context.Context, actorID, projectID string) (*models.Project, error) {
	return s.setStatus(ctx, actorID, projectID, ActProjectCancel, models.ProjectCancelled)
}

func (s *ProjectService) setStatus(ctx context.Context, actorID, projectID string, action Action, status models.ProjectStatus) (*models.Project, error) {
	err := s.transition(ctx, actorID, projectID, action, func(_ *gorm.DB, p *models.Project) error {
		if err := guardOpen(p); err != nil {
			return err
		}
		p.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ByID(ctx, projectID)
}

// Complete marks the project completed and, the first time only, awards
// xp_per_task (or the default) to the PM and every member.
func (s *ProjectService) Complete(ctx context.Context, actorID, projectID string) (*models.Project, []string, error) {
	var recipients []string
	err := s.transition(ctx, actorID, projectID, ActProjectComplete, func(tx *gorm.DB, p *models.Project) error {
		if p.Status == models.ProjectCancelled {
			return ValidationError("Project is cancelled.")
		}
		if p.XPDistributed {
			return ValidationError("Project is already completed.")
		}

		now := s.Now()
		p.Status = models.ProjectCompleted
		if p.CompletedAt == nil {
			p.CompletedAt = &now
		}

		award := p.XPPerTask
		if award <= 0 {
			award = s.DefaultXP
		}

		seen := map[string]bool{}
		if p.PMID != nil {
			seen[*p.PMID] = true
			recipients = append(recipients, *p.PMID)
		}
		for _, m := range p.Members {
			if !seen[m.ID] {
				seen[m.ID] = true
				recipients = append(recipients, m.ID)
			}
		}

		for _, userID := range recipients {
			if err := s.Progression.AwardXP(tx, userID, award); err != nil {
				return err
			}
		}
		p.XPDistributed = true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, userID := range recipients {
		s.Progression.UpdateProgressSafe(ctx, userID)
	}

	project, err := s.ByID(ctx, projectID)
	return project, recipients, err
}

// AddMember puts a developer on the project. Adding an existing member is a
// no-op.
func (s *ProjectService) AddMember(ctx context.Context, actorID, projectID, developerID string) (*models.Project, error) {
	err := s.transition(ctx, actorID, projectID, ActProjectAddMember, func(tx *gorm.DB, p *models.Project) error {
		if p.Status == models.ProjectCancelled {
			return ValidationError("Project is cancelled.")
		}
		if strings.TrimSpace(developerID) == "" {
			return ValidationError("Developer id is required.")
		}
		return addMember(tx, p.ID, developerID)
	})
	if err != nil {
		return nil, err
	}
	return s.ByID(ctx, projectID)
}

// transition loads the project under a row lock, checks the policy for
// action and saves whatever fn changed.
func (s *ProjectService) transition(ctx context.Context, actorID, projectID string, action Action, fn func(tx *gorm.DB, p *models.Project) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actor, err := findUser(tx, actorID, "User not found.")
		if err != nil {
			return err
		}
		project, err := lockProject(tx, projectID)
		if err != nil {
			return err
		}
		if err := tx.Model(project).Association("Members").Find(&project.Members); err != nil {
			return InternalError(err)
		}
		if err := Authorize(action, actor, Subject{Project: project}); err != nil {
			return err
		}
		if err := fn(tx, project); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(project).Error; err != nil {
			return InternalError(err)
		}
		return nil
	})
}

// All returns every project, newest first.
func (s *ProjectService) All(ctx context.Context) ([]models.Project, error) {
	projects := []models.Project{}
	if err := s.DB.WithContext(ctx).Scopes(populated).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, InternalError(err)
	}
	return projects, nil
}

func (s *ProjectService) ByID(ctx context.Context, projectID string) (*models.Project, error) {
	var project models.Project
	if err := s.DB.WithContext(ctx).Scopes(populated).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, storeError(err, "Project not found.")
	}
	return &project, nil
}

// Mine lists the projects the caller owns (client), manages (pm) or works
// on (developer).
func (s *ProjectService) Mine(ctx context.Context, actorID string) ([]models.Project, error) {
	db := s.DB.WithContext(ctx)
	actor, err := findUser(db, actorID, "User not found.")
	if err != nil {
		return nil, err
	}

	q := db.Scopes(populated).Order("created_at DESC")
	switch actor.Role {
	case models.RoleClient:
		q = q.Where("client_id = ?", actor.ID)
	case models.RolePM:
		q = q.Where("pm_id = ?", actor.ID)
	default:
		q = q.Where("id IN (?)", db.Table("project_members").Select("project_id").Where("user_id = ?", actor.ID))
	}

	projects := []models.Project{}
	if err := q.Find(&projects).Error; err != nil {
		return nil, InternalError(err)
	}
	return projects, nil
}

// SyncCounters recounts the project's tasks and recalculates its progress.
func (s *ProjectService) SyncCounters(ctx context.Context, projectID string) (*models.Project, error) {
	var project *models.Project
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = syncCounters(tx, projectID, s.Now())
		return err
	})
	return project, err
}

// SyncAllCounters recounts every project that is not cancelled and returns
// how many had drifted.
func (s *ProjectService) SyncAllCounters(ctx context.Context) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Project{}).
		Where("status <> ?", models.ProjectCancelled).
		Pluck("id", &ids).Error; err != nil {
		return 0, InternalError(err)
	}

	fixed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fixed, err
		}
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			before, err := lockProject(tx, id)
			if err != nil {
				return err
			}
			after, err := syncCounters(tx, id, s.Now())
			if err != nil {
				return err
			}
			if before.TotalTasks != after.TotalTasks || before.CompletedTasks != after.CompletedTasks {
				fixed++
			}
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Str("project_id", id).Msg("counter sync failed")
		}
	}
	return fixed, nil
}

func syncCounters(tx *gorm.DB, projectID string, now time.Time) (*models.Project, error) {
	project, err := lockProject(tx, projectID)
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&models.Task{}).Where("project_id = ?", projectID).Count(&project.TotalTasks).Error; err != nil {
		return nil, InternalError(err)
	}
	if err := tx.Model(&models.Task{}).
		Where("project_id = ? AND status = ?", projectID, models.TaskDone).
		Count(&project.CompletedTasks).Error; err != nil {
		return nil, InternalError(err)
	}
	project.RecalculateProgress(now)

	if err := tx.Omit(clause.Associations).Save(project).Error; err != nil {
		return nil, InternalError(err)
	}
	return project, nil
}

func lockProject(tx *gorm.DB, projectID string) (*models.Project, error) {
	var project models.Project
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&project, "id = ?", projectID).Error; err != nil {
		return nil, storeError(err, "Project not found.")
	}
	return &project, nil
}

func guardOpen(p *models.Project) error {
	switch p.Status {
	case models.ProjectCancelled:
		return ValidationError("Project is cancelled.")
	case models.ProjectCompleted:
		return ValidationError("Project is already completed.")
	}
	return nil
}

func findPM(tx *gorm.DB, userID string) (*models.User, error) {
	pm, err := findUser(tx, userID, "PM not found.")
	if err != nil {
		return nil, err
	}
	if pm.Role != models.RolePM {
		return nil, ValidationError("Selected user is not a PM.")
	}
	return pm, nil
}

// addMember validates a developer and links them to the project.
func addMember(tx *gorm.DB, projectID, developerID string) error {
	dev, err := findUser(tx, developerID, "Developer not found.")
	if err != nil {
		return err
	}
	if dev.Role != models.RoleDeveloper {
		return ValidationError("Only developers can be project members.")
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Table("project_members").Create(map[string]interface{}{
		"project_id": projectID,
		"user_id":    dev.ID,
	}).Error; err != nil {
		return InternalError(err)
	}
	return linkInvolved(tx, dev.ID, projectID)
}

// linkInvolved records the project in the user's projects_involved.
func linkInvolved(tx *gorm.DB, userID, projectID string) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Table("user_projects").Create(map[string]interface{}{
		"user_id":    userID,
		"project_id": projectID,
	}).Error; err != nil {
		return InternalError(err)
	}
	return nil
}

func populated(db *gorm.DB) *gorm.DB {
	return db.Preload("Client").Preload("PM").Preload("Members")
}
