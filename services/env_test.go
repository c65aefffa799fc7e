package services

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"devquest/models"
	"devquest/utils"

	"gorm.io/gorm"
)

type testEnv struct {
	ctx context.Context
	db  *gorm.DB
	now time.Time

	users       *UserService
	progression *ProgressionService
	projects    *ProjectService
	tasks       *TaskService
	badges      *BadgeService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPolicy(t, BadgeTierLevel.Name)
}

func newTestEnvWithPolicy(t *testing.T, policy string) *testEnv {
	t.Helper()
	utils.SetJWTSecret("services-test-secret")

	dir := t.TempDir()
	db, err := models.Open("sqlite", filepath.Join(dir, "devquest.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		ctx: context.Background(),
		db:  db,
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	store := utils.NewLocalStore(filepath.Join(dir, "uploads"))

	env.progression = NewProgressionService(db, policy)
	env.progression.Now = clock
	env.users = NewUserService(db, 1)
	env.projects = NewProjectService(db, env.progression, 50)
	env.projects.Now = clock
	env.tasks = NewTaskService(db, env.progression, store)
	env.tasks.Now = clock
	env.badges = NewBadgeService(db, store)
	return env
}

func (e *testEnv) user(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Name:     name,
		Email:    strings.ToLower(name) + "@devquest.test",
		Password: "unused",
		Role:     role,
	}
	if err := e.db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (e *testEnv) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	var fresh models.User
	if err := e.db.First(&fresh, "id = ?", u.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &fresh
}

func (e *testEnv) reloadProject(t *testing.T, id string) *models.Project {
	t.Helper()
	var p models.Project
	if err := e.db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return &p
}

// project creates a project owned by client and managed by pm.
func (e *testEnv) project(t *testing.T, client, pm *models.User, budget int64) *models.Project {
	t.Helper()
	p, err := e.projects.Create(e.ctx, client.ID, CreateProjectInput{
		Title:    "Website revamp",
		XPBudget: budget,
		PMID:     &pm.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (e *testEnv) task(t *testing.T, pm *models.User, projectID string, xp int64, assignee *models.User) *models.Task {
	t.Helper()
	in := CreateTaskInput{Title: "Build login page", ProjectID: projectID, XP: &xp}
	if assignee != nil {
		in.AssignedToID = &assignee.ID
	}
	task, err := e.tasks.Create(e.ctx, pm.ID, in)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (e *testEnv) badge(t *testing.T, title string, criteria models.CriteriaType, value int64) *models.Badge {
	t.Helper()
	b, err := e.badges.Create(e.ctx, BadgeInput{Title: &title, CriteriaType: &criteria, CriteriaValue: &value})
	if err != nil {
		t.Fatalf("create badge %s: %v", title, err)
	}
	return b
}

func (e *testEnv) badgeCount(t *testing.T, userID string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.UserBadge{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count badges: %v", err)
	}
	return n
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", want)
	}
	if got := StatusOf(err); got != want {
		t.Fatalf("status = %d (%v), expected %d", got, err, want)
	}
}

func assertMessage(t *testing.T, err error, want string) {
	t.Helper()
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T (%v)", err, err)
	}
	if appErr.Message != want {
		t.Errorf("message = %q, expected %q", appErr.Message, want)
	}
}

// fileHeader builds a multipart file header the way fiber hands it over.
func fileHeader(t *testing.T, field, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)
	w.Close()

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File[field][0]
}
