package services

import (
	"testing"

	"devquest/models"
)

type projectCast struct {
	client, pm, otherPM, dev, otherDev *models.User
}

func newCast(t *testing.T, env *testEnv) projectCast {
	return projectCast{
		client:   env.user(t, "Client", models.RoleClient),
		pm:       env.user(t, "Pam", models.RolePM),
		otherPM:  env.user(t, "Paul", models.RolePM),
		dev:      env.user(t, "Dana", models.RoleDeveloper),
		otherDev: env.user(t, "Dirk", models.RoleDeveloper),
	}
}

func TestCreateProject(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)

	p, err := env.projects.Create(env.ctx, c.client.ID, CreateProjectInput{
		Title:    "  Mobile app ",
		Tags:     []string{"ios", " ", "android"},
		XPBudget: 500,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Title != "Mobile app" || p.Status != models.ProjectAssigned || p.PMID != nil {
		t.Errorf("unexpected project %+v", p)
	}
	if len(p.Tags) != 2 || p.Client == nil || p.Client.ID != c.client.ID {
		t.Errorf("tags=%v client=%v", p.Tags, p.Client)
	}
	if !p.StartDate.Equal(env.now) {
		t.Errorf("start date = %v, expected %v", p.StartDate, env.now)
	}
	if !p.Settings.AllowClientComments {
		t.Error("client comments should be allowed by default")
	}

	tests := []struct {
		name   string
		actor  *models.User
		in     CreateProjectInput
		status int
	}{
		{"pm cannot create", c.pm, CreateProjectInput{Title: "X"}, 403},
		{"developer cannot create", c.dev, CreateProjectInput{Title: "X"}, 403},
		{"missing title", c.client, CreateProjectInput{Title: "  "}, 400},
		{"negative budget", c.client, CreateProjectInput{Title: "X", XPBudget: -5}, 400},
		{"pm is a developer", c.client, CreateProjectInput{Title: "X", PMID: &c.dev.ID}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.projects.Create(env.ctx, tt.actor.ID, tt.in)
			assertStatus(t, err, tt.status)
		})
	}
}

func TestAssignPM(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)

	if _, err := env.projects.Accept(env.ctx, c.pm.ID, p.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	updated, err := env.projects.AssignPM(env.ctx, c.client.ID, p.ID, c.otherPM.ID)
	if err != nil {
		t.Fatalf("AssignPM() error = %v", err)
	}
	if !updated.IsPM(c.otherPM.ID) || updated.Status != models.ProjectAssigned {
		t.Errorf("pm=%v status=%s, expected other pm and assigned", updated.PMID, updated.Status)
	}

	me, err := env.users.Me(env.ctx, c.otherPM.ID)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if len(me.ProjectsInvolved) != 1 {
		t.Errorf("new pm should have the project involved, got %d", len(me.ProjectsInvolved))
	}

	_, err = env.projects.AssignPM(env.ctx, c.client.ID, p.ID, "ghost")
	assertStatus(t, err, 404)
	_, err = env.projects.AssignPM(env.ctx, c.client.ID, p.ID, c.dev.ID)
	assertStatus(t, err, 400)
	_, err = env.projects.AssignPM(env.ctx, c.pm.ID, p.ID, c.pm.ID)
	assertStatus(t, err, 403)
	_, err = env.projects.AssignPM(env.ctx, c.client.ID, "missing", c.pm.ID)
	assertStatus(t, err, 404)
}

func TestProjectTransitions(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)

	_, err := env.projects.Accept(env.ctx, c.otherPM.ID, p.ID)
	assertStatus(t, err, 403)

	accepted, err := env.projects.Accept(env.ctx, c.pm.ID, p.ID)
	if err != nil || accepted.Status != models.ProjectAccepted {
		t.Fatalf("Accept() = %v, %v", accepted, err)
	}
	// accepting again is allowed
	if _, err := env.projects.Accept(env.ctx, c.pm.ID, p.ID); err != nil {
		t.Fatalf("second Accept() error = %v", err)
	}

	working, err := env.projects.Start(env.ctx, c.pm.ID, p.ID)
	if err != nil || working.Status != models.ProjectWorking {
		t.Fatalf("Start() = %v, %v", working, err)
	}

	_, err = env.projects.Cancel(env.ctx, c.dev.ID, p.ID)
	assertStatus(t, err, 403)

	cancelled, err := env.projects.Cancel(env.ctx, c.client.ID, p.ID)
	if err != nil || cancelled.Status != models.ProjectCancelled {
		t.Fatalf("Cancel() = %v, %v", cancelled, err)
	}

	for name, op := range map[string]func() error{
		"accept":    func() error { _, err := env.projects.Accept(env.ctx, c.pm.ID, p.ID); return err },
		"start":     func() error { _, err := env.projects.Start(env.ctx, c.pm.ID, p.ID); return err },
		"cancel":    func() error { _, err := env.projects.Cancel(env.ctx, c.pm.ID, p.ID); return err },
		"complete":  func() error { _, _, err := env.projects.Complete(env.ctx, c.pm.ID, p.ID); return err },
		"assign pm": func() error { _, err := env.projects.AssignPM(env.ctx, c.client.ID, p.ID, c.pm.ID); return err },
	} {
		t.Run(name, func(t *testing.T) {
			err := op()
			assertStatus(t, err, 400)
			assertMessage(t, err, "Project is cancelled.")
		})
	}
}

func TestAddMember(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)

	for i := 0; i < 2; i++ {
		updated, err := env.projects.AddMember(env.ctx, c.pm.ID, p.ID, c.dev.ID)
		if err != nil {
			t.Fatalf("AddMember() error = %v", err)
		}
		if len(updated.Members) != 1 || !updated.HasMember(c.dev.ID) {
			t.Fatalf("members = %+v, expected only the developer", updated.Members)
		}
	}

	_, err := env.projects.AddMember(env.ctx, c.pm.ID, p.ID, c.otherPM.ID)
	assertStatus(t, err, 400)
	_, err = env.projects.AddMember(env.ctx, c.client.ID, p.ID, c.otherDev.ID)
	assertStatus(t, err, 403)
}

func TestCompleteProjectDistributesXPOnce(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)

	for _, dev := range []*models.User{c.dev, c.otherDev} {
		if _, err := env.projects.AddMember(env.ctx, c.pm.ID, p.ID, dev.ID); err != nil {
			t.Fatalf("AddMember() error = %v", err)
		}
	}

	_, _, err := env.projects.Complete(env.ctx, c.client.ID, p.ID)
	assertStatus(t, err, 403)

	completed, awarded, err := env.projects.Complete(env.ctx, c.pm.ID, p.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.Status != models.ProjectCompleted || completed.CompletedAt == nil || !completed.XPDistributed {
		t.Errorf("unexpected completed project %+v", completed)
	}
	if len(awarded) != 3 {
		t.Errorf("awarded %v, expected pm and two members", awarded)
	}

	for _, u := range []*models.User{c.pm, c.dev, c.otherDev} {
		if xp := env.reload(t, u).XP; xp != 50 {
			t.Errorf("%s xp = %d, expected default 50", u.Name, xp)
		}
	}
	if xp := env.reload(t, c.client).XP; xp != 0 {
		t.Errorf("client xp = %d, expected 0", xp)
	}

	_, _, err = env.projects.Complete(env.ctx, c.pm.ID, p.ID)
	assertStatus(t, err, 400)
	if xp := env.reload(t, c.dev).XP; xp != 50 {
		t.Errorf("xp after second complete = %d, expected 50", xp)
	}
}

func TestCompleteProjectUsesXPPerTask(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p, err := env.projects.Create(env.ctx, c.client.ID, CreateProjectInput{
		Title: "Data pipeline", XPBudget: 100, XPPerTask: 80, PMID: &c.pm.ID,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// finishing the only task auto-completes the project without awarding
	task := env.task(t, c.pm, p.ID, 10, c.dev)
	if _, _, err := env.tasks.Complete(env.ctx, c.pm.ID, task.ID); err != nil {
		t.Fatalf("task Complete() error = %v", err)
	}
	auto := env.reloadProject(t, p.ID)
	if auto.Status != models.ProjectCompleted || auto.XPDistributed {
		t.Fatalf("status=%s distributed=%v, expected auto-complete only", auto.Status, auto.XPDistributed)
	}

	if _, _, err := env.projects.Complete(env.ctx, c.pm.ID, p.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if xp := env.reload(t, c.dev).XP; xp != 10+80 {
		t.Errorf("dev xp = %d, expected task 10 + project 80", xp)
	}
	if xp := env.reload(t, c.pm).XP; xp != 80 {
		t.Errorf("pm xp = %d, expected 80", xp)
	}
}

func TestProjectProgressHalfway(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)
	if _, err := env.projects.Start(env.ctx, c.pm.ID, p.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var tasks []*models.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, env.task(t, c.pm, p.ID, 5, c.dev))
	}
	for _, task := range tasks[:2] {
		if _, _, err := env.tasks.Complete(env.ctx, c.pm.ID, task.ID); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}

	got := env.reloadProject(t, p.ID)
	if got.TotalTasks != 4 || got.CompletedTasks != 2 {
		t.Errorf("counters %d/%d, expected 2/4", got.CompletedTasks, got.TotalTasks)
	}
	if got.PercentComplete != 50 {
		t.Errorf("percent = %d, expected 50", got.PercentComplete)
	}
	if got.Status != models.ProjectWorking {
		t.Errorf("status = %s, expected working", got.Status)
	}
}

func TestMine(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)
	env.project(t, c.client, c.otherPM, 100)
	if _, err := env.projects.AddMember(env.ctx, c.pm.ID, p.ID, c.dev.ID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	tests := []struct {
		user *models.User
		want int
	}{
		{c.client, 2},
		{c.pm, 1},
		{c.otherPM, 1},
		{c.dev, 1},
		{c.otherDev, 0},
	}
	for _, tt := range tests {
		got, err := env.projects.Mine(env.ctx, tt.user.ID)
		if err != nil {
			t.Fatalf("Mine(%s) error = %v", tt.user.Name, err)
		}
		if len(got) != tt.want {
			t.Errorf("Mine(%s) = %d projects, expected %d", tt.user.Name, len(got), tt.want)
		}
	}

	all, err := env.projects.All(env.ctx)
	if err != nil || len(all) != 2 {
		t.Errorf("All() = %d, %v", len(all), err)
	}
	_, err = env.projects.ByID(env.ctx, "missing")
	assertStatus(t, err, 404)
}

func TestSyncAllCountersRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)
	task := env.task(t, c.pm, p.ID, 5, c.dev)
	env.task(t, c.pm, p.ID, 5, c.dev)
	if _, _, err := env.tasks.Complete(env.ctx, c.pm.ID, task.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// simulate a lost update
	env.db.Model(&models.Project{}).Where("id = ?", p.ID).
		UpdateColumns(map[string]interface{}{"total_tasks": 7, "completed_tasks": 0, "percent_complete": 0})

	fixed, err := env.projects.SyncAllCounters(env.ctx)
	if err != nil {
		t.Fatalf("SyncAllCounters() error = %v", err)
	}
	if fixed != 1 {
		t.Errorf("fixed = %d, expected 1", fixed)
	}
	got := env.reloadProject(t, p.ID)
	if got.TotalTasks != 2 || got.CompletedTasks != 1 || got.PercentComplete != 50 {
		t.Errorf("after sync %d/%d %d%%", got.CompletedTasks, got.TotalTasks, got.PercentComplete)
	}

	again, err := env.projects.SyncAllCounters(env.ctx)
	if err != nil || again != 0 {
		t.Errorf("second sync fixed=%d err=%v, expected 0", again, err)
	}
}

func TestCompleteProject_ProgressFailureIsLogged(t *testing.T) {
	env := newTestEnv(t)
	c := newCast(t, env)
	p := env.project(t, c.client, c.pm, 100)
	if _, err := env.projects.AddMember(env.ctx, c.pm.ID, p.ID, c.dev.ID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	if err := env.db.Migrator().DropTable(&models.UserBadge{}); err != nil {
		t.Fatalf("drop user_badges: %v", err)
	}

	completed, awarded, err := env.projects.Complete(env.ctx, c.pm.ID, p.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v, expected progression failure to be swallowed", err)
	}
	if !completed.XPDistributed || len(awarded) != 2 {
		t.Errorf("distributed=%v awarded=%v", completed.XPDistributed, awarded)
	}
	for _, u := range []*models.User{c.pm, c.dev} {
		if xp := env.reload(t, u).XP; xp != 50 {
			t.Errorf("%s xp = %d, expected 50", u.Name, xp)
		}
	}
}
