package services

import (
	"testing"

	"devquest/models"
)

func strPtr(s string) *string { return &s }

func TestAuthorize(t *testing.T) {
	client := &models.User{ID: "client", Role: models.RoleClient}
	pm := &models.User{ID: "pm", Role: models.RolePM}
	otherPM := &models.User{ID: "pm-2", Role: models.RolePM}
	dev := &models.User{ID: "dev", Role: models.RoleDeveloper}
	otherDev := &models.User{ID: "dev-2", Role: models.RoleDeveloper}

	project := &models.Project{ID: "p1", ClientID: "client", PMID: strPtr("pm"), Settings: models.ProjectSettings{AllowClientComments: true}}
	muted := &models.Project{ID: "p2", ClientID: "client", PMID: strPtr("pm")}
	task := &models.Task{ID: "t1", ProjectID: "p1", CreatedByID: "pm", AssignedToID: strPtr("dev")}
	unassigned := &models.Task{ID: "t2", ProjectID: "p1", CreatedByID: "pm"}
	both := Subject{Project: project, Task: task}

	tests := []struct {
		name   string
		action Action
		actor  *models.User
		subj   Subject
		allow  bool
	}{
		{"client creates project", ActProjectCreate, client, Subject{}, true},
		{"pm cannot create project", ActProjectCreate, pm, Subject{}, false},
		{"client assigns pm", ActProjectAssignPM, client, Subject{Project: project}, true},
		{"pm cannot assign pm", ActProjectAssignPM, pm, Subject{Project: project}, false},
		{"pm accepts", ActProjectAccept, pm, Subject{Project: project}, true},
		{"other pm cannot accept", ActProjectAccept, otherPM, Subject{Project: project}, false},
		{"client cancels", ActProjectCancel, client, Subject{Project: project}, true},
		{"pm cancels", ActProjectCancel, pm, Subject{Project: project}, true},
		{"dev cannot cancel", ActProjectCancel, dev, Subject{Project: project}, false},
		{"pm completes project", ActProjectComplete, pm, Subject{Project: project}, true},
		{"pm creates task", ActTaskCreate, pm, Subject{Project: project}, true},
		{"other pm cannot create task", ActTaskCreate, otherPM, Subject{Project: project}, false},
		{"project without pm", ActTaskCreate, pm, Subject{Project: &models.Project{ClientID: "client"}}, false},
		{"creator edits", ActTaskEdit, pm, both, true},
		{"other pm cannot edit", ActTaskEdit, otherPM, both, false},
		{"assignee accepts", ActTaskAccept, dev, both, true},
		{"other dev cannot accept", ActTaskAccept, otherDev, both, false},
		{"nobody accepts unassigned", ActTaskAccept, dev, Subject{Project: project, Task: unassigned}, false},
		{"assignee starts", ActTaskStart, dev, both, true},
		{"assignee reviews", ActTaskReview, dev, both, true},
		{"pm cannot review for dev", ActTaskReview, pm, both, false},
		{"pm completes task", ActTaskComplete, pm, both, true},
		{"dev cannot complete task", ActTaskComplete, dev, both, false},
		{"client comments", ActTaskComment, client, both, true},
		{"assignee comments", ActTaskComment, dev, both, true},
		{"outsider cannot comment", ActTaskComment, otherDev, both, false},
		{"client muted by settings", ActTaskComment, client, Subject{Project: muted, Task: task}, false},
		{"pm comments on muted project", ActTaskComment, pm, Subject{Project: muted, Task: task}, true},
		{"client attaches on muted project", ActTaskAttach, client, Subject{Project: muted, Task: task}, true},
		{"client changes settings", ActProjectSettings, client, Subject{Project: project}, true},
		{"pm cannot change settings", ActProjectSettings, pm, Subject{Project: project}, false},
		{"pm manages badges", ActBadgeManage, pm, Subject{}, true},
		{"dev cannot manage badges", ActBadgeManage, dev, Subject{}, false},
		{"unknown action", Action("project.explode"), pm, both, false},
		{"nil actor", ActTaskCreate, nil, both, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.action, tt.actor, tt.subj)
			if tt.allow && err != nil {
				t.Errorf("expected allow, got %v", err)
			}
			if !tt.allow {
				if err == nil {
					t.Fatal("expected deny")
				}
				if StatusOf(err) != 403 {
					t.Errorf("status = %d, expected 403", StatusOf(err))
				}
			}
		})
	}
}
