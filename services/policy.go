package services

import "devquest/models"

// Action identifies an operation guarded by the policy table.
type Action string

const (
	ActProjectCreate    Action = "project.create"
	ActProjectAssignPM  Action = "project.assign_pm"
	ActProjectAddMember Action = "project.add_member"
	ActProjectAccept    Action = "project.accept"
	ActProjectStart     Action = "project.start"
	ActProjectCancel    Action = "project.cancel"
	ActProjectComplete  Action = "project.complete"
	ActProjectSettings  Action = "project.settings"

	ActTaskCreate   Action = "task.create"
	ActTaskEdit     Action = "task.edit"
	ActTaskDelete   Action = "task.delete"
	ActTaskAccept   Action = "task.accept"
	ActTaskStart    Action = "task.start"
	ActTaskReview   Action = "task.review"
	ActTaskComplete Action = "task.complete"
	ActTaskComment  Action = "task.comment"
	ActTaskAttach   Action = "task.attach"

	ActBadgeManage Action = "badge.manage"
)

// Subject is the entity an action is checked against. Unused fields stay nil.
type Subject struct {
	Project *models.Project
	Task    *models.Task
}

type rule struct {
	allow   func(actor *models.User, s Subject) bool
	message string
}

func hasRole(role models.Role) func(*models.User, Subject) bool {
	return func(actor *models.User, _ Subject) bool { return actor.Role == role }
}

func projectClient(actor *models.User, s Subject) bool {
	return s.Project != nil && s.Project.ClientID == actor.ID
}

func clientMayComment(actor *models.User, s Subject) bool {
	return projectClient(actor, s) && s.Project.Settings.AllowClientComments
}

func projectPM(actor *models.User, s Subject) bool {
	return s.Project != nil && s.Project.IsPM(actor.ID)
}

func taskCreator(actor *models.User, s Subject) bool {
	return s.Task != nil && s.Task.CreatedByID == actor.ID
}

func taskAssignee(actor *models.User, s Subject) bool {
	return s.Task != nil && s.Task.IsAssignedTo(actor.ID)
}

func anyOf(preds ...func(*models.User, Subject) bool) func(*models.User, Subject) bool {
	return func(actor *models.User, s Subject) bool {
		for _, p := range preds {
			if p(actor, s) {
				return true
			}
		}
		return false
	}
}

var policy = map[Action]rule{
	ActProjectCreate:    {hasRole(models.RoleClient), "Only clients can create projects."},
	ActProjectAssignPM:  {projectClient, "Only the project client can assign a PM."},
	ActProjectAddMember: {projectPM, "Only the project PM can add members."},
	ActProjectAccept:    {projectPM, "Only the assigned PM can accept this project."},
	ActProjectStart:     {projectPM, "Only the assigned PM can start this project."},
	ActProjectCancel:    {anyOf(projectClient, projectPM), "Only the client or PM can cancel this project."},
	ActProjectComplete:  {projectPM, "Only the assigned PM can complete this project."},
	ActProjectSettings:  {projectClient, "Only the project client can change settings."},

	ActTaskCreate:   {projectPM, "Only assigned PM can create tasks."},
	ActTaskEdit:     {taskCreator, "Only the PM who created this task can edit it."},
	ActTaskDelete:   {taskCreator, "Only the PM who created this task can delete it."},
	ActTaskAccept:   {taskAssignee, "You cannot accept a task not assigned to you."},
	ActTaskStart:    {taskAssignee, "Not your task."},
	ActTaskReview:   {taskAssignee, "Not your task."},
	ActTaskComplete: {projectPM, "Only PM can mark task as complete."},
	ActTaskComment:  {anyOf(clientMayComment, projectPM, taskAssignee), "Only project participants can comment."},
	ActTaskAttach:   {anyOf(projectClient, projectPM, taskAssignee), "Only project participants can attach files."},

	ActBadgeManage: {hasRole(models.RolePM), "Only PMs can manage badges."},
}

// Authorize evaluates the policy table once for actor performing action.
// Unknown actions are denied.
func Authorize(action Action, actor *models.User, subj Subject) error {
	r, ok := policy[action]
	if !ok || actor == nil {
		return AuthorizationError("Forbidden.")
	}
	if !r.allow(actor, subj) {
		return AuthorizationError(r.message)
	}
	return nil
}
