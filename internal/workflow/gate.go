package workflow

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/repository"
)

// PermissionGate resolves how an actor relates to a task. Any directory
// failure yields the zero Relation, so callers are denied rather than
// waved through.
type PermissionGate struct {
	dir    repository.Directory
	logger *logrus.Logger
}

func NewPermissionGate(dir repository.Directory, logger *logrus.Logger) *PermissionGate {
	return &PermissionGate{dir: dir, logger: logger}
}

func (g *PermissionGate) ResolveRelation(ctx context.Context, actorID string, task *models.Task) Relation {
	if actorID == "" || task == nil {
		return Relation{}
	}

	managerID, err := g.dir.ProjectManager(ctx, task.ProjectID)
	if err != nil {
		g.lookupFailed(err, actorID, task.ID, "project manager")
		return Relation{}
	}
	leads, err := g.dir.TeamLeads(ctx, task.ProjectID, task.AssignedTo)
	if err != nil {
		g.lookupFailed(err, actorID, task.ID, "team leads")
		return Relation{}
	}

	return Relation{
		IsAssignee:                task.AssignedTo == actorID,
		IsCreator:                 task.CreatedBy == actorID,
		IsTeamLeadOfAssignee:      slices.Contains(leads, actorID),
		IsProjectManagerOfProject: managerID == actorID,
	}
}

// CanAssign reports whether actorID may create a task in projectID for
// assigneeID: the project manager, or a lead of one of the assignee's teams
// in that project.
func (g *PermissionGate) CanAssign(ctx context.Context, actorID, projectID, assigneeID string) bool {
	if actorID == "" {
		return false
	}
	managerID, err := g.dir.ProjectManager(ctx, projectID)
	if err != nil {
		g.lookupFailed(err, actorID, "", "project manager")
		return false
	}
	if managerID == actorID {
		return true
	}
	leads, err := g.dir.TeamLeads(ctx, projectID, assigneeID)
	if err != nil {
		g.lookupFailed(err, actorID, "", "team leads")
		return false
	}
	return slices.Contains(leads, actorID)
}

func (g *PermissionGate) lookupFailed(err error, actorID, taskID, what string) {
	g.logger.WithFields(logrus.Fields{
		"actor":   actorID,
		"task_id": taskID,
		"lookup":  what,
	}).WithError(err).Warn("permission lookup failed, denying")
}
