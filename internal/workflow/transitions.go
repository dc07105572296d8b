package workflow

import (
	"github.com/gurkanbulca/taskflow/internal/models"
)

// Actor is the relation a transition requires of whoever performs it.
type Actor int

const (
	ActorAssignee Actor = iota + 1
	ActorApprover
)

func (a Actor) String() string {
	switch a {
	case ActorAssignee:
		return "assignee"
	case ActorApprover:
		return "approver"
	default:
		return "unknown"
	}
}

// Role is the capacity a caller claims when requesting a transition. The
// facade fixes it per operation.
type Role int

const (
	// RoleAssignee is a team member working on the task.
	RoleAssignee Role = iota + 1
	// RoleApprover accepts either a project manager or an authoring team lead.
	RoleApprover
	// RoleProjectManager requires the project manager of the task's project.
	RoleProjectManager
	// RoleTeamLead requires a lead of the assignee's team who created the task.
	RoleTeamLead
	// RoleWebhook is an authenticated automated closure. It skips relation
	// checks and may only complete a non-terminal task.
	RoleWebhook
)

func (r Role) String() string {
	switch r {
	case RoleAssignee:
		return "assignee"
	case RoleApprover:
		return "approver"
	case RoleProjectManager:
		return "project_manager"
	case RoleTeamLead:
		return "team_lead"
	case RoleWebhook:
		return "webhook"
	default:
		return "unknown"
	}
}

// transitions is the complete transition graph. A pair missing here is
// illegal for every actor.
var transitions = map[models.Status]map[models.Status]Actor{
	models.StatusToDo: {
		models.StatusInProgress: ActorAssignee,
	},
	models.StatusInProgress: {
		models.StatusDone: ActorAssignee,
	},
	models.StatusDone: {
		models.StatusPendingApproval: ActorAssignee,
	},
	models.StatusPendingApproval: {
		models.StatusCompleted:     ActorApprover,
		models.StatusInProgress:    ActorApprover,
		models.StatusRejected:      ActorApprover,
		models.StatusNeedsRevision: ActorApprover,
	},
	models.StatusNeedsRevision: {
		models.StatusInProgress: ActorAssignee,
	},
}

// Relation is the actor's authorization-relevant connection to a task.
type Relation struct {
	IsAssignee                bool
	IsCreator                 bool
	IsTeamLeadOfAssignee      bool
	IsProjectManagerOfProject bool
}

// IsApprover reports whether the relation may decide a pending approval.
func (r Relation) IsApprover() bool {
	return r.IsProjectManagerOfProject || (r.IsTeamLeadOfAssignee && r.IsCreator)
}

// satisfies reports whether a caller in role with relation r qualifies as
// the required actor.
func (r Relation) satisfies(required Actor, role Role) bool {
	switch required {
	case ActorAssignee:
		return role == RoleAssignee && r.IsAssignee
	case ActorApprover:
		switch role {
		case RoleApprover:
			return r.IsApprover()
		case RoleProjectManager:
			return r.IsProjectManagerOfProject
		case RoleTeamLead:
			return r.IsTeamLeadOfAssignee && r.IsCreator
		}
	}
	return false
}

// RequiredActor returns who may move a task from -> to.
func RequiredActor(from, to models.Status) (Actor, bool) {
	actor, ok := transitions[from][to]
	return actor, ok
}

// LegalTransition decides whether a caller in role with relation rel may
// move a task from current to requested. It returns nil when allowed, an
// IllegalTransition error when the pair is not in the graph, and a
// Forbidden error when the pair is legal but the caller does not qualify.
// It performs no I/O.
func LegalTransition(current, requested models.Status, role Role, rel Relation) error {
	if !requested.Valid() {
		return newError(KindValidation, "unknown status %q", requested)
	}

	if role == RoleWebhook {
		if requested != models.StatusCompleted || current.Terminal() || !current.Valid() {
			return newError(KindIllegalTransition, "illegal transition from %q to %q", current, requested)
		}
		return nil
	}

	required, ok := RequiredActor(current, requested)
	if !ok {
		return newError(KindIllegalTransition, "illegal transition from %q to %q", current, requested)
	}
	if !rel.satisfies(required, role) {
		return newError(KindForbidden, "only the task %s may move it from %q to %q", required, current, requested)
	}
	return nil
}

// AllowedTargets lists the statuses a caller may move the task to from
// current, in vocabulary order.
func AllowedTargets(current models.Status, rel Relation, roles ...Role) []models.Status {
	var out []models.Status
	for _, to := range models.Statuses() {
		for _, role := range roles {
			if LegalTransition(current, to, role, rel) == nil {
				out = append(out, to)
				break
			}
		}
	}
	return out
}
