package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gurkanbulca/taskflow/internal/models"
)

var (
	assigneeRel = Relation{IsAssignee: true}
	managerRel  = Relation{IsProjectManagerOfProject: true}
	authorLead  = Relation{IsTeamLeadOfAssignee: true, IsCreator: true}
	everything  = Relation{IsAssignee: true, IsCreator: true, IsTeamLeadOfAssignee: true, IsProjectManagerOfProject: true}
)

func TestLegalTransition(t *testing.T) {
	tests := []struct {
		name     string
		from, to models.Status
		role     Role
		rel      Relation
		wantKind Kind
		allowed  bool
	}{
		{"assignee starts", models.StatusToDo, models.StatusInProgress, RoleAssignee, assigneeRel, 0, true},
		{"assignee finishes", models.StatusInProgress, models.StatusDone, RoleAssignee, assigneeRel, 0, true},
		{"assignee submits", models.StatusDone, models.StatusPendingApproval, RoleAssignee, assigneeRel, 0, true},
		{"assignee resumes revision", models.StatusNeedsRevision, models.StatusInProgress, RoleAssignee, assigneeRel, 0, true},
		{"manager approves", models.StatusPendingApproval, models.StatusCompleted, RoleApprover, managerRel, 0, true},
		{"authoring lead approves", models.StatusPendingApproval, models.StatusCompleted, RoleApprover, authorLead, 0, true},
		{"manager returns", models.StatusPendingApproval, models.StatusInProgress, RoleApprover, managerRel, 0, true},
		{"manager rejects as manager", models.StatusPendingApproval, models.StatusRejected, RoleProjectManager, managerRel, 0, true},
		{"lead requests changes as lead", models.StatusPendingApproval, models.StatusNeedsRevision, RoleTeamLead, authorLead, 0, true},

		{"non-assignee starts", models.StatusToDo, models.StatusInProgress, RoleAssignee, Relation{IsCreator: true}, KindForbidden, false},
		{"assignee approves", models.StatusPendingApproval, models.StatusCompleted, RoleApprover, assigneeRel, KindForbidden, false},
		{"lead that did not author", models.StatusPendingApproval, models.StatusCompleted, RoleApprover,
			Relation{IsTeamLeadOfAssignee: true}, KindForbidden, false},
		{"author that is not a lead", models.StatusPendingApproval, models.StatusCompleted, RoleApprover,
			Relation{IsCreator: true}, KindForbidden, false},
		{"manager acting as lead", models.StatusPendingApproval, models.StatusRejected, RoleTeamLead, managerRel, KindForbidden, false},
		{"lead acting as manager", models.StatusPendingApproval, models.StatusRejected, RoleProjectManager, authorLead, KindForbidden, false},
		{"approver doing assignee work", models.StatusToDo, models.StatusInProgress, RoleApprover, everything, KindForbidden, false},

		{"skip to done", models.StatusToDo, models.StatusDone, RoleAssignee, everything, KindIllegalTransition, false},
		{"self loop", models.StatusInProgress, models.StatusInProgress, RoleAssignee, everything, KindIllegalTransition, false},
		{"reopen completed", models.StatusCompleted, models.StatusInProgress, RoleApprover, everything, KindIllegalTransition, false},
		{"approve from done", models.StatusDone, models.StatusCompleted, RoleApprover, everything, KindIllegalTransition, false},
		{"unknown target", models.StatusToDo, models.Status("Archived"), RoleAssignee, everything, KindValidation, false},

		{"webhook from to do", models.StatusToDo, models.StatusCompleted, RoleWebhook, Relation{}, 0, true},
		{"webhook from pending", models.StatusPendingApproval, models.StatusCompleted, RoleWebhook, Relation{}, 0, true},
		{"webhook from revision", models.StatusNeedsRevision, models.StatusCompleted, RoleWebhook, Relation{}, 0, true},
		{"webhook on completed", models.StatusCompleted, models.StatusCompleted, RoleWebhook, Relation{}, KindIllegalTransition, false},
		{"webhook on rejected", models.StatusRejected, models.StatusCompleted, RoleWebhook, Relation{}, KindIllegalTransition, false},
		{"webhook to other status", models.StatusInProgress, models.StatusDone, RoleWebhook, Relation{}, KindIllegalTransition, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := LegalTransition(tt.from, tt.to, tt.role, tt.rel)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestLegalTransition_UnlistedPairsAreIllegalForEveryone(t *testing.T) {
	roles := []Role{RoleAssignee, RoleApprover, RoleProjectManager, RoleTeamLead}
	for _, from := range models.Statuses() {
		for _, to := range models.Statuses() {
			if _, ok := RequiredActor(from, to); ok {
				continue
			}
			for _, role := range roles {
				err := LegalTransition(from, to, role, everything)
				assert.Equal(t, KindIllegalTransition, KindOf(err), "%s -> %s as %s", from, to, role)
			}
		}
	}
}

func TestLegalTransition_TerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range []models.Status{models.StatusCompleted, models.StatusRejected} {
		assert.Empty(t, AllowedTargets(from, everything,
			RoleAssignee, RoleApprover, RoleProjectManager, RoleTeamLead, RoleWebhook))
	}
}

func TestAllowedTargets(t *testing.T) {
	assert.Equal(t, []models.Status{models.StatusInProgress},
		AllowedTargets(models.StatusToDo, assigneeRel, RoleAssignee, RoleApprover))

	assert.Equal(t, []models.Status{
		models.StatusInProgress,
		models.StatusCompleted,
		models.StatusRejected,
		models.StatusNeedsRevision,
	}, AllowedTargets(models.StatusPendingApproval, managerRel, RoleAssignee, RoleApprover))

	assert.Empty(t, AllowedTargets(models.StatusPendingApproval, assigneeRel, RoleAssignee, RoleApprover))
}

func TestRelation_IsApprover(t *testing.T) {
	assert.True(t, managerRel.IsApprover())
	assert.True(t, authorLead.IsApprover())
	assert.False(t, Relation{IsTeamLeadOfAssignee: true}.IsApprover())
	assert.False(t, Relation{IsCreator: true, IsAssignee: true}.IsApprover())
	assert.False(t, Relation{}.IsApprover())
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindForbidden, "nope")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, "FORBIDDEN", KindOf(err).String())
	assert.Equal(t, KindInternal, KindOf(assert.AnError))

	wrapped := internalError(assert.AnError, "failed to load task %s", "t-1")
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "failed to load task t-1")
}
