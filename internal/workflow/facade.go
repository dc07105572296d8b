package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/repository"
)

// Result is what every facade operation returns to transport layers.
type Result struct {
	Success bool
	Message string
	Kind    Kind
	Task    *models.Task
	// Allowed lists the statuses the caller may move Task to next. Only
	// GetTask fills it.
	Allowed []models.Status
}

// CreateTaskInput carries the fields a manager or lead supplies when
// assigning work.
type CreateTaskInput struct {
	Title       string
	Description string
	ProjectID   string
	AssignedTo  string
	Priority    string
	DueDate     *time.Time
}

// Facade is the single entry point for task lifecycle operations.
type Facade struct {
	store  repository.TaskStore
	dir    repository.Directory
	gate   *PermissionGate
	exec   *Executor
	now    func() time.Time
	logger *logrus.Logger
}

func NewFacade(store repository.TaskStore, dir repository.Directory, logger *logrus.Logger, opts ...ExecutorOption) *Facade {
	gate := NewPermissionGate(dir, logger)
	exec := NewExecutor(store, gate, logger, opts...)
	return &Facade{
		store:  store,
		dir:    dir,
		gate:   gate,
		exec:   exec,
		now:    exec.now,
		logger: logger,
	}
}

func (f *Facade) CreateTask(ctx context.Context, actorID string, in CreateTaskInput) Result {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return f.fail(newError(KindValidation, "title is required"))
	}
	if in.ProjectID == "" {
		return f.fail(newError(KindValidation, "project is required"))
	}
	if in.AssignedTo == "" {
		return f.fail(newError(KindValidation, "assignee is required"))
	}
	priority, err := models.ParsePriority(in.Priority)
	if err != nil {
		return f.fail(newError(KindValidation, "%s", err.Error()))
	}
	if !f.gate.CanAssign(ctx, actorID, in.ProjectID, in.AssignedTo) {
		return f.fail(newError(KindForbidden, "only the project manager or a team lead of the assignee may assign tasks"))
	}

	now := f.now()
	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: in.Description,
		ProjectID:   in.ProjectID,
		CreatedBy:   actorID,
		AssignedTo:  in.AssignedTo,
		Status:      models.InitialStatus,
		Priority:    priority,
		DueDate:     in.DueDate,
		History:     []models.HistoryEntry{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.store.Create(ctx, task); err != nil {
		return f.fail(internalError(err, "failed to create task"))
	}

	f.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"project_id":  task.ProjectID,
		"created_by":  actorID,
		"assigned_to": task.AssignedTo,
	}).Info("task created")
	return Result{Success: true, Message: "Task created", Task: task}
}

// GetTask returns the task and the transitions actorID may perform on it.
func (f *Facade) GetTask(ctx context.Context, taskID, actorID string) Result {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return f.fail(err)
	}
	rel := f.gate.ResolveRelation(ctx, actorID, task)
	return Result{
		Success: true,
		Message: "Task found",
		Task:    task,
		Allowed: AllowedTargets(task.Status, rel, RoleAssignee, RoleApprover),
	}
}

func (f *Facade) ListTasks(ctx context.Context, projectID string) ([]*models.Task, Result) {
	if projectID == "" {
		return nil, f.fail(newError(KindValidation, "project is required"))
	}
	tasks, err := f.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, f.fail(internalError(err, "failed to list tasks"))
	}
	return tasks, Result{Success: true, Message: "Tasks listed"}
}

// DeleteTask removes a task. Only its creator or assignee may do so.
func (f *Facade) DeleteTask(ctx context.Context, taskID, actorID string) Result {
	task, err := f.load(ctx, taskID)
	if err != nil {
		return f.fail(err)
	}
	if actorID == "" || (task.CreatedBy != actorID && task.AssignedTo != actorID) {
		return f.fail(newError(KindForbidden, "only the creator or the assignee may delete a task"))
	}
	if err := f.store.Delete(ctx, task.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return f.fail(newError(KindNotFound, "task %s not found", taskID))
		}
		return f.fail(internalError(err, "failed to delete task"))
	}
	f.logger.WithFields(logrus.Fields{"task_id": task.ID, "actor": actorID}).Info("task deleted")
	return Result{Success: true, Message: "Task deleted"}
}

func (f *Facade) StartProgress(ctx context.Context, taskID, actorID string) Result {
	return f.transition(ctx, Request{TaskID: taskID, To: models.StatusInProgress, ActorID: actorID, Role: RoleAssignee},
		"Task moved to In Progress")
}

func (f *Facade) MarkDone(ctx context.Context, taskID, actorID string) Result {
	return f.transition(ctx, Request{TaskID: taskID, To: models.StatusDone, ActorID: actorID, Role: RoleAssignee},
		"Task marked as Done")
}

func (f *Facade) SendForApproval(ctx context.Context, taskID, actorID string) Result {
	return f.transition(ctx, Request{TaskID: taskID, To: models.StatusPendingApproval, ActorID: actorID, Role: RoleAssignee},
		"Task sent for approval")
}

// RequestReview is SendForApproval under the name review-oriented clients use.
func (f *Facade) RequestReview(ctx context.Context, taskID, actorID string) Result {
	return f.SendForApproval(ctx, taskID, actorID)
}

// Approve completes a pending task. Empty remarks leave the stored remarks
// untouched.
func (f *Facade) Approve(ctx context.Context, taskID, actorID, remarks string) Result {
	return f.transition(ctx, Request{
		TaskID:  taskID,
		To:      models.StatusCompleted,
		ActorID: actorID,
		Role:    RoleApprover,
		Remarks: optional(remarks),
	}, "Task approved")
}

func (f *Facade) Reject(ctx context.Context, taskID, actorID, reason string) Result {
	return f.reject(ctx, taskID, actorID, reason, RoleApprover)
}

func (f *Facade) RejectByManager(ctx context.Context, taskID, actorID, reason string) Result {
	return f.reject(ctx, taskID, actorID, reason, RoleProjectManager)
}

func (f *Facade) RejectByLead(ctx context.Context, taskID, actorID, reason string) Result {
	return f.reject(ctx, taskID, actorID, reason, RoleTeamLead)
}

func (f *Facade) RequestModifications(ctx context.Context, taskID, actorID, feedback string) Result {
	return f.requestModifications(ctx, taskID, actorID, feedback, RoleApprover)
}

func (f *Facade) RequestModificationsByManager(ctx context.Context, taskID, actorID, feedback string) Result {
	return f.requestModifications(ctx, taskID, actorID, feedback, RoleProjectManager)
}

func (f *Facade) RequestModificationsByLead(ctx context.Context, taskID, actorID, feedback string) Result {
	return f.requestModifications(ctx, taskID, actorID, feedback, RoleTeamLead)
}

// ReturnToProgress sends a pending task straight back to the assignee
// without marking it for revision.
func (f *Facade) ReturnToProgress(ctx context.Context, taskID, actorID, remarks string) Result {
	return f.transition(ctx, Request{
		TaskID:  taskID,
		To:      models.StatusInProgress,
		ActorID: actorID,
		Role:    RoleApprover,
		Remarks: optional(remarks),
	}, "Task returned to In Progress")
}

// ResumeRevision moves a task the approver sent back into In Progress.
func (f *Facade) ResumeRevision(ctx context.Context, taskID, actorID string) Result {
	return f.StartProgress(ctx, taskID, actorID)
}

// UpdateTaskStatus is the generic assignee-side entry point used by board
// style clients. Approver-only targets are refused.
func (f *Facade) UpdateTaskStatus(ctx context.Context, taskID, actorID, status string) Result {
	to, err := models.ParseStatus(status)
	if err != nil {
		return f.fail(newError(KindValidation, "%s", err.Error()))
	}
	return f.transition(ctx, Request{TaskID: taskID, To: to, ActorID: actorID, Role: RoleAssignee},
		"Task status updated to "+to.String())
}

// ApproveTaskCompletion folds approve and request-modifications into one
// call. A refusal requires remarks.
func (f *Facade) ApproveTaskCompletion(ctx context.Context, taskID, actorID string, approved bool, remarks string) Result {
	if approved {
		return f.Approve(ctx, taskID, actorID, remarks)
	}
	return f.RequestModifications(ctx, taskID, actorID, remarks)
}

// CloseViaWebhook completes a task on behalf of an external source-control
// event. closedBy is the external login. When it maps to a known user the
// history entry is attributed to them, otherwise UpdatedBy stays nil.
func (f *Facade) CloseViaWebhook(ctx context.Context, taskID, closedBy string) Result {
	closedBy = strings.TrimSpace(closedBy)
	if closedBy == "" {
		return f.fail(newError(KindValidation, "closed by is required"))
	}

	actorID, err := f.dir.UserIDByExternalLogin(ctx, closedBy)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"task_id":   taskID,
			"closed_by": closedBy,
		}).WithError(err).Info("webhook actor not linked to a user")
		actorID = ""
	}

	return f.transition(ctx, Request{
		TaskID:   taskID,
		To:       models.StatusCompleted,
		ActorID:  actorID,
		Role:     RoleWebhook,
		ClosedBy: &closedBy,
	}, "Task closed by "+closedBy)
}

func (f *Facade) reject(ctx context.Context, taskID, actorID, reason string, role Role) Result {
	if strings.TrimSpace(reason) == "" {
		return f.fail(newError(KindValidation, "a rejection reason is required"))
	}
	return f.transition(ctx, Request{
		TaskID:  taskID,
		To:      models.StatusRejected,
		ActorID: actorID,
		Role:    role,
		Remarks: &reason,
	}, "Task rejected")
}

func (f *Facade) requestModifications(ctx context.Context, taskID, actorID, feedback string, role Role) Result {
	if strings.TrimSpace(feedback) == "" {
		return f.fail(newError(KindValidation, "feedback is required when requesting modifications"))
	}
	return f.transition(ctx, Request{
		TaskID:  taskID,
		To:      models.StatusNeedsRevision,
		ActorID: actorID,
		Role:    role,
		Remarks: &feedback,
	}, "Modifications requested")
}

func (f *Facade) transition(ctx context.Context, req Request, message string) Result {
	task, err := f.exec.Execute(ctx, req)
	if err != nil {
		return f.fail(err)
	}
	return Result{Success: true, Message: message, Task: task}
}

func (f *Facade) load(ctx context.Context, taskID string) (*models.Task, error) {
	if taskID == "" {
		return nil, newError(KindValidation, "task id is required")
	}
	task, err := f.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, "task %s not found", taskID)
		}
		return nil, internalError(err, "failed to load task %s", taskID)
	}
	return task, nil
}

func (f *Facade) fail(err error) Result {
	kind := KindOf(err)
	if kind == KindInternal {
		f.logger.WithError(err).Error("workflow operation failed")
		return Result{Message: "internal error", Kind: kind}
	}
	return Result{Message: err.Error(), Kind: kind}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
