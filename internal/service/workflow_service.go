// internal/service/workflow_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/taskflow/internal/middleware"
	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/workflow"
)

// RoleIntegration is the token role allowed to close tasks on behalf of an
// external system.
const RoleIntegration = "integration"

// Reply is the response envelope of every workflow method.
type Reply struct {
	Success            bool            `json:"success"`
	Message            string          `json:"message"`
	ErrorKind          string          `json:"error_kind,omitempty"`
	Task               *models.Task    `json:"task,omitempty"`
	Tasks              []*models.Task  `json:"tasks,omitempty"`
	AllowedTransitions []models.Status `json:"allowed_transitions,omitempty"`
}

// DecodeReply converts a response Struct back into a Reply.
func DecodeReply(s *structpb.Struct) (*Reply, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	var r Reply
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &r, nil
}

func encodeReply(r Reply) (*structpb.Struct, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode reply: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode reply: %v", err)
	}
	return out, nil
}

// WorkflowService exposes the workflow facade over gRPC. Domain failures
// come back as unsuccessful replies; transport errors are reserved for
// malformed or unauthenticated calls.
//
// Request fields: task_id, project_id, title, description, assigned_to,
// priority, due_date (RFC 3339), remarks, reason, feedback, status,
// approved, closed_by.
type WorkflowService struct {
	facade         *workflow.Facade
	securityLogger *SecurityLogger
}

var _ WorkflowServiceServer = (*WorkflowService)(nil)

func NewWorkflowService(facade *workflow.Facade, securityLogger *SecurityLogger) *WorkflowService {
	return &WorkflowService{
		facade:         facade,
		securityLogger: securityLogger,
	}
}

type request struct {
	fields map[string]*structpb.Value
}

func newRequest(s *structpb.Struct) request {
	return request{fields: s.GetFields()}
}

func (r request) str(name string) string {
	return r.fields[name].GetStringValue()
}

func (r request) boolean(name string) (bool, bool) {
	v, ok := r.fields[name]
	if !ok {
		return false, false
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, false
	}
	return b.BoolValue, true
}

func actorFromContext(ctx context.Context) (string, error) {
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "user not authenticated")
	}
	return userID, nil
}

type transitionFunc func(ctx context.Context, taskID, actorID string, r request) workflow.Result

func (s *WorkflowService) transition(ctx context.Context, method string, in *structpb.Struct, fn transitionFunc) (*structpb.Struct, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	r := newRequest(in)
	taskID := r.str("task_id")
	if taskID == "" {
		return nil, status.Error(codes.InvalidArgument, "task_id is required")
	}
	return s.respond(ctx, method, taskID, fn(ctx, taskID, actorID, r))
}

func (s *WorkflowService) respond(ctx context.Context, method, taskID string, res workflow.Result) (*structpb.Struct, error) {
	reply := Reply{
		Success:            res.Success,
		Message:            res.Message,
		Task:               res.Task,
		AllowedTransitions: res.Allowed,
	}
	if !res.Success {
		reply.ErrorKind = res.Kind.String()
		switch res.Kind {
		case workflow.KindForbidden:
			s.securityLogger.LogTransitionDenied(ctx, taskID, method, res.Message)
		case workflow.KindIllegalTransition:
			s.securityLogger.LogIllegalTransition(ctx, taskID, method, res.Message)
		}
	}
	return encodeReply(reply)
}

func (s *WorkflowService) CreateTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actorID, err := actorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	r := newRequest(in)

	input := workflow.CreateTaskInput{
		Title:       r.str("title"),
		Description: r.str("description"),
		ProjectID:   r.str("project_id"),
		AssignedTo:  r.str("assigned_to"),
		Priority:    r.str("priority"),
	}
	if raw := r.str("due_date"); raw != "" {
		due, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "due_date must be an RFC 3339 timestamp")
		}
		due = due.UTC()
		input.DueDate = &due
	}

	return s.respond(ctx, MethodCreateTask, "", s.facade.CreateTask(ctx, actorID, input))
}

func (s *WorkflowService) GetTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodGetTask, in, func(ctx context.Context, taskID, actorID string, _ request) workflow.Result {
		return s.facade.GetTask(ctx, taskID, actorID)
	})
}

func (s *WorkflowService) ListTasks(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := actorFromContext(ctx); err != nil {
		return nil, err
	}
	tasks, res := s.facade.ListTasks(ctx, newRequest(in).str("project_id"))
	reply := Reply{Success: res.Success, Message: res.Message, Tasks: tasks}
	if !res.Success {
		reply.ErrorKind = res.Kind.String()
	}
	return encodeReply(reply)
}

func (s *WorkflowService) DeleteTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodDeleteTask, in, func(ctx context.Context, taskID, actorID string, _ request) workflow.Result {
		res := s.facade.DeleteTask(ctx, taskID, actorID)
		if res.Success {
			s.securityLogger.LogTaskDeleted(ctx, taskID)
		}
		return res
	})
}

func (s *WorkflowService) StartProgress(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodStartProgress, in, func(ctx context.Context, taskID, actorID string, _ request) workflow.Result {
		return s.facade.StartProgress(ctx, taskID, actorID)
	})
}

func (s *WorkflowService) MarkDone(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodMarkDone, in, func(ctx context.Context, taskID, actorID string, _ request) workflow.Result {
		return s.facade.MarkDone(ctx, taskID, actorID)
	})
}

func (s *WorkflowService) SendForApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodSendForApproval, in, func(ctx context.Context, taskID, actorID string, _ request) workflow.Result {
		return s.facade.SendForApproval(ctx, taskID, actorID)
	})
}

func (s *WorkflowService) RequestTaskReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodRequestTaskReview, in, func(ctx context.Context, taskID, actorID string, _ request) workflow.Result {
		return s.facade.RequestReview(ctx, taskID, actorID)
	})
}

func (s *WorkflowService) Approve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodApprove, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.Approve(ctx, taskID, actorID, r.str("remarks"))
	})
}

func (s *WorkflowService) ApproveTaskCompletion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, ok := newRequest(in).boolean("approved"); !ok {
		return nil, status.Error(codes.InvalidArgument, "approved is required")
	}
	return s.transition(ctx, MethodApproveTaskCompletion, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		approved, _ := r.boolean("approved")
		return s.facade.ApproveTaskCompletion(ctx, taskID, actorID, approved, r.str("remarks"))
	})
}

func (s *WorkflowService) Reject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodReject, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.Reject(ctx, taskID, actorID, r.str("reason"))
	})
}

// RejectTask is the team lead variant.
func (s *WorkflowService) RejectTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodRejectTask, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.RejectByLead(ctx, taskID, actorID, r.str("reason"))
	})
}

func (s *WorkflowService) RejectTaskByManager(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodRejectTaskByManager, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.RejectByManager(ctx, taskID, actorID, r.str("reason"))
	})
}

func (s *WorkflowService) RequestModifications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodRequestModifications, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.RequestModifications(ctx, taskID, actorID, r.str("feedback"))
	})
}

// RequestTaskModifications is the team lead variant.
func (s *WorkflowService) RequestTaskModifications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodRequestTaskModifications, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.RequestModificationsByLead(ctx, taskID, actorID, r.str("feedback"))
	})
}

func (s *WorkflowService) RequestTaskModificationsByManager(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodRequestTaskModificationsByManager, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.RequestModificationsByManager(ctx, taskID, actorID, r.str("feedback"))
	})
}

func (s *WorkflowService) ReopenTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodReopenTask, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.ReturnToProgress(ctx, taskID, actorID, r.str("remarks"))
	})
}

func (s *WorkflowService) UpdateTaskStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, MethodUpdateTaskStatus, in, func(ctx context.Context, taskID, actorID string, r request) workflow.Result {
		return s.facade.UpdateTaskStatus(ctx, taskID, actorID, r.str("status"))
	})
}

// CloseTask is the API twin of the source-control webhook. Only integration
// tokens may call it.
func (s *WorkflowService) CloseTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if role, _ := middleware.GetUserRoleFromContext(ctx); role != RoleIntegration {
		s.securityLogger.LogTransitionDenied(ctx, newRequest(in).str("task_id"), MethodCloseTask,
			"close requires an integration token")
		return nil, status.Error(codes.PermissionDenied, "close requires an integration token")
	}
	return s.transition(ctx, MethodCloseTask, in, func(ctx context.Context, taskID, _ string, r request) workflow.Result {
		return s.facade.CloseViaWebhook(ctx, taskID, r.str("closed_by"))
	})
}
