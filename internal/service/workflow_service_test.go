// internal/service/workflow_service_test.go
package service

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gurkanbulca/taskflow/internal/middleware"
	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/repository"
	"github.com/gurkanbulca/taskflow/internal/workflow"
	"github.com/gurkanbulca/taskflow/pkg/auth"
)

type testEnv struct {
	client *WorkflowServiceClient
	conn   *grpc.ClientConn
	tokens *auth.TokenManager
}

// Test helpers
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := repository.NewMemoryDirectory()
	dir.AddProject("project-1", "manager-1")
	dir.AddTeam("team-a", "project-1", "lead-a", "member-1")

	facade := workflow.NewFacade(repository.NewMemoryTaskStore(), dir, logger)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.NewMetadataExtractorInterceptor().Unary(),
		middleware.NewAuthInterceptor(tokens, logger).Unary(),
		middleware.LoggingInterceptor(logger),
		middleware.NewValidationInterceptor(nil).Unary(),
	))
	RegisterWorkflowServiceServer(server, NewWorkflowService(facade, NewSecurityLogger(logger)))
	healthpb.RegisterHealthServer(server, health.NewServer())

	listener := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{client: NewWorkflowServiceClient(conn), conn: conn, tokens: tokens}
}

func (e *testEnv) as(t *testing.T, userID, role string) context.Context {
	t.Helper()
	token, _, err := e.tokens.GenerateAccessToken(userID, role)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func (e *testEnv) call(t *testing.T, ctx context.Context, method string, fields map[string]interface{}) *Reply {
	t.Helper()
	out, err := e.client.Call(ctx, method, fields)
	require.NoError(t, err)
	reply, err := DecodeReply(out)
	require.NoError(t, err)
	return reply
}

func (e *testEnv) createTask(t *testing.T) string {
	t.Helper()
	reply := e.call(t, e.as(t, "manager-1", ""), MethodCreateTask, map[string]interface{}{
		"title":       "Implement login page",
		"project_id":  "project-1",
		"assigned_to": "member-1",
		"due_date":    "2026-11-01T12:00:00Z",
	})
	require.True(t, reply.Success, reply.Message)
	return reply.Task.ID
}

func TestWorkflowService_Lifecycle(t *testing.T) {
	env := setupTestServer(t)
	taskID := env.createTask(t)
	member := env.as(t, "member-1", "member")
	manager := env.as(t, "manager-1", "manager")

	reply := env.call(t, member, MethodGetTask, map[string]interface{}{"task_id": taskID})
	require.True(t, reply.Success)
	assert.Equal(t, models.StatusToDo, reply.Task.Status)
	assert.Equal(t, []models.Status{models.StatusInProgress}, reply.AllowedTransitions)
	require.NotNil(t, reply.Task.DueDate)

	for _, method := range []string{MethodStartProgress, MethodMarkDone, MethodRequestTaskReview} {
		reply, err := env.client.Transition(member, method, taskID, nil)
		require.NoError(t, err)
		require.True(t, reply.Success, "%s: %s", method, reply.Message)
	}

	reply, err := env.client.Transition(manager, MethodApprove, taskID, map[string]interface{}{"remarks": "ship it"})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, models.StatusCompleted, reply.Task.Status)
	assert.Equal(t, "ship it", reply.Task.Remarks)
	require.Len(t, reply.Task.History, 4)
	assert.NoError(t, reply.Task.VerifyHistory())

	list := env.call(t, member, MethodListTasks, map[string]interface{}{"project_id": "project-1"})
	require.True(t, list.Success)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, int64(5), list.Tasks[0].Version)
}

func TestWorkflowService_DomainFailuresAreReplies(t *testing.T) {
	env := setupTestServer(t)
	taskID := env.createTask(t)

	reply, err := env.client.Transition(env.as(t, "lead-a", ""), MethodStartProgress, taskID, nil)
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, "FORBIDDEN", reply.ErrorKind)

	reply, err = env.client.Transition(env.as(t, "member-1", ""), MethodMarkDone, taskID, nil)
	require.NoError(t, err)
	assert.Equal(t, "ILLEGAL_TRANSITION", reply.ErrorKind)

	reply, err = env.client.Transition(env.as(t, "member-1", ""), MethodUpdateTaskStatus, taskID,
		map[string]interface{}{"status": "archived"})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION_ERROR", reply.ErrorKind)

	reply, err = env.client.Transition(env.as(t, "manager-1", ""), MethodRejectTaskByManager, taskID,
		map[string]interface{}{"reason": ""})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION_ERROR", reply.ErrorKind)
}

func TestWorkflowService_RoleVariants(t *testing.T) {
	env := setupTestServer(t)
	member := env.as(t, "member-1", "")

	pending := func() string {
		taskID := env.createTask(t)
		for _, method := range []string{MethodStartProgress, MethodMarkDone, MethodSendForApproval} {
			reply, err := env.client.Transition(member, method, taskID, nil)
			require.NoError(t, err)
			require.True(t, reply.Success)
		}
		return taskID
	}

	// the manager created the task, so the lead variant refuses them
	taskID := pending()
	reply, err := env.client.Transition(env.as(t, "manager-1", ""), MethodRejectTask, taskID,
		map[string]interface{}{"reason": "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, "FORBIDDEN", reply.ErrorKind)

	reply, err = env.client.Transition(env.as(t, "manager-1", ""), MethodRequestTaskModificationsByManager, taskID,
		map[string]interface{}{"feedback": "fix styling"})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, models.StatusNeedsRevision, reply.Task.Status)
	assert.Equal(t, "fix styling", reply.Task.Remarks)

	taskID = pending()
	reply, err = env.client.Transition(env.as(t, "manager-1", ""), MethodApproveTaskCompletion, taskID,
		map[string]interface{}{"approved": false, "remarks": "needs tests"})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, models.StatusNeedsRevision, reply.Task.Status)

	taskID = pending()
	reply, err = env.client.Transition(env.as(t, "manager-1", ""), MethodReopenTask, taskID, nil)
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, models.StatusInProgress, reply.Task.Status)
}

func TestWorkflowService_CloseTask(t *testing.T) {
	env := setupTestServer(t)
	taskID := env.createTask(t)

	_, err := env.client.Transition(env.as(t, "member-1", "member"), MethodCloseTask, taskID,
		map[string]interface{}{"closed_by": "octocat"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	reply, err := env.client.Transition(env.as(t, "ci-bot", RoleIntegration), MethodCloseTask, taskID,
		map[string]interface{}{"closed_by": "octocat"})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, models.StatusCompleted, reply.Task.Status)
	require.NotNil(t, reply.Task.ClosedBy)
	assert.Equal(t, "octocat", *reply.Task.ClosedBy)
	assert.Nil(t, reply.Task.History[0].UpdatedBy)
}

func TestWorkflowService_TransportErrors(t *testing.T) {
	env := setupTestServer(t)
	taskID := env.createTask(t)

	_, err := env.client.Call(context.Background(), MethodMarkDone, map[string]interface{}{"task_id": taskID})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	member := env.as(t, "member-1", "")
	_, err = env.client.Call(member, MethodMarkDone, map[string]interface{}{"task_id": "not-a-uuid"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.Call(member, MethodApproveTaskCompletion, map[string]interface{}{"task_id": taskID})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.Call(member, MethodCreateTask, map[string]interface{}{"project_id": "project-1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestWorkflowService_HealthIsPublic(t *testing.T) {
	env := setupTestServer(t)
	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
