package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskflow/internal/models"
	"github.com/gurkanbulca/taskflow/internal/repository"
	"github.com/gurkanbulca/taskflow/internal/service"
	"github.com/gurkanbulca/taskflow/internal/workflow"
)

const testSecret = "webhook-secret"

type testEnv struct {
	router *gin.Engine
	facade *workflow.Facade
	store  *repository.MemoryTaskStore
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := repository.NewMemoryDirectory()
	dir.AddProject("project-1", "manager-1")
	dir.AddTeam("team-a", "project-1", "lead-a", "member-1")
	dir.LinkProfile("member-1", "member-one")

	store := repository.NewMemoryTaskStore()
	facade := workflow.NewFacade(store, dir, logger)
	h := NewHandler(facade, testSecret, service.NewSecurityLogger(logger), logger)

	return &testEnv{router: NewRouter(h), facade: facade, store: store}
}

func (e *testEnv) createTask(t *testing.T) string {
	t.Helper()
	res := e.facade.CreateTask(context.Background(), "manager-1", workflow.CreateTaskInput{
		Title:      "Fix checkout",
		ProjectID:  "project-1",
		AssignedTo: "member-1",
	})
	require.True(t, res.Success, res.Message)
	return res.Task.ID
}

func (e *testEnv) deliver(t *testing.T, event string, body any, signature string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	if signature == "" {
		signature = Sign(testSecret, raw)
	}

	req := httptest.NewRequest(http.MethodPost, Path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerSignature, signature)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func mergedPR(branch, mergedBy string) map[string]any {
	return map[string]any{
		"action": "closed",
		"pull_request": map[string]any{
			"title":     "Checkout fixes",
			"body":      "",
			"merged":    true,
			"merged_by": map[string]any{"login": mergedBy},
			"head":      map[string]any{"ref": branch},
		},
		"sender": map[string]any{"login": "someone-else"},
	}
}

func TestSourceControl_MergedPullRequestClosesTask(t *testing.T) {
	env := setupTestEnv(t)
	taskID := env.createTask(t)

	w := env.deliver(t, "pull_request", mergedPR("feature/task-"+taskID, "member-one"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	task, err := env.store.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, task.Status)
	require.NotNil(t, task.ClosedBy)
	assert.Equal(t, "member-one", *task.ClosedBy)
	require.Len(t, task.History, 1)
	require.NotNil(t, task.History[0].UpdatedBy)
	assert.Equal(t, "member-1", *task.History[0].UpdatedBy)
}

func TestSourceControl_UnlinkedCloserLeavesActorEmpty(t *testing.T) {
	env := setupTestEnv(t)
	taskID := env.createTask(t)

	w := env.deliver(t, "issues", map[string]any{
		"action": "closed",
		"issue":  map[string]any{"title": "Broken cart", "body": "Tracks task:" + strings.ToUpper(taskID)},
		"sender": map[string]any{"login": "octocat"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	task, err := env.store.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, task.Status)
	assert.Nil(t, task.History[0].UpdatedBy)
	assert.Equal(t, "octocat", *task.ClosedBy)
}

func TestSourceControl_Ignored(t *testing.T) {
	env := setupTestEnv(t)
	taskID := env.createTask(t)

	unmerged := mergedPR("task/"+taskID, "member-one")
	unmerged["pull_request"].(map[string]any)["merged"] = false

	tests := []struct {
		name  string
		event string
		body  any
	}{
		{"ping", "ping", map[string]any{"zen": "Keep it logically awesome."}},
		{"opened pull request", "pull_request", map[string]any{"action": "opened", "pull_request": map[string]any{}}},
		{"closed without merge", "pull_request", unmerged},
		{"no task reference", "pull_request", mergedPR("feature/checkout", "member-one")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.deliver(t, tt.event, tt.body, "")
			assert.Equal(t, http.StatusAccepted, w.Code)
			assert.Contains(t, w.Body.String(), "ignored")
		})
	}

	task, err := env.store.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusToDo, task.Status)
}

func TestSourceControl_RejectsBadSignature(t *testing.T) {
	env := setupTestEnv(t)
	taskID := env.createTask(t)
	body := mergedPR("task-"+taskID, "member-one")

	for _, sig := range []string{"sha256=deadbeef", "sha1=abc", Sign("other-secret", []byte("{}"))} {
		w := env.deliver(t, "pull_request", body, sig)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	task, err := env.store.Get(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusToDo, task.Status)
}

func TestSourceControl_DomainFailures(t *testing.T) {
	env := setupTestEnv(t)
	taskID := env.createTask(t)

	w := env.deliver(t, "pull_request", mergedPR("task-"+taskID, "member-one"), "")
	require.Equal(t, http.StatusOK, w.Code)

	// a second delivery for an already completed task
	w = env.deliver(t, "pull_request", mergedPR("task-"+taskID, "member-one"), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ILLEGAL_TRANSITION")

	w = env.deliver(t, "pull_request", mergedPR("task-00000000-0000-4000-8000-000000000000", "member-one"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindTaskID(t *testing.T) {
	id := "3f2b8c1e-9a4d-4c6b-8e21-0d5f7a9b1c2d"

	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{"branch with dash", []string{"task-" + id, "", ""}, id},
		{"branch with slash", []string{"feature/task/" + id}, id},
		{"title with colon", []string{"main", "Task:" + id + " done"}, id},
		{"uppercase id", []string{"task-" + strings.ToUpper(id)}, id},
		{"branch wins", []string{"task-" + id, "task-11111111-1111-4111-8111-111111111111"}, id},
		{"bare uuid", []string{id}, ""},
		{"truncated", []string{"task-3f2b8c1e-9a4d"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findTaskID(tt.texts...))
		})
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
