// internal/webhook/handler.go
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gurkanbulca/taskflow/internal/middleware"
	"github.com/gurkanbulca/taskflow/internal/service"
	"github.com/gurkanbulca/taskflow/internal/workflow"
)

const (
	// Path is where source-control events are delivered.
	Path = "/webhooks/source-control"

	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"
	signaturePrefix = "sha256="

	maxBodyBytes = 5 << 20
)

var taskRef = regexp.MustCompile(`(?i)\btask[-/:]([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\b`)

type account struct {
	Login string `json:"login"`
}

type pullRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Merged   bool     `json:"merged"`
	MergedBy *account `json:"merged_by"`
	Head     struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

type issue struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type payload struct {
	Action      string       `json:"action"`
	PullRequest *pullRequest `json:"pull_request"`
	Issue       *issue       `json:"issue"`
	Sender      account      `json:"sender"`
}

// Handler closes tasks when the linked pull request is merged or the linked
// issue is closed.
type Handler struct {
	facade         *workflow.Facade
	secret         []byte
	securityLogger *service.SecurityLogger
	logger         *logrus.Logger
}

func NewHandler(facade *workflow.Facade, secret string, securityLogger *service.SecurityLogger, logger *logrus.Logger) *Handler {
	return &Handler{
		facade:         facade,
		secret:         []byte(secret),
		securityLogger: securityLogger,
		logger:         logger,
	}
}

// NewRouter returns an engine serving the webhook and a liveness probe.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST(Path, h.SourceControl)
	return r
}

// SourceControl handles one delivery.
func (h *Handler) SourceControl(c *gin.Context) {
	ctx := middleware.ContextWithClientInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
	c.Request = c.Request.WithContext(ctx)
	event := c.GetHeader(headerEvent)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if !h.verify(body, c.GetHeader(headerSignature)) {
		h.securityLogger.LogWebhookSignatureInvalid(ctx, event)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	closedBy, texts, ok := closingEvent(event, &p)
	if !ok {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	taskID := findTaskID(texts...)
	if taskID == "" {
		h.logger.WithField("github_event", event).Debug("closing event without a task reference")
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored", "reason": "no task reference"})
		return
	}

	res := h.facade.CloseViaWebhook(ctx, taskID, closedBy)
	if !res.Success {
		h.logger.WithFields(logrus.Fields{
			"task_id":   taskID,
			"closed_by": closedBy,
			"kind":      res.Kind.String(),
		}).Warn("webhook close failed")
		c.JSON(statusFor(res.Kind), gin.H{"error": res.Message, "error_kind": res.Kind.String()})
		return
	}

	h.securityLogger.LogWebhookTaskClosed(ctx, taskID, closedBy)
	if n := len(res.Task.History); n > 0 && res.Task.History[n-1].UpdatedBy == nil {
		h.securityLogger.LogWebhookActorUnresolved(ctx, taskID, closedBy)
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed", "task": res.Task})
}

func (h *Handler) verify(body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// closingEvent reports whether the delivery closes work, who closed it and
// the texts that may reference a task, branch name first.
func closingEvent(event string, p *payload) (string, []string, bool) {
	if p.Action != "closed" {
		return "", nil, false
	}
	switch event {
	case "pull_request":
		pr := p.PullRequest
		if pr == nil || !pr.Merged {
			return "", nil, false
		}
		closedBy := p.Sender.Login
		if pr.MergedBy != nil && pr.MergedBy.Login != "" {
			closedBy = pr.MergedBy.Login
		}
		return closedBy, []string{pr.Head.Ref, pr.Title, pr.Body}, true
	case "issues":
		if p.Issue == nil {
			return "", nil, false
		}
		return p.Sender.Login, []string{p.Issue.Title, p.Issue.Body}, true
	}
	return "", nil, false
}

func findTaskID(texts ...string) string {
	for _, text := range texts {
		if m := taskRef.FindStringSubmatch(text); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}

func statusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindForbidden:
		return http.StatusForbidden
	case workflow.KindIllegalTransition, workflow.KindConcurrencyConflict:
		return http.StatusConflict
	case workflow.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
