// internal/middleware/validation.go
package middleware

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/taskflow/internal/models"
)

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxRemarksLength     int
	MaxIdentifierLength  int
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxTitleLength:       200,
		MaxDescriptionLength: 5000,
		MaxRemarksLength:     2000,
		MaxIdentifierLength:  255,
	}
}

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ValidationInterceptor rejects malformed workflow requests before they
// reach the service. Business rules such as a mandatory rejection reason
// stay in the workflow package so they surface as typed results.
type ValidationInterceptor struct {
	config *ValidationConfig
}

func NewValidationInterceptor(config *ValidationConfig) *ValidationInterceptor {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &ValidationInterceptor{config: config}
}

// Unary returns a unary server interceptor for request validation
func (v *ValidationInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if r, ok := req.(*structpb.Struct); ok {
			if err := v.Validate(path.Base(info.FullMethod), r); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

// Validate checks req against the rules for method.
func (v *ValidationInterceptor) Validate(method string, req *structpb.Struct) error {
	var errs []string
	fields := req.GetFields()

	str := func(name string) (string, bool) {
		value, ok := fields[name]
		if !ok {
			return "", false
		}
		s, isString := value.GetKind().(*structpb.Value_StringValue)
		if !isString {
			errs = append(errs, fmt.Sprintf("%s must be a string", name))
			return "", false
		}
		return s.StringValue, true
	}
	maxLen := func(name string, limit int) {
		if s, ok := str(name); ok && len(s) > limit {
			errs = append(errs, fmt.Sprintf("%s too long (max %d characters)", name, limit))
		}
	}
	required := func(name string) string {
		s, _ := str(name)
		if strings.TrimSpace(s) == "" {
			errs = append(errs, name+" is required")
		}
		return s
	}

	switch method {
	case "CreateTask":
		if title := required("title"); len(title) > v.config.MaxTitleLength {
			errs = append(errs, fmt.Sprintf("title too long (max %d characters)", v.config.MaxTitleLength))
		}
		maxLen("description", v.config.MaxDescriptionLength)
		required("project_id")
		required("assigned_to")
		maxLen("assigned_to", v.config.MaxIdentifierLength)
		if p, ok := str("priority"); ok {
			if _, err := models.ParsePriority(p); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if d, ok := str("due_date"); ok && d != "" {
			if _, err := time.Parse(time.RFC3339, d); err != nil {
				errs = append(errs, "due_date must be an RFC 3339 timestamp")
			}
		}
	case "ListTasks":
		required("project_id")
	default:
		if id := required("task_id"); id != "" && !uuidRegex.MatchString(id) {
			errs = append(errs, "invalid task ID format")
		}
		for _, name := range []string{"remarks", "reason", "feedback"} {
			maxLen(name, v.config.MaxRemarksLength)
		}
		maxLen("closed_by", v.config.MaxIdentifierLength)
	}

	switch method {
	case "UpdateTaskStatus":
		required("status")
	case "ApproveTaskCompletion":
		if value, ok := fields["approved"]; ok {
			if _, isBool := value.GetKind().(*structpb.Value_BoolValue); !isBool {
				errs = append(errs, "approved must be a boolean")
			}
		}
	}

	if len(errs) > 0 {
		return status.Error(codes.InvalidArgument, strings.Join(errs, "; "))
	}
	return nil
}
