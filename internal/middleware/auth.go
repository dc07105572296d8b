// internal/middleware/auth.go
package middleware

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/gurkanbulca/taskflow/pkg/auth"
	"github.com/gurkanbulca/taskflow/pkg/security"
)

// AuthInterceptor resolves the acting user from the bearer token
type AuthInterceptor struct {
	tokenManager  *auth.TokenManager
	publicMethods map[string]bool
	logger        *logrus.Logger
}

func NewAuthInterceptor(tokenManager *auth.TokenManager, logger *logrus.Logger) *AuthInterceptor {
	publicMethods := map[string]bool{
		"/grpc.health.v1.Health/Check": true,
		"/grpc.health.v1.Health/Watch": true,
	}

	return &AuthInterceptor{
		tokenManager:  tokenManager,
		publicMethods: publicMethods,
		logger:        logger,
	}
}

// Unary returns a unary server interceptor for authentication
func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if a.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}

		newCtx, err := a.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

// Stream returns a stream server interceptor for authentication
func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if a.isPublic(info.FullMethod) {
			return handler(srv, stream)
		}

		newCtx, err := a.authenticate(stream.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: stream, ctx: newCtx})
	}
}

func (a *AuthInterceptor) isPublic(method string) bool {
	return a.publicMethods[method] || strings.HasPrefix(method, "/grpc.reflection.")
}

func (a *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, a.deny(ctx, method, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		return nil, a.deny(ctx, method, "missing authorization header")
	}

	token, err := auth.ExtractTokenFromHeader(authHeaders[0])
	if err != nil {
		return nil, a.deny(ctx, method, err.Error())
	}

	claims, err := a.tokenManager.ValidateAccessToken(token)
	if err != nil {
		a.logger.WithError(err).WithField("method", method).Debug("token rejected")
		return nil, a.deny(ctx, method, "invalid token")
	}

	ctx = context.WithValue(ctx, ContextKeyUserID, claims.UserID)
	ctx = context.WithValue(ctx, ContextKeyUserRole, claims.Role)
	return ctx, nil
}

func (a *AuthInterceptor) deny(ctx context.Context, method, reason string) error {
	a.logger.WithFields(logrus.Fields{
		"event":    security.EventTypeAuthenticationFailed,
		"method":   method,
		"ip":       GetIPAddressFromContext(ctx),
		"severity": security.SeverityMedium,
	}).Warn(reason)
	return status.Error(codes.Unauthenticated, reason)
}
