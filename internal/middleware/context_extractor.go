// internal/middleware/context_extractor.go
package middleware

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// ContextKey for storing request metadata
type ContextKey string

const (
	ContextKeyIPAddress ContextKey = "ip_address"
	ContextKeyUserAgent ContextKey = "user_agent"
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyUserRole  ContextKey = "user_role"
)

// MetadataExtractorInterceptor extracts client metadata and adds it to context
type MetadataExtractorInterceptor struct{}

func NewMetadataExtractorInterceptor() *MetadataExtractorInterceptor {
	return &MetadataExtractorInterceptor{}
}

// Unary returns a unary server interceptor for metadata extraction
func (m *MetadataExtractorInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		return handler(m.enrichContext(ctx), req)
	}
}

// Stream returns a stream server interceptor for metadata extraction
func (m *MetadataExtractorInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &wrappedServerStream{
			ServerStream: stream,
			ctx:          m.enrichContext(stream.Context()),
		})
	}
}

func (m *MetadataExtractorInterceptor) enrichContext(ctx context.Context) context.Context {
	return ContextWithClientInfo(ctx, extractIPAddress(ctx), extractUserAgent(ctx))
}

// ContextWithClientInfo stores the caller's address and user agent. The
// webhook listener uses it so HTTP and gRPC callers share one shape.
func ContextWithClientInfo(ctx context.Context, ipAddress, userAgent string) context.Context {
	if ipAddress != "" {
		ctx = context.WithValue(ctx, ContextKeyIPAddress, ipAddress)
	}
	if userAgent != "" {
		ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	}
	return ctx
}

func extractIPAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}

	if tcpAddr, ok := p.Addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}

	addr := p.Addr.String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func extractUserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	for _, header := range []string{"user-agent", "grpc-user-agent", "x-user-agent"} {
		if values := md.Get(header); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// wrappedServerStream overrides the stream context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *wrappedServerStream) Context() context.Context {
	return s.ctx
}

func GetIPAddressFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ContextKeyIPAddress).(string)
	return ip
}

func GetUserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(ContextKeyUserAgent).(string)
	return ua
}

// GetUserIDFromContext returns the authenticated actor
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(ContextKeyUserID).(string)
	return userID, ok && userID != ""
}

func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(ContextKeyUserRole).(string)
	return role, ok
}

// ClientInfo groups everything known about the caller
type ClientInfo struct {
	IPAddress string
	UserAgent string
	UserID    string
	UserRole  string
}

func GetClientInfoFromContext(ctx context.Context) *ClientInfo {
	info := &ClientInfo{
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
	}
	info.UserID, _ = GetUserIDFromContext(ctx)
	info.UserRole, _ = GetUserRoleFromContext(ctx)
	return info
}
