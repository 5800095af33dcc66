package core

import "context"

type requestMetadataKey struct{}

// RequestMetadata identifies the client that started an import. It is kept on
// the session so the finished import can be traced back to its request.
type RequestMetadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (m RequestMetadata) IsZero() bool {
	return m == RequestMetadata{}
}

// ContextWithRequestMetadata attaches m to ctx.
func ContextWithRequestMetadata(ctx context.Context, m RequestMetadata) context.Context {
	return context.WithValue(ctx, requestMetadataKey{}, m)
}

// RequestMetadataFromContext returns the metadata attached to ctx, or the zero value.
func RequestMetadataFromContext(ctx context.Context) RequestMetadata {
	m, _ := ctx.Value(requestMetadataKey{}).(RequestMetadata)
	return m
}

func (m RequestMetadata) logAttrs() []any {
	return []any{"ip", m.IPAddress, "user_agent", m.UserAgent, "request_id", m.RequestID}
}
