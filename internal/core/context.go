package core

import "context"

type contextKey string

const ctxKeyRequestMeta contextKey = "request_meta"

// RequestMeta describes the client behind a request, for audit entries.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// ContextWithRequestMeta attaches m to ctx.
func ContextWithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, ctxKeyRequestMeta, m)
}

// RequestMetaFromContext returns the metadata attached to ctx, if any.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if m, ok := ctx.Value(ctxKeyRequestMeta).(RequestMeta); ok {
		return m
	}
	return RequestMeta{}
}
