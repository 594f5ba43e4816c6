package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type subjectKey struct{}

// WithRequestID stores the inbound request id on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithSubject records the selection or wallet the request is working on.
func WithSubject(ctx context.Context, kind, id string) context.Context {
	kind = strings.TrimSpace(kind)
	id = strings.TrimSpace(id)
	if kind == "" || id == "" {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, [2]string{kind, id})
}

func SubjectFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(subjectKey{}).([2]string)
	if !ok {
		return "", ""
	}
	return value[0], value[1]
}
