package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext attaches a logger to ctx for From to return. Nothing in
// this module calls it; From falls back to the singleton.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From extracts the logger attached to ctx, falling back to the
// singleton when none was attached.
func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return L()
}
