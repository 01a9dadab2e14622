// Package ctxkeys holds the context keys shared across bundlekit packages.
package ctxkeys

import "context"

// contextKey is the key type for values stored in a context.
type contextKey string

const (
	passIDKey      contextKey = "pass_id"
	environmentKey contextKey = "environment"
)

// WithPassID stores the reconciliation pass ID.
func WithPassID(ctx context.Context, passID string) context.Context {
	return context.WithValue(ctx, passIDKey, passID)
}

// PassID returns the reconciliation pass ID.
func PassID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(passIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithEnvironment stores the environment being reconciled.
func WithEnvironment(ctx context.Context, env string) context.Context {
	return context.WithValue(ctx, environmentKey, env)
}

// Environment returns the environment being reconciled.
func Environment(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(environmentKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
