// Package auth resolves bearer tokens issued by the identity provider into
// caller identities.
package auth

import "context"

// Caller is the identity an operation runs as. The zero value is an
// unauthenticated caller.
type Caller struct {
	UserID   string
	FullName *string
}

// IsZero reports whether no identity was resolved.
func (c Caller) IsZero() bool {
	return c.UserID == ""
}

type contextKey struct{}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the caller stored in ctx, or the zero Caller.
func FromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(contextKey{}).(Caller)
	return c
}
