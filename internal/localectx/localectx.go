// Package localectx carries the current write/read locale through a
// context.Context. Rewriting components treat a context without a locale as
// a non-localized operation and pass queries and writes through unchanged.
package localectx

import (
	"context"
	"errors"
)

type localeContextKey struct{}

// With stores a locale code in context.
func With(ctx context.Context, code string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeContextKey{}, code)
}

// From returns the locale code stored in context, if any.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	code, ok := ctx.Value(localeContextKey{}).(string)
	if !ok || code == "" {
		return "", false
	}
	return code, true
}

// Run invokes fn with the locale set on a derived context. The caller's
// context is never mutated, so the ambient locale is restored on every exit
// path, including error returns and panics.
func Run(ctx context.Context, code string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("run func is required")
	}
	return fn(With(ctx, code))
}
