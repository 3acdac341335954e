package credentials

import (
	"context"
	"strings"
)

// DefaultTemplate is the token template requested from the identity provider
// for backend calls.
const DefaultTemplate = "supabase"

// Source mints short-lived bearer tokens on demand.
//
// An empty token with a nil error means the source had nothing to give
// (signed out); callers treat it the same as an error.
type Source interface {
	Token(ctx context.Context, template string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, template string) (string, error)

func (f SourceFunc) Token(ctx context.Context, template string) (string, error) {
	return f(ctx, template)
}

// NormalizeToken strips whitespace and a leading "Bearer " so tokens from any
// source can be put into an Authorization header as-is.
func NormalizeToken(token string) string {
	bare := strings.TrimSpace(token)
	if len(bare) >= 7 && strings.EqualFold(bare[:7], "Bearer ") {
		bare = strings.TrimSpace(bare[7:])
	}
	return bare
}

// Preview returns a redacted form of token suitable for logs.
func Preview(token string) string {
	if len(token) > 12 {
		return token[:6] + "…" + token[len(token)-6:]
	}
	if token == "" {
		return ""
	}
	return "…"
}
