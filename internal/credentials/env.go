package credentials

import (
	"context"
	"os"
	"strings"
)

// EnvSource reads tokens from environment variables. A template specific
// variable (NOTEBOOK_TOKEN_SUPABASE) wins over the generic NOTEBOOK_TOKEN.
type EnvSource struct {
	lookup func(string) (string, bool)
}

// NewEnvSource creates a new environment-based token source
func NewEnvSource() *EnvSource {
	return &EnvSource{lookup: os.LookupEnv}
}

// Token returns the token for template, or "" when none is set.
func (e *EnvSource) Token(ctx context.Context, template string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if template != "" {
		key := "NOTEBOOK_TOKEN_" + strings.ToUpper(strings.ReplaceAll(template, "-", "_"))
		if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
			return NormalizeToken(v), nil
		}
	}
	v, _ := e.lookup("NOTEBOOK_TOKEN")
	return NormalizeToken(v), nil
}
