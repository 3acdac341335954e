//go:build js && wasm

package credentials

import (
	"context"
	"fmt"

	"github.com/syumai/workers/cloudflare/kv"
)

// KVNamespace is the binding name configured in wrangler.toml.
const KVNamespace = "notebook_gateway_kv"

// CloudflareKVSource reads tokens from Workers KV, keyed "token:<template>".
// The sign-in flow writes them; entries carry their own expiration TTL.
type CloudflareKVSource struct {
	kvStore *kv.Namespace
}

func NewCloudflareKVSource() (*CloudflareKVSource, error) {
	kvStore, err := kv.NewNamespace(KVNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &CloudflareKVSource{kvStore: kvStore}, nil
}

func (c *CloudflareKVSource) Token(ctx context.Context, template string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, err := c.kvStore.GetString(kvKey(template), nil)
	if err != nil {
		return "", fmt.Errorf("failed to get token from KV: %w", err)
	}
	return NormalizeToken(token), nil
}

// Store puts token for template into KV, expiring after ttlSeconds (0 keeps it).
func (c *CloudflareKVSource) Store(template, token string, ttlSeconds int) error {
	var opts *kv.PutOptions
	if ttlSeconds > 0 {
		opts = &kv.PutOptions{ExpirationTTL: ttlSeconds}
	}
	if err := c.kvStore.PutString(kvKey(template), NormalizeToken(token), opts); err != nil {
		return fmt.Errorf("failed to store token in KV: %w", err)
	}
	return nil
}

func kvKey(template string) string {
	return "token:" + template
}
