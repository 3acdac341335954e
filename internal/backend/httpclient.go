//go:build !js || !wasm

package backend

import (
	"net/http"
	"time"
)

// NewHTTPClient creates the HTTP client shared by all handles. A zero
// timeout selects the 60s default.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}
