//go:build js && wasm

package backend

import (
	"net/http"
	"time"
)

// NewHTTPClient creates the HTTP client used inside a Worker. Requests go
// through the runtime's fetch; the Worker's own limits apply, so only a
// caller supplied timeout is set.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}
