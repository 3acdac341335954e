package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPDoer is the subset of *http.Client used by the template source.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TemplateSource requests a named-template token for an active session from
// the identity provider's frontend API:
//
//	POST {BaseURL}/v1/client/sessions/{SessionID}/tokens/{template}
//
// and reads the "jwt" field of the response.
type TemplateSource struct {
	BaseURL       string
	SessionID     string
	SessionSecret string
	client        HTTPDoer
}

type templateTokenResponse struct {
	JWT    string `json:"jwt"`
	Object string `json:"object"`
}

func NewTemplateSource(baseURL, sessionID, sessionSecret string, client HTTPDoer) *TemplateSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &TemplateSource{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		SessionID:     sessionID,
		SessionSecret: sessionSecret,
		client:        client,
	}
}

// Token returns "" without error when the session is gone (401/404), which
// the caller reports as a signed-out state.
func (s *TemplateSource) Token(ctx context.Context, template string) (string, error) {
	if s.SessionID == "" {
		return "", nil
	}
	endpoint := fmt.Sprintf("%s/v1/client/sessions/%s/tokens/%s",
		s.BaseURL, url.PathEscape(s.SessionID), url.PathEscape(template))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if s.SessionSecret != "" {
		req.Header.Set("authorization", "Bearer "+NormalizeToken(s.SessionSecret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make token request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return "", nil
	case resp.StatusCode != http.StatusOK:
		var errorBody bytes.Buffer
		errorBody.ReadFrom(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, errorBody.String())
	}

	var tokenResp templateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return NormalizeToken(tokenResp.JWT), nil
}
