package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/rs/zerolog"
)

const (
	DriverREST = "rest"
	DriverS3   = "s3"
)

// Config describes the hosted backend a Client talks to.
type Config struct {
	URL           string
	AnonKey       string
	Bucket        string
	StorageDriver string
	S3Endpoint    string
	S3Region      string
	ProjectRef    string
	NotesTable    string
	MessagesTable string
	// ChatURL is the completion endpoint. Empty means {URL}/functions/v1/chat.
	ChatURL string
}

func (c Config) chatURL() string {
	if c.ChatURL != "" {
		return c.ChatURL
	}
	return strings.TrimRight(c.URL, "/") + "/functions/v1/chat"
}

// Client is a handle bound to exactly one bearer credential. It holds no
// mutable state and stays usable after the manager has replaced it.
type Client struct {
	cfg          Config
	token        string
	claims       Claims
	hasClaims    bool
	httpClient   *http.Client
	streamClient *http.Client
	storage      StorageDriver
	logger       zerolog.Logger
}

// Factory builds a Client for a freshly minted credential.
type Factory func(token string) (*Client, error)

// NewFactory returns a Factory sharing cfg, httpClient and logger across handles.
func NewFactory(cfg Config, httpClient *http.Client, logger zerolog.Logger) Factory {
	return func(token string) (*Client, error) {
		return New(cfg, token, httpClient, logger)
	}
}

func New(cfg Config, token string, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.KindCredentialUnavailable, "backend.new", "empty credential")
	}
	if cfg.URL == "" {
		return nil, apperr.New(apperr.KindValidation, "backend.new", "backend url is not configured")
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	// Streams stay open for the length of a reply; only the context bounds them.
	streamClient := *httpClient
	streamClient.Timeout = 0

	c := &Client{
		cfg:          cfg,
		token:        token,
		httpClient:   httpClient,
		streamClient: &streamClient,
		logger:       logger.With().Str("component", "backend").Logger(),
	}
	c.claims, c.hasClaims = ParseClaims(token)

	switch cfg.StorageDriver {
	case DriverS3:
		c.storage = newS3Storage(cfg, token, httpClient)
	case DriverREST, "":
		c.storage = &restStorage{c: c}
	default:
		return nil, apperr.New(apperr.KindValidation, "backend.new", fmt.Sprintf("unknown storage driver %q", cfg.StorageDriver))
	}
	return c, nil
}

// Token returns the bearer credential this handle is bound to.
func (c *Client) Token() string { return c.token }

// Subject returns the "sub" claim of the credential, if it is a JWT.
func (c *Client) Subject() string { return c.claims.Subject }

// ExpiresAt returns the "exp" claim of the credential. ok is false for
// opaque tokens or tokens without an expiry.
func (c *Client) ExpiresAt() (t time.Time, ok bool) {
	if !c.hasClaims || c.claims.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return c.claims.ExpiresAt, true
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.URL, "/") + path
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("authorization", "Bearer "+c.token)
	req.Header.Set("apikey", c.cfg.AnonKey)
	return req, nil
}

// do sends req and turns transport failures and non-2xx responses into
// tagged errors. On success the caller owns the response body.
func (c *Client) do(op string, httpClient *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, op, err)
	}
	if resp.StatusCode >= 400 {
		classified := classifyResponse(op, resp)
		c.logger.Warn().
			Str("op", op).
			Int("status_code", resp.StatusCode).
			Str("kind", apperr.KindOf(classified).String()).
			Msg("Backend request failed")
		return nil, classified
	}
	return resp, nil
}
