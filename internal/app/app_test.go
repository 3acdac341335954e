package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/config"
	"github.com/dvcrn/notebook-gateway/internal/credentials"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg, err := config.LoadWithLookup(func(key string) string {
		switch key {
		case "NOTEBOOK_BACKEND_URL":
			return backendURL
		case "NOTEBOOK_BACKEND_ANON_KEY":
			return "anon"
		}
		return ""
	})
	require.NoError(t, err)
	return cfg
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.CredentialsConfig{Source: "env"})
	require.NoError(t, err)
	assert.IsType(t, &credentials.EnvSource{}, src)

	path := filepath.Join(t.TempDir(), "tokens.json")
	src, err = NewSource(config.CredentialsConfig{Source: "fs", FSPath: path})
	require.NoError(t, err)
	assert.Equal(t, path, src.(*credentials.FSSource).Path)

	src, err = NewSource(config.CredentialsConfig{Source: "template", BaseURL: "https://clerk.example.com", SessionID: "s"})
	require.NoError(t, err)
	assert.IsType(t, &credentials.TemplateSource{}, src)

	src, err = NewSource(config.CredentialsConfig{Source: "keychain"})
	require.NoError(t, err)
	assert.Equal(t, "notebook-gateway", src.(*credentials.KeychainSource).Service)

	_, err = NewSource(config.CredentialsConfig{Source: "kv"})
	assert.Error(t, err)
}

// TestGatewayRecoversFromExpiredCredential drives an upload through the
// whole stack: the backend rejects the first credential and the gateway
// refreshes it and retries.
func TestGatewayRecoversFromExpiredCredential(t *testing.T) {
	var minted atomic.Int64
	source := credentials.SourceFunc(func(ctx context.Context, template string) (string, error) {
		assert.Equal(t, "supabase", template)
		if minted.Add(1) == 1 {
			return "stale", nil
		}
		return "fresh", nil
	})

	var uploads atomic.Int64
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"statusCode":"403","error":"Unauthorized","message":"jwt expired"}`))
			return
		}
		w.Write([]byte(`{"Key":"notebook-files/x"}`))
	}))
	defer backendSrv.Close()

	a := New(testConfig(t, backendSrv.URL), source, zerolog.Nop())
	defer a.Manager.Close()

	body := "--b\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"hello\r\n--b--\r\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/files", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	rec := httptest.NewRecorder()
	a.Server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), minted.Load())
	assert.Equal(t, int64(2), uploads.Load())

	st := a.Manager.Status()
	assert.True(t, st.HasCredential)
	assert.Equal(t, int64(2), st.Refreshes)
	assert.WithinDuration(t, time.Now(), *st.LastRefreshAt, time.Minute)
}
