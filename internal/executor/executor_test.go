package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider mints "tok-N" handles and counts how often each path is used.
type fakeProvider struct {
	gets, forces int
	minted       int
	getErr       error
	forceErr     error
}

func (p *fakeProvider) mint() *backend.Client {
	p.minted++
	c, err := backend.New(backend.Config{URL: "http://backend.invalid"}, fmt.Sprintf("tok-%d", p.minted), nil, zerolog.Nop())
	if err != nil {
		panic(err)
	}
	return c
}

func (p *fakeProvider) GetClient(ctx context.Context) (*backend.Client, error) {
	p.gets++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.mint(), nil
}

func (p *fakeProvider) ForceRefresh(ctx context.Context) (*backend.Client, error) {
	p.forces++
	if p.forceErr != nil {
		return nil, p.forceErr
	}
	return p.mint(), nil
}

func (p *fakeProvider) sourceCalls() int { return p.gets + p.forces }

func expired() error {
	return apperr.New(apperr.KindAuthExpired, "test", "jwt expired")
}

func TestExecuteSucceedsFirstTime(t *testing.T) {
	p := &fakeProvider{}
	calls := 0
	got, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (string, error) {
		calls++
		return "ok:" + c.Token(), nil
	}, 2)

	require.NoError(t, err)
	assert.Equal(t, "ok:tok-1", got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, p.forces)
}

func TestExecuteRecoversWithinBound(t *testing.T) {
	p := &fakeProvider{}
	var tokens []string
	got, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		tokens = append(tokens, c.Token())
		if len(tokens) <= 2 {
			return 0, expired()
		}
		return 42, nil
	}, 2)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"tok-1", "tok-2", "tok-3"}, tokens)
	assert.Equal(t, 2, p.forces)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2, 3} {
		t.Run(fmt.Sprintf("max_%d", maxRetries), func(t *testing.T) {
			p := &fakeProvider{}
			calls := 0
			_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (struct{}, error) {
				calls++
				return struct{}{}, expired()
			}, maxRetries)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrRetriesExhausted)
			assert.Equal(t, apperr.KindRetriesExhausted, apperr.KindOf(err))
			assert.ErrorIs(t, err, apperr.ErrAuthExpired, "last failure is kept")
			assert.Equal(t, maxRetries+1, calls)
			assert.Equal(t, maxRetries, p.forces)
		})
	}
}

func TestExecuteFailsPastBound(t *testing.T) {
	p := &fakeProvider{}
	calls := 0
	_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		calls++
		if calls <= 3 {
			return 0, expired()
		}
		return 1, nil
	}, 2)

	assert.ErrorIs(t, err, apperr.ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}

func TestExecuteNegativeRetriesMeansOneAttempt(t *testing.T) {
	p := &fakeProvider{}
	calls := 0
	_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		calls++
		return 0, expired()
	}, -5)

	assert.ErrorIs(t, err, apperr.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestExecuteDoesNotRetryOtherErrors(t *testing.T) {
	cases := map[string]error{
		"unsupported": apperr.UnsupportedContentType("files.upload", "image/svg+xml"),
		"quota":       apperr.New(apperr.KindQuotaExceeded, "files.upload", "full"),
		"untyped":     errors.New("connection reset by peer"),
		"remote":      &apperr.Error{Kind: apperr.KindRemote, Status: 500, Detail: "status 401 in body"},
	}
	for name, opErr := range cases {
		t.Run(name, func(t *testing.T) {
			p := &fakeProvider{}
			calls := 0
			_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
				calls++
				return 0, opErr
			}, 3)

			assert.Same(t, opErr, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, p.sourceCalls(), "no extra credential source calls")
		})
	}
}

func TestExecuteRetriesUntypedExpiryText(t *testing.T) {
	p := &fakeProvider{}
	calls := 0
	got, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("request failed: 401 Unauthorized")
		}
		return "done", nil
	}, 1)

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 1, p.forces)
}

func TestExecuteCredentialUnavailableFailsFast(t *testing.T) {
	p := &fakeProvider{getErr: apperr.New(apperr.KindCredentialUnavailable, "auth.refresh", "signed out")}
	calls := 0
	_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		calls++
		return 0, nil
	}, 3)

	assert.ErrorIs(t, err, apperr.ErrCredentialUnavailable)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, p.forces)
}

func TestExecuteForceRefreshWithoutCredential(t *testing.T) {
	p := &fakeProvider{forceErr: errors.New("source offline")}
	calls := 0
	_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		calls++
		return 0, expired()
	}, 3)

	assert.ErrorIs(t, err, apperr.ErrCredentialUnavailable)
	assert.Contains(t, err.Error(), "source offline")
	assert.Equal(t, 1, calls)
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	p := &fakeProvider{}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Execute(ctx, p, func(ctx context.Context, c *backend.Client) (int, error) {
		calls++
		cancel()
		return 0, expired()
	}, 3)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, p.forces)
}

func TestExecuteKeepsWrappedContextErrors(t *testing.T) {
	p := &fakeProvider{getErr: fmt.Errorf("minting token: %w", context.DeadlineExceeded)}
	_, err := Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		return 0, nil
	}, 3)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, apperr.ErrCredentialUnavailable)

	p = &fakeProvider{forceErr: fmt.Errorf("refresh: %w", context.Canceled)}
	_, err = Execute(context.Background(), p, func(ctx context.Context, c *backend.Client) (int, error) {
		return 0, expired()
	}, 3)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperr.ErrCredentialUnavailable)
}
