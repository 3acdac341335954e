package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	"github.com/dvcrn/notebook-gateway/internal/credentials"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// countingSource hands out "tok-1", "tok-2", ... and counts calls.
type countingSource struct {
	calls atomic.Int64
	token func(n int64) (string, error)
}

func (s *countingSource) Token(ctx context.Context, template string) (string, error) {
	n := s.calls.Add(1)
	if s.token != nil {
		return s.token(n)
	}
	return fmt.Sprintf("tok-%d", n), nil
}

func testFactory() backend.Factory {
	return backend.NewFactory(backend.Config{URL: "http://backend.invalid"}, nil, zerolog.Nop())
}

func jwtExpiring(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func TestGetClientThrottlesWithinWindow(t *testing.T) {
	clock := newFakeClock()
	src := &countingSource{}
	m := NewManager(src, testFactory(), WithClock(clock.Now))
	ctx := context.Background()

	first, err := m.GetClient(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	clock.Advance(4*time.Minute + 59*time.Second)
	second, err := m.GetClient(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), src.calls.Load())

	clock.Advance(time.Second)
	third, err := m.GetClient(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, "tok-2", third.Token())
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestForceRefreshBypassesWindow(t *testing.T) {
	clock := newFakeClock()
	src := &countingSource{}
	m := NewManager(src, testFactory(), WithClock(clock.Now))
	ctx := context.Background()

	first, err := m.GetClient(ctx)
	require.NoError(t, err)

	forced, err := m.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, forced)
	assert.Equal(t, int64(2), src.calls.Load())

	after, err := m.GetClient(ctx)
	require.NoError(t, err)
	assert.Same(t, forced, after)
	assert.Equal(t, int64(2), src.calls.Load())

	// Handles captured before the refresh stay usable.
	assert.Equal(t, "tok-1", first.Token())
}

func TestGetClientCredentialUnavailable(t *testing.T) {
	ctx := context.Background()

	empty := &countingSource{token: func(int64) (string, error) { return "", nil }}
	client, err := NewManager(empty, testFactory()).GetClient(ctx)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, apperr.ErrCredentialUnavailable)

	failing := &countingSource{token: func(int64) (string, error) { return "", errors.New("keychain locked") }}
	client, err = NewManager(failing, testFactory()).GetClient(ctx)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, apperr.ErrCredentialUnavailable)
	assert.Contains(t, err.Error(), "keychain locked")

	client, err = NewManager(nil, testFactory()).ForceRefresh(ctx)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, apperr.ErrCredentialUnavailable)
}

func TestSignOutDropsCachedHandle(t *testing.T) {
	signedIn := atomic.Bool{}
	signedIn.Store(true)
	src := &countingSource{token: func(n int64) (string, error) {
		if signedIn.Load() {
			return fmt.Sprintf("tok-%d", n), nil
		}
		return "", nil
	}}
	m := NewManager(src, testFactory())
	ctx := context.Background()

	_, err := m.GetClient(ctx)
	require.NoError(t, err)

	signedIn.Store(false)
	_, err = m.ForceRefresh(ctx)
	require.ErrorIs(t, err, apperr.ErrCredentialUnavailable)

	assert.False(t, m.Status().HasCredential)
	_, err = m.GetClient(ctx)
	assert.ErrorIs(t, err, apperr.ErrCredentialUnavailable)
}

func TestGetClientRefreshesBeforeKnownExpiry(t *testing.T) {
	clock := newFakeClock()
	exp := clock.Now().Add(3 * time.Minute)
	src := &countingSource{token: func(n int64) (string, error) {
		if n == 1 {
			return jwtExpiring(t, exp), nil
		}
		return jwtExpiring(t, exp.Add(time.Hour)), nil
	}}
	m := NewManager(src, testFactory(), WithClock(clock.Now), WithTimings(5*time.Minute, 8*time.Minute, 2*time.Minute))
	ctx := context.Background()

	first, err := m.GetClient(ctx)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	again, err := m.GetClient(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	// Inside the margin before exp, even though the cache window has not passed.
	clock.Advance(31 * time.Second)
	renewed, err := m.GetClient(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, renewed)
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestConcurrentRefreshesAreCoalesced(t *testing.T) {
	release := make(chan struct{})
	src := &countingSource{token: func(n int64) (string, error) {
		<-release
		return fmt.Sprintf("tok-%d", n), nil
	}}
	m := NewManager(src, testFactory())

	const callers = 8
	var wg sync.WaitGroup
	clients := make([]*backend.Client, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := m.ForceRefresh(context.Background())
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), src.calls.Load())
	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
}

func TestRefreshHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	src := &countingSource{token: func(int64) (string, error) {
		<-release
		return "tok", nil
	}}
	m := NewManager(src, testFactory())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.GetClient(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("GetClient did not return after cancellation")
	}
}

func TestBackgroundRefresh(t *testing.T) {
	src := &countingSource{}
	m := NewManager(src, testFactory(), WithTimings(time.Minute, 10*time.Millisecond, 0))

	m.Start(context.Background())
	m.Start(context.Background())
	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	m.Close()
	stopped := src.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, src.calls.Load())
	assert.True(t, m.Status().HasCredential)

	// Close is idempotent.
	m.Close()
}

func TestBackgroundRefreshStopsWithContext(t *testing.T) {
	src := &countingSource{}
	m := NewManager(src, testFactory(), WithTimings(time.Minute, 10*time.Millisecond, 0))

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	require.Eventually(t, func() bool { return src.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background loop did not stop")
	}
}

func TestNextRefreshDelay(t *testing.T) {
	clock := newFakeClock()
	var token string
	src := credentials.SourceFunc(func(context.Context, string) (string, error) { return token, nil })
	m := NewManager(src, testFactory(), WithClock(clock.Now))

	assert.Equal(t, DefaultRefreshInterval, m.nextRefreshDelay())

	token = "opaque"
	_, err := m.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultRefreshInterval, m.nextRefreshDelay())

	token = jwtExpiring(t, clock.Now().Add(5*time.Minute))
	_, err = m.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, m.nextRefreshDelay())

	token = jwtExpiring(t, clock.Now().Add(time.Minute))
	_, err = m.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, minRefreshDelay, m.nextRefreshDelay())
}

func TestStatus(t *testing.T) {
	clock := newFakeClock()
	exp := clock.Now().Add(time.Hour)
	src := credentials.SourceFunc(func(context.Context, string) (string, error) {
		return jwtExpiring(t, exp), nil
	})
	m := NewManager(src, testFactory(), WithClock(clock.Now), WithTemplate("custom"))

	st := m.Status()
	assert.False(t, st.HasCredential)
	assert.Equal(t, "custom", st.Template)

	_, err := m.GetClient(context.Background())
	require.NoError(t, err)

	st = m.Status()
	assert.True(t, st.HasCredential)
	assert.True(t, st.Fresh)
	assert.Equal(t, "user-1", st.Subject)
	assert.Equal(t, int64(1), st.Refreshes)
	require.NotNil(t, st.ExpiresAt)
	assert.True(t, exp.Truncate(time.Second).Equal(*st.ExpiresAt))
	assert.NotEmpty(t, st.TokenPreview)
	assert.Empty(t, st.LastError)
}
