package auth

import (
	"context"
	"sync"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	"github.com/dvcrn/notebook-gateway/internal/credentials"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheWindow     = 5 * time.Minute
	DefaultRefreshInterval = 8 * time.Minute
	DefaultRefreshMargin   = 2 * time.Minute

	// minRefreshDelay bounds how soon an expiry-driven refresh is scheduled.
	minRefreshDelay = 30 * time.Second
	// sourceTimeout bounds one shared credential source request.
	sourceTimeout = 30 * time.Second
)

// slot is the single cached handle together with when it was minted.
type slot struct {
	client    *backend.Client
	createdAt time.Time
}

// Manager caches one backend client handle and replaces it when its
// credential is stale. All methods are safe for concurrent use; a refresh
// requested by several goroutines at once hits the source only once.
type Manager struct {
	source   credentials.Source
	factory  backend.Factory
	template string

	cacheWindow     time.Duration
	refreshInterval time.Duration
	refreshMargin   time.Duration

	logger zerolog.Logger
	now    func() time.Time

	mu            sync.Mutex
	current       *slot
	refreshes     int64
	lastRefreshAt time.Time
	lastErr       error

	group      singleflight.Group
	reschedule chan struct{}
	stopCh     chan struct{}
	stopOnce   sync.Once
	startOnce  sync.Once
	wg         sync.WaitGroup
}

type Option func(*Manager)

// WithClock replaces the time source. Timers of the background loop still
// run on wall time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTemplate selects the token template requested from the source.
func WithTemplate(template string) Option {
	return func(m *Manager) {
		if template != "" {
			m.template = template
		}
	}
}

// WithTimings overrides the cache window, background refresh period and the
// margin kept before a known expiry. Zero values keep the defaults.
func WithTimings(cacheWindow, refreshInterval, refreshMargin time.Duration) Option {
	return func(m *Manager) {
		if cacheWindow > 0 {
			m.cacheWindow = cacheWindow
		}
		if refreshInterval > 0 {
			m.refreshInterval = refreshInterval
		}
		if refreshMargin > 0 {
			m.refreshMargin = refreshMargin
		}
	}
}

func NewManager(source credentials.Source, factory backend.Factory, opts ...Option) *Manager {
	m := &Manager{
		source:          source,
		factory:         factory,
		template:        credentials.DefaultTemplate,
		cacheWindow:     DefaultCacheWindow,
		refreshInterval: DefaultRefreshInterval,
		refreshMargin:   DefaultRefreshMargin,
		logger:          zerolog.Nop(),
		now:             time.Now,
		reschedule:      make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "auth").Logger()
	return m
}

// GetClient returns the cached handle while it is younger than the cache
// window and its credential is not about to expire. Otherwise it mints a new
// credential and caches a new handle.
func (m *Manager) GetClient(ctx context.Context) (*backend.Client, error) {
	m.mu.Lock()
	if s := m.current; s != nil && m.fresh(s) {
		m.mu.Unlock()
		return s.client, nil
	}
	m.mu.Unlock()
	return m.refresh(ctx, "cache_miss")
}

// ForceRefresh mints a new credential regardless of the cache window.
func (m *Manager) ForceRefresh(ctx context.Context) (*backend.Client, error) {
	return m.refresh(ctx, "forced")
}

func (m *Manager) fresh(s *slot) bool {
	now := m.now()
	if now.Sub(s.createdAt) >= m.cacheWindow {
		return false
	}
	if exp, ok := s.client.ExpiresAt(); ok && !now.Before(exp.Add(-m.refreshMargin)) {
		return false
	}
	return true
}

// refresh coalesces concurrent callers onto one source request. Each caller
// still honours its own context while waiting.
func (m *Manager) refresh(ctx context.Context, reason string) (*backend.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sourceTimeout)
		defer cancel()
		return m.mint(fetchCtx, reason)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*backend.Client), nil
	}
}

func (m *Manager) mint(ctx context.Context, reason string) (*backend.Client, error) {
	if m.source == nil {
		return nil, m.fail(apperr.New(apperr.KindCredentialUnavailable, "auth.refresh", "no credential source configured"), true)
	}

	token, err := m.source.Token(ctx, m.template)
	if err != nil {
		m.logger.Error().Err(err).Str("reason", reason).Msg("❌ Credential source failed")
		return nil, m.fail(apperr.Wrap(apperr.KindCredentialUnavailable, "auth.refresh", err), false)
	}
	token = credentials.NormalizeToken(token)
	if token == "" {
		m.logger.Warn().Str("reason", reason).Msg("⚠️  Credential source returned no token, signed out")
		return nil, m.fail(apperr.New(apperr.KindCredentialUnavailable, "auth.refresh", "credential source returned no token"), true)
	}

	client, err := m.factory(token)
	if err != nil {
		return nil, m.fail(err, false)
	}

	now := m.now()
	m.mu.Lock()
	m.current = &slot{client: client, createdAt: now}
	m.refreshes++
	m.lastRefreshAt = now
	m.lastErr = nil
	m.mu.Unlock()

	select {
	case m.reschedule <- struct{}{}:
	default:
	}

	logEvent := m.logger.Info().
		Str("reason", reason).
		Str("token_preview", credentials.Preview(token))
	if exp, ok := client.ExpiresAt(); ok {
		logEvent = logEvent.Int64("minutes_until_expiry", int64(exp.Sub(now)/time.Minute))
	}
	logEvent.Msg("✅ Credential refreshed")
	return client, nil
}

// fail records err. A signed-out source also drops the cached handle; a
// failing source leaves it in place until it goes stale on its own.
func (m *Manager) fail(err error, signedOut bool) error {
	m.mu.Lock()
	m.lastErr = err
	if signedOut {
		m.current = nil
	}
	m.mu.Unlock()
	return err
}

// Start launches the background refresh loop. It runs until ctx is done or
// Close is called. Calling Start more than once has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.backgroundRefresh(ctx)
	})
}

// Close stops the background refresh loop and waits for it to exit.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) backgroundRefresh(ctx context.Context) {
	defer m.wg.Done()
	timer := time.NewTimer(m.nextRefreshDelay())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if _, err := m.ForceRefresh(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Background refresh: failed to refresh credential")
			}
			timer.Reset(m.nextRefreshDelay())
		case <-m.reschedule:
			timer.Reset(m.nextRefreshDelay())
		case <-ctx.Done():
			m.logger.Debug().Msg("Background credential refresh stopped")
			return
		case <-m.stopCh:
			m.logger.Debug().Msg("Background credential refresh stopped")
			return
		}
	}
}

// nextRefreshDelay is the refresh period, shortened so the credential is
// replaced refreshMargin before a known expiry.
func (m *Manager) nextRefreshDelay() time.Duration {
	delay := m.refreshInterval
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return delay
	}
	if exp, ok := s.client.ExpiresAt(); ok {
		untilRefresh := exp.Add(-m.refreshMargin).Sub(m.now())
		if untilRefresh < minRefreshDelay {
			untilRefresh = minRefreshDelay
		}
		if untilRefresh < delay {
			delay = untilRefresh
		}
	}
	return delay
}
