package auth

import (
	"time"

	"github.com/dvcrn/notebook-gateway/internal/credentials"
)

// Status is a point-in-time view of the manager for diagnostics.
type Status struct {
	HasCredential bool       `json:"has_credential"`
	Template      string     `json:"template"`
	Subject       string     `json:"subject,omitempty"`
	TokenPreview  string     `json:"token_preview,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Fresh         bool       `json:"fresh"`
	Refreshes     int64      `json:"refreshes"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Template:  m.template,
		Refreshes: m.refreshes,
	}
	if !m.lastRefreshAt.IsZero() {
		t := m.lastRefreshAt
		st.LastRefreshAt = &t
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if s := m.current; s != nil {
		created := s.createdAt
		st.HasCredential = true
		st.CreatedAt = &created
		st.Subject = s.client.Subject()
		st.TokenPreview = credentials.Preview(s.client.Token())
		st.Fresh = m.fresh(s)
		if exp, ok := s.client.ExpiresAt(); ok {
			st.ExpiresAt = &exp
		}
	}
	return st
}
