// Package auth hands out bearer tokens for the calendar API and keeps the
// current credential in an injected store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "kmdcal/internal/log"
)

// ExpiryMargin is how long before expiry a token is already treated as stale.
const ExpiryMargin = 60 * time.Second

var (
	// ErrNoCredential means nothing is stored and no consent flow is available.
	ErrNoCredential = errors.New("auth: no credential available")
	// ErrConsentDeclined means the user aborted the consent flow.
	ErrConsentDeclined = errors.New("auth: consent declined")
)

// Credential is the persisted bearer token record.
type Credential struct {
	Token                 string `json:"token"`
	ExpiresAtEpochSeconds int64  `json:"expiresAtEpochSeconds"`
}

// ExpiresAt returns the expiry as a time.Time.
func (c Credential) ExpiresAt() time.Time {
	return time.Unix(c.ExpiresAtEpochSeconds, 0)
}

// Usable reports whether the token is set and outside the expiry margin.
func (c Credential) Usable(now time.Time) bool {
	return c.Token != "" && now.Add(ExpiryMargin).Before(c.ExpiresAt())
}

// CredentialStore persists the single current credential.
type CredentialStore interface {
	// Get returns the stored credential; ok is false when none is stored.
	Get(ctx context.Context) (c Credential, ok bool, err error)
	Set(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// Consent obtains a fresh credential from the user.
type Consent interface {
	Acquire(ctx context.Context) (Credential, error)
}

// TokenProvider is what the sync client depends on.
type TokenProvider interface {
	// Token returns a usable bearer token, running consent when needed.
	Token(ctx context.Context) (string, error)
	// Invalidate drops the stored credential after the server rejected it.
	Invalidate(ctx context.Context) error
}

// Provider is the TokenProvider backed by a CredentialStore and an
// optional Consent flow.
type Provider struct {
	Store   CredentialStore
	Consent Consent

	// Now is overridable in tests.
	Now func() time.Time
}

// NewProvider wires store and consent; consent may be nil for
// non-interactive use.
func NewProvider(store CredentialStore, consent Consent) *Provider {
	return &Provider{Store: store, Consent: consent, Now: time.Now}
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Token reads the store on every call; a stale or missing credential
// triggers consent and the result is stored.
func (p *Provider) Token(ctx context.Context) (string, error) {
	c, ok, err := p.Store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if ok && c.Usable(p.now()) {
		return c.Token, nil
	}
	if p.Consent == nil {
		return "", ErrNoCredential
	}

	appLog.Info("credential missing or expiring, starting consent")
	c, err = p.Consent.Acquire(ctx)
	if err != nil {
		return "", err
	}
	if c.Token == "" {
		return "", ErrConsentDeclined
	}
	if err := p.Store.Set(ctx, c); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return c.Token, nil
}

// Invalidate clears the stored credential.
func (p *Provider) Invalidate(ctx context.Context) error {
	return p.Store.Clear(ctx)
}

// MemoryStore is an in-process CredentialStore.
type MemoryStore struct {
	mu  sync.Mutex
	c   Credential
	set bool
}

func (m *MemoryStore) Get(ctx context.Context) (Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c, m.set, nil
}

func (m *MemoryStore) Set(ctx context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c, m.set = c, true
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c, m.set = Credential{}, false
	return nil
}

// Static is a fixed bearer token, for tokens minted outside this program.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

func (s Static) Invalidate(ctx context.Context) error { return nil }
