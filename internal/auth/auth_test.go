package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type fakeConsent struct {
	calls int
	cred  Credential
	err   error
}

func (f *fakeConsent) Acquire(ctx context.Context) (Credential, error) {
	f.calls++
	return f.cred, f.err
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestProviderUsesStoredCredential(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &MemoryStore{}
	_ = store.Set(context.Background(), Credential{Token: "stored", ExpiresAtEpochSeconds: now.Add(time.Hour).Unix()})
	consent := &fakeConsent{}
	p := &Provider{Store: store, Consent: consent, Now: fixedNow(now)}

	tok, err := p.Token(context.Background())
	if err != nil || tok != "stored" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}
	if consent.calls != 0 {
		t.Fatalf("consent ran %d times for a usable credential", consent.calls)
	}
}

func TestProviderRenewsWithinMargin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := &MemoryStore{}
	_ = store.Set(context.Background(), Credential{Token: "old", ExpiresAtEpochSeconds: now.Add(59 * time.Second).Unix()})
	consent := &fakeConsent{cred: Credential{Token: "fresh", ExpiresAtEpochSeconds: now.Add(time.Hour).Unix()}}
	p := &Provider{Store: store, Consent: consent, Now: fixedNow(now)}

	tok, err := p.Token(context.Background())
	if err != nil || tok != "fresh" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}
	stored, ok, _ := store.Get(context.Background())
	if !ok || stored.Token != "fresh" {
		t.Fatalf("fresh credential not persisted: %+v", stored)
	}
}

func TestProviderWithoutConsent(t *testing.T) {
	p := NewProvider(&MemoryStore{}, nil)
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestProviderConsentFailures(t *testing.T) {
	boom := errors.New("boom")
	p := NewProvider(&MemoryStore{}, &fakeConsent{err: boom})
	if _, err := p.Token(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consent error, got %v", err)
	}

	p = NewProvider(&MemoryStore{}, &fakeConsent{})
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrConsentDeclined) {
		t.Fatalf("expected ErrConsentDeclined for an empty token, got %v", err)
	}
}

func TestProviderInvalidate(t *testing.T) {
	store := &MemoryStore{}
	_ = store.Set(context.Background(), Credential{Token: "x", ExpiresAtEpochSeconds: time.Now().Add(time.Hour).Unix()})
	p := NewProvider(store, nil)
	if err := p.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := store.Get(context.Background()); ok {
		t.Fatal("credential still stored after Invalidate")
	}
}

func TestCredentialUsable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name string
		c    Credential
		want bool
	}{
		{"empty", Credential{}, false},
		{"expired", Credential{Token: "t", ExpiresAtEpochSeconds: now.Unix() - 1}, false},
		{"inside margin", Credential{Token: "t", ExpiresAtEpochSeconds: now.Unix() + 60}, false},
		{"outside margin", Credential{Token: "t", ExpiresAtEpochSeconds: now.Unix() + 61}, true},
	}
	for _, tt := range tests {
		if got := tt.c.Usable(now); got != tt.want {
			t.Errorf("%s: Usable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCredentialFromToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := CredentialFromToken(&oauth2.Token{AccessToken: "a"}, now)
	if c.Token != "a" || c.ExpiresAtEpochSeconds != now.Unix()+3600 {
		t.Fatalf("unexpected default expiry %+v", c)
	}
	c = CredentialFromToken(&oauth2.Token{AccessToken: "b", Expiry: now.Add(10 * time.Minute)}, now)
	if c.ExpiresAtEpochSeconds != now.Unix()+600 {
		t.Fatalf("unexpected expiry %+v", c)
	}
	if CredentialFromToken(nil, now) != (Credential{}) {
		t.Fatal("nil token should give an empty credential")
	}
}

func TestStatic(t *testing.T) {
	if tok, err := Static("abc").Token(context.Background()); err != nil || tok != "abc" {
		t.Fatalf("Static.Token() = %q, %v", tok, err)
	}
	if _, err := Static("").Token(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}
