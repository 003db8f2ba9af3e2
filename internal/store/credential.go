package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kmdcal/internal/auth"
	"kmdcal/internal/slothint"
)

const (
	credentialKey = "gcal_token"
	slotCacheKey  = "kmd_course_overview_cache"
)

// CredentialStore keeps the bearer credential as one JSON row of the kv
// table. It satisfies auth.CredentialStore.
type CredentialStore struct {
	DB *DB
}

var _ auth.CredentialStore = CredentialStore{}

func (s CredentialStore) Get(ctx context.Context) (auth.Credential, bool, error) {
	raw, ok, err := s.DB.GetValue(ctx, credentialKey)
	if err != nil || !ok {
		return auth.Credential{}, false, err
	}
	var c auth.Credential
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return auth.Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	return c, true, nil
}

func (s CredentialStore) Set(ctx context.Context, c auth.Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.DB.PutValue(ctx, credentialKey, string(data), time.Now().Unix())
}

func (s CredentialStore) Clear(ctx context.Context) error {
	return s.DB.DeleteValue(ctx, credentialKey)
}

// LoadSlotPayload reads the cached course overview; nil when none is stored.
func (d *DB) LoadSlotPayload(ctx context.Context) (*slothint.Payload, error) {
	raw, ok, err := d.GetValue(ctx, slotCacheKey)
	if err != nil || !ok {
		return nil, err
	}
	var p slothint.Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode slot payload: %w", err)
	}
	return &p, nil
}

// SaveSlotPayload replaces the cached course overview.
func (d *DB) SaveSlotPayload(ctx context.Context, p *slothint.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return d.PutValue(ctx, slotCacheKey, string(data), time.Now().Unix())
}
