package store

import (
	"context"
	"path/filepath"
	"testing"

	"kmdcal/internal/auth"
	"kmdcal/internal/slothint"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "kmdcal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	s := CredentialStore{DB: openTestDB(t)}

	if _, ok, err := s.Get(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	want := auth.Credential{Token: "ya29.x", ExpiresAtEpochSeconds: 1_700_003_600}
	if err := s.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx)
	if err != nil || !ok || got != want {
		t.Fatalf("get = %+v ok=%v err=%v", got, ok, err)
	}

	want.Token = "ya29.y"
	if err := s.Set(ctx, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _, _ := s.Get(ctx); got.Token != "ya29.y" {
		t.Fatalf("overwrite not visible: %+v", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.Get(ctx); ok {
		t.Fatal("credential still present after clear")
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clearing twice: %v", err)
	}
}

func TestProviderOverSQLite(t *testing.T) {
	ctx := context.Background()
	s := CredentialStore{DB: openTestDB(t)}
	p := auth.NewProvider(s, nil)
	if _, err := p.Token(ctx); err == nil {
		t.Fatal("expected an error with an empty store and no consent")
	}
}

func TestSlotPayloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if p, err := db.LoadSlotPayload(ctx); err != nil || p != nil {
		t.Fatalf("expected no payload, got %+v, %v", p, err)
	}
	in := &slothint.Payload{
		CachedAt:  1_743_465_600_000,
		TermLabel: "2025 spring",
		Courses: []slothint.Course{{
			Name:        "Systems 101",
			Slots:       []string{"月1"},
			SlotDetails: []slothint.SlotDetail{{Weekday: "Mon", Start: "09:00", End: "10:30", Raw: "月1"}},
		}},
	}
	if err := db.SaveSlotPayload(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := db.LoadSlotPayload(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.TermLabel != in.TermLabel || len(out.Courses) != 1 || out.Courses[0].SlotDetails[0].Start != "09:00" {
		t.Fatalf("unexpected payload %+v", out)
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Record(ctx, nil); err != nil {
		t.Fatalf("empty record: %v", err)
	}
	entries := []LedgerEntry{
		{BatchID: "b1", Action: ActionCreate, Fingerprint: "8192c7ce", Title: "Systems 101 - Lecture 1", OK: true, At: 100},
		{BatchID: "b1", Action: ActionCreate, Fingerprint: "aaaa", OK: false, Error: "Calendar API error", At: 101},
		{BatchID: "b2", Action: ActionDelete, Fingerprint: "8192c7ce", OK: true, At: 200},
	}
	if err := db.Record(ctx, entries); err != nil {
		t.Fatalf("record: %v", err)
	}

	recent, err := db.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].BatchID != "b2" || recent[1].Error != "Calendar API error" {
		t.Fatalf("unexpected recent entries %+v", recent)
	}

	hist, err := db.ByFingerprint(ctx, "8192c7ce")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].Action != ActionCreate || hist[1].Action != ActionDelete || !hist[1].OK {
		t.Fatalf("unexpected history %+v", hist)
	}
	if hist[0].Time().Unix() != 100 {
		t.Fatalf("unexpected time %v", hist[0].Time())
	}
}
