package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kmdcal/internal/config"
	"kmdcal/internal/gcal"
	"kmdcal/internal/model"
	"kmdcal/internal/refresh"
	"kmdcal/internal/slothint"
	"kmdcal/internal/store"
)

type fakePages struct {
	states []refresh.PageState
	slots  *slothint.Payload
	runs   int
	saves  int
}

func (f *fakePages) Pages() []refresh.PageState { return f.states }

func (f *fakePages) Events() []model.ResolvedEvent {
	var out []model.ResolvedEvent
	for _, st := range f.states {
		out = append(out, st.Events...)
	}
	return out
}

func (f *fakePages) RunOnce(ctx context.Context) []refresh.PageState {
	f.runs++
	return f.states
}

func (f *fakePages) SlotPayload(ctx context.Context) (*slothint.Payload, error) { return f.slots, nil }

func (f *fakePages) SaveSlotPayload(ctx context.Context, p *slothint.Payload) error {
	f.slots = p
	f.saves++
	return nil
}

type fakeSyncer struct{ created, deleted int }

func (f *fakeSyncer) CreateBatch(ctx context.Context, events []model.ResolvedEvent) model.SyncBatchResult {
	f.created += len(events)
	n := len(events)
	return model.SyncBatchResult{BatchID: "b1", OK: true, Created: &n, Errors: []model.ItemError{}}
}

func (f *fakeSyncer) DeleteBatch(ctx context.Context, fps []string) model.SyncBatchResult {
	f.deleted += len(fps)
	n := len(fps)
	return model.SyncBatchResult{BatchID: "b2", OK: true, Deleted: &n, Errors: []model.ItemError{}}
}

type fakeLedger struct{ entries []store.LedgerEntry }

func (f *fakeLedger) Recent(ctx context.Context, limit int) ([]store.LedgerEntry, error) {
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeLedger) ByFingerprint(ctx context.Context, fp string) ([]store.LedgerEntry, error) {
	var out []store.LedgerEntry
	for _, e := range f.entries {
		if e.Fingerprint == fp {
			out = append(out, e)
		}
	}
	return out, nil
}

func sampleEvent(t *testing.T, title, start, end string, inferred bool) model.ResolvedEvent {
	t.Helper()
	s, err := model.ParseLocalDateTime(start)
	if err != nil {
		t.Fatal(err)
	}
	e, err := model.ParseLocalDateTime(end)
	if err != nil {
		t.Fatal(err)
	}
	return model.ResolvedEvent{Title: title, Start: s, End: e, Fingerprint: title, Inferred: inferred}
}

func newTestServer(t *testing.T, deps Deps, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(cfg, deps).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, Deps{Pages: &fakePages{}}, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health should skip auth, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/events", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", rec.Code)
	}
}

func TestEvents(t *testing.T) {
	pages := &fakePages{states: []refresh.PageState{{
		ID: "sys",
		Events: []model.ResolvedEvent{
			sampleEvent(t, "Systems 101 - Lecture 1", "2025-04-07T09:00:00", "2025-04-07T10:30:00", false),
			sampleEvent(t, "Systems 101 - Lecture 2", "2025-04-14T09:00:00", "2025-04-14T10:30:00", true),
		},
	}}}
	h := newTestServer(t, Deps{Pages: pages}, nil)

	rec := do(t, h, http.MethodGet, "/api/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	resp := decode[eventsResponse](t, rec)
	if len(resp.Events) != 2 || resp.DisplayTimeZone != "Asia/Tokyo" {
		t.Fatalf("unexpected response %+v", resp)
	}
	first := resp.Events[0]
	if first.StartAt != "2025-04-07T09:00:00+09:00" || first.Start.String() != "2025-04-07T09:00:00" {
		t.Fatalf("unexpected times %+v", first)
	}
	if !strings.HasPrefix(first.Link, "https://www.google.com/calendar/render?") {
		t.Fatalf("unexpected link %q", first.Link)
	}

	resp = decode[eventsResponse](t, do(t, h, http.MethodGet, "/api/events?inferred=0", ""))
	if len(resp.Events) != 1 || resp.Events[0].Inferred {
		t.Fatalf("inferred filter failed: %+v", resp.Events)
	}

	if rec := do(t, h, http.MethodGet, "/api/pages/sys/events", ""); rec.Code != http.StatusOK {
		t.Fatalf("page events: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/pages/nope/events", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/events.ics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("unexpected ics response %d %q", rec.Code, rec.Body.String())
	}

	if rec := do(t, h, http.MethodPost, "/api/refresh", ""); rec.Code != http.StatusOK || pages.runs != 1 {
		t.Fatalf("refresh: %d runs=%d", rec.Code, pages.runs)
	}
}

const uploadPage = `<html><body>
<h2><span class="en">Systems 101</span></h2>
<p>2025-04-07 09:00-10:30<br>Lecture 1</p>
<p>2025-04-14<br>Lecture 2</p>
</body></html>`

const uploadOverview = `<html><body>
<ul><li>トップページを切り替えました</li></ul>
<table><tr><td><a href="e_class_top.cgi?id=1">Systems 101</a></td><td>月1</td></tr></table>
</body></html>`

func TestExtract(t *testing.T) {
	pages := &fakePages{}
	h := newTestServer(t, Deps{Pages: pages}, nil)

	if rec := do(t, h, http.MethodPost, "/api/extract", "  "); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}

	resp := decode[extractResponse](t, do(t, h, http.MethodPost, "/api/extract", uploadPage))
	if len(resp.Events) != 1 || resp.Course.Name != "Systems 101" || resp.Cached {
		t.Fatalf("unexpected extract %+v", resp)
	}
	resp = decode[extractResponse](t, do(t, h, http.MethodPost, "/api/extract", uploadPage))
	if !resp.Cached {
		t.Fatal("expected the second upload to hit the cache")
	}

	resp = decode[extractResponse](t, do(t, h, http.MethodPost, "/api/extract", uploadOverview))
	if !resp.Homepage || resp.Courses != 1 || pages.saves != 1 {
		t.Fatalf("overview not stored: %+v saves=%d", resp, pages.saves)
	}

	// New hints invalidate cached extractions.
	resp = decode[extractResponse](t, do(t, h, http.MethodPost, "/api/extract", uploadPage))
	if resp.Cached || len(resp.Events) != 2 || !resp.Events[1].Inferred {
		t.Fatalf("expected re-extraction with hints, got %+v", resp)
	}

	resp = decode[extractResponse](t, do(t, h, http.MethodPost, "/api/extract?course=Other", uploadPage))
	if resp.Course.Name != "Other" || resp.Events[0].Title != "Other - Lecture 1" {
		t.Fatalf("course override ignored: %+v", resp)
	}
}

func TestCommands(t *testing.T) {
	if rec := do(t, newTestServer(t, Deps{}, nil), http.MethodPost, "/api/commands", `{}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a syncer, got %d", rec.Code)
	}

	syncer := &fakeSyncer{}
	h := newTestServer(t, Deps{Syncer: syncer}, nil)

	rec := do(t, h, http.MethodPost, "/api/commands",
		`{"type":"CREATE_EVENTS","events":[{"title":"a","start":"2025-04-07T09:00:00","end":"2025-04-07T10:00:00"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[model.SyncBatchResult](t, rec)
	if !res.OK || res.Created == nil || *res.Created != 1 || syncer.created != 1 {
		t.Fatalf("unexpected create result %+v", res)
	}

	res = decode[model.SyncBatchResult](t, do(t, h, http.MethodPost, "/api/commands", `{"type":"`+gcal.CommandDeleteEvents+`","fingerprints":["x","y"]}`))
	if res.Deleted == nil || *res.Deleted != 2 {
		t.Fatalf("unexpected delete result %+v", res)
	}

	if rec := do(t, h, http.MethodPost, "/api/commands", `{"type":"NOPE"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/commands", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/commands", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestLedger(t *testing.T) {
	ledger := &fakeLedger{entries: []store.LedgerEntry{
		{ID: 2, BatchID: "b", Action: store.ActionDelete, Fingerprint: "fp1", OK: true},
		{ID: 1, BatchID: "a", Action: store.ActionCreate, Fingerprint: "fp1", OK: true},
		{ID: 0, BatchID: "a", Action: store.ActionCreate, Fingerprint: "fp2", OK: false, Error: "boom"},
	}}
	h := newTestServer(t, Deps{Ledger: ledger}, nil)

	type ledgerResp struct {
		Entries []store.LedgerEntry `json:"entries"`
	}
	if got := decode[ledgerResp](t, do(t, h, http.MethodGet, "/api/ledger?limit=2", "")); len(got.Entries) != 2 {
		t.Fatalf("limit ignored: %+v", got)
	}
	if got := decode[ledgerResp](t, do(t, h, http.MethodGet, "/api/ledger?fp=fp1", "")); len(got.Entries) != 2 {
		t.Fatalf("fingerprint filter failed: %+v", got)
	}
	if got := decode[ledgerResp](t, do(t, h, http.MethodGet, "/api/ledger?fp=none", "")); got.Entries == nil || len(got.Entries) != 0 {
		t.Fatalf("expected an empty list, got %+v", got)
	}
}
