package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"kmdcal/internal/config"
	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/page"
	"kmdcal/internal/schedule"
	"kmdcal/internal/slothint"
)

// SlotCache persists the course overview the slot hints are built from.
type SlotCache interface {
	LoadSlotPayload(ctx context.Context) (*slothint.Payload, error)
	SaveSlotPayload(ctx context.Context, p *slothint.Payload) error
}

// PageState is the latest extraction result for one configured page.
type PageState struct {
	ID        string                `json:"id"`
	Name      string                `json:"name,omitempty"`
	Course    model.CourseContext   `json:"course"`
	Events    []model.ResolvedEvent `json:"events"`
	Homepage  bool                  `json:"homepage,omitempty"`
	FromCache bool                  `json:"from_cache,omitempty"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Refresher re-extracts the configured pages and keeps the results.
type Refresher struct {
	pages    []config.PageConfig
	override model.CourseContext
	fetcher  *page.Fetcher

	// SlotFile, when set, is read before Slots and written alongside it.
	SlotFile string
	Slots    SlotCache
	Now      func() time.Time

	runMu sync.Mutex

	mu     sync.RWMutex
	states map[string]PageState
}

// New builds a Refresher for the pages in cfg.
func New(cfg *config.Config, fetcher *page.Fetcher, slots SlotCache) *Refresher {
	return &Refresher{
		pages:    cfg.Pages,
		override: model.CourseContext{Name: cfg.CourseName, Location: cfg.CourseLocation},
		fetcher:  fetcher,
		SlotFile: cfg.SlotCache,
		Slots:    slots,
		Now:      time.Now,
		states:   make(map[string]PageState),
	}
}

func (r *Refresher) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// SlotPayload returns the cached course overview; nil when none exists.
func (r *Refresher) SlotPayload(ctx context.Context) (*slothint.Payload, error) {
	if r.SlotFile != "" {
		p, err := slothint.LoadFile(r.SlotFile)
		if err != nil || p != nil {
			return p, err
		}
	}
	if r.Slots == nil {
		return nil, nil
	}
	return r.Slots.LoadSlotPayload(ctx)
}

// SaveSlotPayload stores p in every configured cache.
func (r *Refresher) SaveSlotPayload(ctx context.Context, p *slothint.Payload) error {
	if r.SlotFile != "" {
		if err := slothint.SaveFile(r.SlotFile, p); err != nil {
			return fmt.Errorf("save slot file: %w", err)
		}
	}
	if r.Slots != nil {
		if err := r.Slots.SaveSlotPayload(ctx, p); err != nil {
			return fmt.Errorf("save slot cache: %w", err)
		}
	}
	return nil
}

// RunOnce fetches and extracts every page. Course overview pages are
// handled first so the other pages see fresh slot hints. Per-page
// failures are recorded in the page state and logged.
func (r *Refresher) RunOnce(ctx context.Context) []PageState {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	sources := make([]page.Source, 0, len(r.pages))
	byID := make(map[string]config.PageConfig, len(r.pages))
	for _, pc := range r.pages {
		sources = append(sources, page.Source{ID: pc.ID, URL: pc.URL, Render: pc.Render})
		byID[pc.ID] = pc
	}

	results, errs := r.fetcher.FetchAll(ctx, sources)
	now := r.now()

	next := make(map[string]PageState, len(r.pages))
	for _, err := range errs {
		var se *page.SourceError
		if !errors.As(err, &se) {
			continue
		}
		// Keep the last good events; FetchAll already logged the error.
		st := r.State(se.ID)
		st.ID, st.Name = se.ID, byID[se.ID].Name
		st.Error = se.Err.Error()
		next[se.ID] = st
	}

	// Overview pages first.
	var pending []page.FetchResult
	for _, res := range results {
		if !isOverview(res.Body) {
			pending = append(pending, res)
			continue
		}
		id := res.Source.ID
		doc, err := Extract(res.Body, model.CourseContext{}, nil, now)
		if err != nil {
			next[id] = PageState{ID: id, Name: byID[id].Name, Error: err.Error(), UpdatedAt: now}
			continue
		}
		if doc.Payload != nil {
			if err := r.SaveSlotPayload(ctx, doc.Payload); err != nil {
				appLog.Error("slot cache save failed", err, "id", id)
			}
		}
		next[id] = PageState{
			ID:        id,
			Name:      byID[id].Name,
			Homepage:  true,
			FromCache: res.FromCache,
			Events:    []model.ResolvedEvent{},
			UpdatedAt: now,
		}
	}

	payload, err := r.SlotPayload(ctx)
	if err != nil {
		appLog.Error("slot cache load failed", err)
	}

	total := 0
	for _, res := range pending {
		pc := byID[res.Source.ID]
		override := r.override
		if pc.CourseName != "" {
			override.Name = pc.CourseName
		}
		doc, err := Extract(res.Body, override, payload, now)
		if err != nil {
			next[pc.ID] = PageState{ID: pc.ID, Name: pc.Name, Error: err.Error(), UpdatedAt: now}
			continue
		}
		if doc.Events == nil {
			doc.Events = []model.ResolvedEvent{}
		}
		next[pc.ID] = PageState{
			ID:        pc.ID,
			Name:      pc.Name,
			Course:    doc.Course,
			Events:    doc.Events,
			FromCache: res.FromCache,
			UpdatedAt: now,
		}
		total += len(doc.Events)
		appLog.Info("page extracted", "id", pc.ID, "course", doc.Course.Name, "events", len(doc.Events), "hints_from", doc.HintCourse)
	}

	r.mu.Lock()
	r.states = next
	r.mu.Unlock()

	appLog.Info("refresh complete", "pages", len(r.pages), "failed", len(errs), "events", total)
	return r.Pages()
}

// State returns the last state of page id.
func (r *Refresher) State(id string) PageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[id]
}

// Pages returns the last state of every page in configuration order.
func (r *Refresher) Pages() []PageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PageState, 0, len(r.states))
	for _, pc := range r.pages {
		if st, ok := r.states[pc.ID]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Events returns the events of every page, deduplicated by fingerprint
// and ordered by start.
func (r *Refresher) Events() []model.ResolvedEvent {
	var all []model.ResolvedEvent
	for _, st := range r.Pages() {
		all = append(all, st.Events...)
	}
	all = schedule.Dedup(all)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	return all
}

// Start runs RunOnce on spec (standard 5-field cron) in loc until ctx is
// done. A run still in progress makes the next tick a no-op.
func (r *Refresher) Start(ctx context.Context, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("page refresh scheduled", "schedule", spec, "pages", len(r.pages))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Debug("page refresh stopped")
	}()
	return nil
}
