package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"kmdcal/internal/auth"
	"kmdcal/internal/config"
	"kmdcal/internal/gcal"
	"kmdcal/internal/ics"
	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/page"
	"kmdcal/internal/refresh"
	"kmdcal/internal/store"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// app is the wiring shared by the subcommands.
type app struct {
	cfg *config.Config
	loc *time.Location
	db  *store.DB
}

// loadApp loads config, applies the log level and opens the state database.
func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.StateDB)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, loc: loc, db: db}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) fetcher() *page.Fetcher {
	f := page.NewFetcher(a.cfg.PageCache)
	f.Renderer = page.ChromeRenderer{}
	return f
}

func (a *app) refresher() *refresh.Refresher {
	return refresh.New(a.cfg, a.fetcher(), a.db)
}

// tokens reads the stored credential; interactive adds the terminal
// consent flow for a missing or expiring one.
func (a *app) tokens(interactive bool) *auth.Provider {
	var consent auth.Consent
	if interactive {
		consent = auth.NewTerminalConsent(a.oauthConfig())
	}
	return auth.NewProvider(store.CredentialStore{DB: a.db}, consent)
}

func (a *app) oauthConfig() *oauth2.Config {
	return auth.OAuthConfig(auth.OAuthSettings{
		ClientID:     a.cfg.OAuth.ClientID,
		ClientSecret: a.cfg.OAuth.ClientSecret,
		RedirectURL:  a.cfg.OAuth.RedirectURL,
		Scopes:       a.cfg.OAuth.Scopes,
	})
}

func (a *app) calendar(ctx context.Context, interactive bool) (*gcal.Client, error) {
	return gcal.New(ctx, a.tokens(interactive), gcal.Options{
		Endpoint:   a.cfg.APIEndpoint,
		CalendarID: a.cfg.CalendarID,
		Location:   a.loc,
		TimeZone:   a.cfg.Timezone,
		Ledger:     a.db,
	})
}

// sourceOptions tune how loadDocument reads its argument.
type sourceOptions struct {
	course   string
	location string
	render   bool
}

// loadDocument resolves arg to events: an .ics export, the id of a
// configured page, or a page file or URL. A course overview page refreshes
// the slot cache instead.
func (a *app) loadDocument(ctx context.Context, arg string, so sourceOptions) (refresh.Document, error) {
	if strings.HasSuffix(strings.ToLower(arg), ".ics") {
		f, err := os.Open(arg)
		if err != nil {
			return refresh.Document{}, err
		}
		defer f.Close()
		events, err := ics.Import(f, a.loc)
		if err != nil {
			return refresh.Document{}, err
		}
		return refresh.Document{Events: events}, nil
	}

	override := model.CourseContext{Name: a.cfg.CourseName, Location: a.cfg.CourseLocation}
	src := page.Source{ID: "cli", URL: arg, Render: so.render}
	if pc, ok := a.cfg.Page(arg); ok {
		src = page.Source{ID: pc.ID, URL: pc.URL, Render: pc.Render || so.render}
		if pc.CourseName != "" {
			override.Name = pc.CourseName
		}
	}
	if so.course != "" {
		override.Name = so.course
	}
	if so.location != "" {
		override.Location = so.location
	}

	res, err := a.fetcher().FetchOne(ctx, src)
	if err != nil {
		return refresh.Document{}, fmt.Errorf("load page: %w", err)
	}

	r := a.refresher()
	payload, err := r.SlotPayload(ctx)
	if err != nil {
		appLog.Error("slot cache load failed", err)
	}
	doc, err := refresh.Extract(res.Body, override, payload, time.Now())
	if err != nil {
		return refresh.Document{}, err
	}
	if doc.Homepage && doc.Payload != nil {
		if err := r.SaveSlotPayload(ctx, doc.Payload); err != nil {
			return doc, err
		}
	}
	return doc, nil
}
