package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// NOTE: YAML is the native format (created on first run, saved with 0600).
// A path ending in .toml is read and written as TOML instead.

// PageConfig describes one course page to extract from.
type PageConfig struct {
	// URL is an http(s) URL or a local HTML file.
	URL string `yaml:"url" toml:"url" json:"url"`
	// ID is an internal identifier used for logging and API lookups.
	ID string `yaml:"id" toml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" toml:"name" json:"name"`
	// Render loads the page in headless Chromium before scanning.
	Render bool `yaml:"render,omitempty" toml:"render,omitempty" json:"render,omitempty"`
	// CourseName overrides the course name inferred from the page heading.
	CourseName string `yaml:"course_name,omitempty" toml:"course_name,omitempty" json:"course_name,omitempty"`
}

// OAuthConfig is the OAuth client registration for calendar access.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id" toml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret" json:"-"`
	RedirectURL  string   `yaml:"redirect_url" toml:"redirect_url" json:"redirect_url"`
	Scopes       []string `yaml:"scopes,omitempty" toml:"scopes,omitempty" json:"scopes,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// Timezone is the IANA zone whose offset is attached to event times.
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	// CalendarID is the target calendar; the signed-in user's default.
	CalendarID string `yaml:"calendar_id" toml:"calendar_id" json:"calendar_id"`

	// APIEndpoint overrides the Calendar API base URL.
	APIEndpoint string `yaml:"api_endpoint,omitempty" toml:"api_endpoint,omitempty" json:"api_endpoint,omitempty"`

	// StateDB is the SQLite file holding the credential, slot cache and ledger.
	StateDB string `yaml:"state_db" toml:"state_db" json:"state_db"`

	// SlotCache is an optional JSON course-overview file. When set it takes
	// precedence over the copy stored in StateDB.
	SlotCache string `yaml:"slot_cache,omitempty" toml:"slot_cache,omitempty" json:"slot_cache,omitempty"`

	// PageCache is the directory for conditional-request page caching.
	PageCache string `yaml:"page_cache" toml:"page_cache" json:"page_cache"`

	// CourseName and CourseLocation override page inference for every page.
	CourseName     string `yaml:"course_name,omitempty" toml:"course_name,omitempty" json:"course_name,omitempty"`
	CourseLocation string `yaml:"course_location,omitempty" toml:"course_location,omitempty" json:"course_location,omitempty"`

	// RefreshCron is a cron schedule (e.g. "0 */6 * * *") for re-extracting
	// configured pages while serving. Empty disables refresh.
	RefreshCron string `yaml:"refresh" toml:"refresh" json:"refresh"`

	// Pages is the list of course pages to extract.
	Pages []PageConfig `yaml:"pages" toml:"pages" json:"pages"`

	OAuth OAuthConfig `yaml:"oauth" toml:"oauth" json:"oauth"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "Asia/Tokyo"
	defaultRefresh  = "0 */6 * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		LogLevel:    "info",
		CalendarID:  "primary",
		StateDB:     "./var/kmdcal.db",
		PageCache:   "./var/page-cache",
		RefreshCron: defaultRefresh,
		Pages:       []PageConfig{},
	}
}

// Normalize fills in missing values so partial configs behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.StateDB == "" {
		c.StateDB = "./var/kmdcal.db"
	}
	if c.PageCache == "" {
		c.PageCache = "./var/page-cache"
	}
	if c.Pages == nil {
		c.Pages = []PageConfig{}
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page%d", i+1)
		}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Page returns the configured page with id.
func (c *Config) Page(id string) (PageConfig, bool) {
	for _, p := range c.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return PageConfig{}, false
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load loads configuration from path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the file is decoded (TOML for .toml, YAML otherwise) and
//     normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := encode(path, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".kmdcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func encode(path string, cfg *Config) ([]byte, error) {
	if !isTOML(path) {
		return yaml.Marshal(cfg)
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
