package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/term"
	"google.golang.org/api/calendar/v3"

	appLog "kmdcal/internal/log"
)

// DefaultTokenLifetime applies when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// OAuthSettings are the client registration values from config.
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OAuthConfig builds the oauth2 config for the calendar events scope.
func OAuthConfig(s OAuthSettings) *oauth2.Config {
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{calendar.CalendarEventsScope}
	}
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

// TerminalConsent prints the consent URL and reads the authorization code
// the user pastes back.
type TerminalConsent struct {
	Config *oauth2.Config
	In     *os.File
	Out    io.Writer
	Now    func() time.Time
}

// NewTerminalConsent uses stdin/stderr.
func NewTerminalConsent(cfg *oauth2.Config) *TerminalConsent {
	return &TerminalConsent{Config: cfg, In: os.Stdin, Out: os.Stderr, Now: time.Now}
}

// Acquire runs one consent round. An empty code is ErrConsentDeclined.
func (t *TerminalConsent) Acquire(ctx context.Context) (Credential, error) {
	if t.Config == nil || t.Config.ClientID == "" {
		return Credential{}, fmt.Errorf("%w: oauth client_id is not configured", ErrNoCredential)
	}
	state := fmt.Sprintf("kmdcal-%d", time.Now().UnixNano())
	url := t.Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
	fmt.Fprintf(t.Out, "Open this URL to authorize calendar access:\n\n  %s\n\nPaste the authorization code: ", url)

	code, err := t.readCode()
	if err != nil {
		return Credential{}, fmt.Errorf("read authorization code: %w", err)
	}
	if code == "" {
		return Credential{}, ErrConsentDeclined
	}

	tok, err := t.Config.Exchange(ctx, code)
	if err != nil {
		return Credential{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	c := CredentialFromToken(tok, now())
	appLog.Info("consent completed", "expires_at", c.ExpiresAt().Format(time.RFC3339))
	return c, nil
}

// readCode hides the pasted code on a terminal and falls back to a plain
// line read otherwise.
func (t *TerminalConsent) readCode() (string, error) {
	fd := int(t.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(t.Out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(t.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// CredentialFromToken records expiry as now + lifetime; tokens without an
// expiry get DefaultTokenLifetime.
func CredentialFromToken(tok *oauth2.Token, now time.Time) Credential {
	if tok == nil {
		return Credential{}
	}
	exp := tok.Expiry
	if exp.IsZero() {
		exp = now.Add(DefaultTokenLifetime)
	}
	return Credential{Token: tok.AccessToken, ExpiresAtEpochSeconds: exp.Unix()}
}
