// Package gcal creates and deletes fingerprinted events in Google Calendar.
// Batches run strictly one request at a time, in input order.
package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"kmdcal/internal/auth"
	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/schedule"
	"kmdcal/internal/store"
)

// Item error codes for credential failures.
const (
	CodeAuthFailed      = "AUTH_FAILED"
	CodeAuthRetryFailed = "AUTH_RETRY_FAILED"

	// genericAPIError is recorded when an error response has no readable payload.
	genericAPIError = "Calendar API error"
)

// MaxListResults caps the fingerprint lookup page.
const MaxListResults = 2500

// Ledger receives the per-item outcome of every batch.
type Ledger interface {
	Record(ctx context.Context, entries []store.LedgerEntry) error
}

// Options configures a Client.
type Options struct {
	// Endpoint overrides the API base URL (tests, proxies).
	Endpoint string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// CalendarID defaults to "primary".
	CalendarID string
	// Location gives event times their UTC offset. Defaults to time.Local.
	Location *time.Location
	// TimeZone is sent as the event timeZone when set.
	TimeZone string
	Ledger   Ledger
}

// Client is the calendar sync engine.
type Client struct {
	svc        *calendar.Service
	tokens     auth.TokenProvider
	calendarID string
	loc        *time.Location
	timeZone   string
	ledger     Ledger

	newBatchID func() string
}

// New builds a Client. Tokens are attached per request, so the HTTP client
// carries no credentials of its own.
func New(ctx context.Context, tokens auth.TokenProvider, opts Options) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("gcal: token provider is nil")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	copts := []option.ClientOption{option.WithHTTPClient(hc)}
	if opts.Endpoint != "" {
		copts = append(copts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := calendar.NewService(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	c := &Client{
		svc:        svc,
		tokens:     tokens,
		calendarID: opts.CalendarID,
		loc:        opts.Location,
		timeZone:   opts.TimeZone,
		ledger:     opts.Ledger,
		newBatchID: uuid.NewString,
	}
	if c.calendarID == "" {
		c.calendarID = "primary"
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	return c, nil
}

// authError marks a credential failure with its item error code.
type authError struct {
	code string
	err  error
}

func (e *authError) Error() string { return e.code + ": " + e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

func isUnauthorized(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}

// withAuthRetry runs op with a token. On 401 it drops the stored
// credential, gets a new token and runs op exactly once more.
func (c *Client) withAuthRetry(ctx context.Context, op func(token string) error) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return &authError{code: CodeAuthFailed, err: err}
	}
	err = op(tok)
	if !isUnauthorized(err) {
		return err
	}

	appLog.Warn("calendar api rejected token, renewing")
	if err := c.tokens.Invalidate(ctx); err != nil {
		appLog.Error("credential clear failed", err)
	}
	tok, err = c.tokens.Token(ctx)
	if err != nil {
		return &authError{code: CodeAuthRetryFailed, err: err}
	}
	return op(tok)
}

// describe converts an item failure into its recorded form.
func describe(err error) (string, json.RawMessage) {
	var aerr *authError
	if errors.As(err, &aerr) {
		return aerr.code, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		var details json.RawMessage
		if gerr.Body != "" && json.Valid([]byte(gerr.Body)) {
			details = json.RawMessage(gerr.Body)
		}
		if gerr.Message == "" || details == nil {
			return genericAPIError, details
		}
		return gerr.Message, details
	}
	return err.Error(), nil
}

func bearer(h http.Header, token string) {
	h.Set("Authorization", "Bearer "+token)
}

// eventPayload maps a resolved event onto the API resource.
func (c *Client) eventPayload(ev model.ResolvedEvent) *calendar.Event {
	fp := ev.Fingerprint
	if fp == "" {
		fp = schedule.FingerprintEvent(ev)
	}
	end := ev.End
	if end.IsZero() {
		end = ev.Start
	}
	return &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.WithOffset(c.loc), TimeZone: c.timeZone},
		End:         &calendar.EventDateTime{DateTime: end.WithOffset(c.loc), TimeZone: c.timeZone},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{schedule.FingerprintKey: fp},
		},
	}
}

// CreateBatch inserts events one by one. Failures are recorded by input
// index and never stop the batch.
func (c *Client) CreateBatch(ctx context.Context, events []model.ResolvedEvent) model.SyncBatchResult {
	batchID := c.newBatchID()
	created := 0
	errs := []model.ItemError{}
	ledger := make([]store.LedgerEntry, 0, len(events))

	appLog.Info("create batch start", "batch", batchID, "events", len(events))
	for i, ev := range events {
		payload := c.eventPayload(ev)
		err := c.withAuthRetry(ctx, func(token string) error {
			call := c.svc.Events.Insert(c.calendarID, payload).Context(ctx)
			bearer(call.Header(), token)
			_, err := call.Do()
			return err
		})

		entry := store.LedgerEntry{
			BatchID:     batchID,
			Action:      store.ActionCreate,
			Fingerprint: payload.ExtendedProperties.Private[schedule.FingerprintKey],
			Title:       ev.Title,
			OK:          err == nil,
			At:          time.Now().Unix(),
		}
		if err != nil {
			msg, details := describe(err)
			idx := i
			errs = append(errs, model.ItemError{Index: &idx, Error: msg, Details: details})
			entry.Error = msg
			appLog.Error("create event failed", err, "batch", batchID, "index", i, "fp", entry.Fingerprint)
		} else {
			created++
		}
		ledger = append(ledger, entry)
	}

	c.record(ctx, ledger)
	appLog.Info("create batch done", "batch", batchID, "created", created, "errors", len(errs))
	return model.SyncBatchResult{BatchID: batchID, OK: len(errs) == 0, Created: &created, Errors: errs}
}

// DeleteBatch removes every remote event tagged with each fingerprint.
// A fingerprint with no remote events contributes zero deletions.
func (c *Client) DeleteBatch(ctx context.Context, fingerprints []string) model.SyncBatchResult {
	batchID := c.newBatchID()
	deleted := 0
	errs := []model.ItemError{}
	ledger := make([]store.LedgerEntry, 0, len(fingerprints))

	appLog.Info("delete batch start", "batch", batchID, "fingerprints", len(fingerprints))
	for _, fp := range fingerprints {
		n, failures := c.deleteFingerprint(ctx, fp)
		deleted += n

		entry := store.LedgerEntry{
			BatchID:     batchID,
			Action:      store.ActionDelete,
			Fingerprint: fp,
			OK:          len(failures) == 0,
			At:          time.Now().Unix(),
		}
		for _, err := range failures {
			msg, details := describe(err)
			errs = append(errs, model.ItemError{FP: fp, Error: msg, Details: details})
			if entry.Error == "" {
				entry.Error = msg
			}
			appLog.Error("delete events failed", err, "batch", batchID, "fp", fp)
		}
		ledger = append(ledger, entry)
	}

	c.record(ctx, ledger)
	appLog.Info("delete batch done", "batch", batchID, "deleted", deleted, "errors", len(errs))
	return model.SyncBatchResult{BatchID: batchID, OK: len(errs) == 0, Deleted: &deleted, Errors: errs}
}

// deleteFingerprint lists the events carrying fp and deletes them in
// order. A failed delete is reported and the remaining ids are still tried.
func (c *Client) deleteFingerprint(ctx context.Context, fp string) (int, []error) {
	ids, err := c.FindByFingerprint(ctx, fp)
	if err != nil {
		return 0, []error{err}
	}
	n := 0
	var failures []error
	for _, id := range ids {
		err := c.withAuthRetry(ctx, func(token string) error {
			call := c.svc.Events.Delete(c.calendarID, id).Context(ctx)
			bearer(call.Header(), token)
			return call.Do()
		})
		if err != nil && !isGone(err) {
			failures = append(failures, err)
			continue
		}
		n++
	}
	return n, failures
}

// FindByFingerprint returns the ids of remote events tagged with fp.
func (c *Client) FindByFingerprint(ctx context.Context, fp string) ([]string, error) {
	var ids []string
	err := c.withAuthRetry(ctx, func(token string) error {
		call := c.svc.Events.List(c.calendarID).
			PrivateExtendedProperty(schedule.FingerprintKey + "=" + fp).
			MaxResults(MaxListResults).
			Context(ctx)
		bearer(call.Header(), token)
		res, err := call.Do()
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, it := range res.Items {
			ids = append(ids, it.Id)
		}
		return nil
	})
	return ids, err
}

// isGone treats 410 as an event that is already deleted.
func isGone(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusGone
}

func (c *Client) record(ctx context.Context, entries []store.LedgerEntry) {
	if c.ledger == nil {
		return
	}
	// The batch outcome is recorded even when ctx was cancelled mid-batch.
	if err := c.ledger.Record(context.WithoutCancel(ctx), entries); err != nil {
		appLog.Error("ledger write failed", err, "entries", len(entries))
	}
}
