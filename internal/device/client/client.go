// Package client is the scanner device's HTTP client for the gate server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/tixgate/tixgate/internal/errs"
	"github.com/tixgate/tixgate/internal/model"
)

// ErrUnavailable marks transport-level failures: the server could not be
// reached at all. Callers use it to switch to offline operation; every other
// error is an answer from the server and must not trigger offline fallback.
var ErrUnavailable = errors.New("gate server unreachable")

// IsOffline reports whether the error means the server was unreachable.
func IsOffline(err error) bool { return errors.Is(err, ErrUnavailable) }

// Token is an issued device access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Scope is the server's answer about what the device's actor may scan.
type Scope struct {
	AllEvents bool        `json:"all_events"`
	EventIDs  []uuid.UUID `json:"event_ids"`
}

// CheckInRequest identifies a ticket either directly or by event and code.
type CheckInRequest struct {
	TicketID         uuid.UUID    `json:"ticket_id,omitempty"`
	EventID          uuid.UUID    `json:"event_id,omitempty"`
	Code             string       `json:"code,omitempty"`
	Origin           model.Origin `json:"origin,omitempty"`
	OfflineTimestamp *time.Time   `json:"offline_timestamp,omitempty"`
}

// CanonicalRecord is the server's accepted check-in for a ticket.
type CanonicalRecord struct {
	ID         uuid.UUID    `json:"id"`
	TicketID   uuid.UUID    `json:"ticket_id"`
	EventID    uuid.UUID    `json:"event_id"`
	ActorID    uuid.UUID    `json:"actor_id"`
	DeviceID   string       `json:"device_id"`
	ObservedAt time.Time    `json:"observed_at"`
	Origin     model.Origin `json:"origin"`
	CreatedAt  time.Time    `json:"created_at"`
}

// CheckInResult is the server's decision for one check-in submission.
type CheckInResult struct {
	Success   bool                 `json:"success"`
	Outcome   model.CheckInOutcome `json:"outcome"`
	Duplicate bool                 `json:"duplicate"`
	Canonical *CanonicalRecord     `json:"canonical_record"`
}

// Client talks to the gate server. It is safe for concurrent use; the bearer
// token may be swapped at any time via SetToken.
type Client struct {
	base string
	hc   *http.Client

	mu    sync.RWMutex
	token string
}

// New constructs a Client for the given base URL. The timeout bounds every
// request end to end so a dead link fails fast instead of hanging a gate line.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: base, hc: &http.Client{Timeout: timeout}}
}

// SetToken installs the bearer token for subsequent requests.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges device credentials for an access token and installs it.
func (c *Client) Login(ctx context.Context, deviceID, deviceKey string) (Token, error) {
	var tok Token
	err := c.do(ctx, http.MethodPost, "/auth/token",
		map[string]string{"device_id": deviceID, "device_key": deviceKey}, &tok)
	if err != nil {
		return Token{}, err
	}
	c.SetToken(tok.AccessToken)
	return tok, nil
}

// Manifest fetches the signed validation manifest for an event.
func (c *Client) Manifest(ctx context.Context, eventID uuid.UUID) (*model.Manifest, error) {
	var resp struct {
		Manifest *model.Manifest `json:"manifest"`
	}
	err := c.do(ctx, http.MethodGet, "/events/"+eventID.String()+"/manifest", nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Manifest == nil {
		return nil, fmt.Errorf("manifest response missing body")
	}
	return resp.Manifest, nil
}

// ScanScope asks which of the organizer's events the device's actor may scan.
func (c *Client) ScanScope(ctx context.Context, organizerID uuid.UUID) (Scope, error) {
	var s Scope
	err := c.do(ctx, http.MethodGet, "/organizers/"+organizerID.String()+"/scan-scope", nil, &s)
	return s, err
}

// Validate checks one code online.
func (c *Client) Validate(ctx context.Context, eventID uuid.UUID, code string) (model.ValidationStatus, error) {
	var resp struct {
		Status model.ValidationStatus `json:"status"`
	}
	err := c.do(ctx, http.MethodPost, "/scanner/validate",
		map[string]any{"event_id": eventID, "code": code}, &resp)
	return resp.Status, err
}

// CheckIn submits one check-in, online or replayed from the offline queue.
func (c *Client) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	var res CheckInResult
	err := c.do(ctx, http.MethodPost, "/scanner/check-in", req, &res)
	return res, err
}

// Stats fetches check-in progress for an event.
func (c *Client) Stats(ctx context.Context, eventID uuid.UUID) (model.EventStats, error) {
	var resp struct {
		Stats model.EventStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodGet, "/events/"+eventID.String()+"/check-in-stats", nil, &resp)
	return resp.Stats, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		// Transport failure, not a server answer.
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := statusErr(resp.StatusCode); err != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusErr(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case code == http.StatusForbidden:
		return errs.ErrPermissionDenied
	case code == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case code == http.StatusNotFound:
		return errs.ErrNotFound
	default:
		return fmt.Errorf("gate server: unexpected status %d", code)
	}
}
