package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout is the per-request timeout for backend calls.
const DefaultTimeout = 30 * time.Second

// CredentialSource supplies HTTP Basic credentials for outgoing requests.
// Implemented by the auth manager; a nil source sends unauthenticated
// requests.
type CredentialSource interface {
	Credentials() (username, password string, ok bool)
}

// AuthInvalidatedFunc is called when the backend rejects the current
// credentials with a 401. Subscribers register via OnAuthInvalidated; the
// auth layer uses this to clear stored credentials without the client
// having to import it.
type AuthInvalidatedFunc func()

// Client is the typed HTTP client for the backend. All job and draft-PR
// state lives on the backend; the client is stateless apart from
// credentials and subscribers.
type Client struct {
	http  *resty.Client
	creds CredentialSource

	mu          sync.Mutex
	invalidated []AuthInvalidatedFunc
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sets the credential source for Basic auth.
func WithCredentials(src CredentialSource) Option {
	return func(c *Client) { c.creds = src }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient creates a client against the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("Content-Type", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.creds != nil {
			if user, pass, ok := c.creds.Credentials(); ok {
				req.SetBasicAuth(user, pass)
			}
		}
		return nil
	})

	c.http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.IsSuccess() {
			return nil
		}
		apiErr := &Error{StatusCode: resp.StatusCode(), Detail: decodeDetail(resp.Body())}
		if resp.StatusCode() == http.StatusUnauthorized {
			c.notifyAuthInvalidated()
		}
		return apiErr
	})

	return c
}

// OnAuthInvalidated registers a callback fired whenever the backend
// returns 401.
func (c *Client) OnAuthInvalidated(fn AuthInvalidatedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, fn)
}

func (c *Client) notifyAuthInvalidated() {
	c.mu.Lock()
	subs := make([]AuthInvalidatedFunc, len(c.invalidated))
	copy(subs, c.invalidated)
	c.mu.Unlock()

	slog.Debug("backend rejected credentials, notifying subscribers", "subscribers", len(subs))
	for _, fn := range subs {
		fn()
	}
}

// decodeDetail extracts the backend's {"detail": "..."} error body.
func decodeDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail == "" {
		return ""
	}
	return payload.Detail
}
