// Package authclient is the client side of the chat auth API. It keeps the
// signed-in user and token, mirrors them into a Persistence adapter pair,
// re-validates the session ahead of expiry, and wraps outgoing requests so a
// rejected call gets one silent status check and one retry.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRefreshLead   = 5 * time.Minute
	DefaultStatusTimeout = 10 * time.Second
	DefaultLoginPath     = "/login"
)

// User is the sanitized account record returned by the server.
type User struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	LoginCount  int        `json:"loginCount"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Navigator moves the user between views.
type Navigator interface {
	Location() string
	Navigate(path string)
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPersistence sets the durable and session-scoped stores.
func WithPersistence(durable, scoped Persistence) Option {
	return func(c *Client) { c.session = NewSession(durable, scoped) }
}

func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.nav = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRefreshLead sets how long before expiry the scheduler re-validates.
func WithRefreshLead(d time.Duration) Option {
	return func(c *Client) { c.lead = d }
}

// WithStatusTimeout bounds a forced status check.
func WithStatusTimeout(d time.Duration) Option {
	return func(c *Client) { c.statusTimeout = d }
}

func WithLoginPath(p string) Option {
	return func(c *Client) { c.loginPath = p }
}

// Client is safe for concurrent use.
type Client struct {
	base          *url.URL
	http          *http.Client
	session       *Session
	nav           Navigator
	log           zerolog.Logger
	now           func() time.Time
	lead          time.Duration
	statusTimeout time.Duration
	loginPath     string

	mu      sync.Mutex
	state   State
	checked bool
	timer   *time.Timer
	closed  bool
}

// New returns a Client for the server at baseURL. Persisted state, when
// present and unexpired, is loaded as a provisional session until the first
// CheckStatus confirms it.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("authclient: invalid base url %q", baseURL)
	}

	c := &Client{
		base:          base,
		log:           zerolog.Nop(),
		now:           time.Now,
		lead:          DefaultRefreshLead,
		statusTimeout: DefaultStatusTimeout,
		loginPath:     DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("authclient: cookie jar: %w", err)
		}
		c.http = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	if c.session == nil {
		c.session = NewSession(NewMemoryStorage(), NewMemoryStorage())
	}

	if st, ok := c.session.Load(); ok {
		if c.now().Before(st.ExpiresAt) {
			c.state = st
		} else if err := c.session.Clear(); err != nil {
			c.log.Warn().Err(err).Msg("clear expired session")
		}
	}
	return c, nil
}

// Login authenticates and arms the refresh scheduler.
func (c *Client) Login(ctx context.Context, email, password string, remember bool) (*User, error) {
	body := map[string]any{
		"email":    NormalizeEmail(email),
		"password": password,
		"remember": remember,
	}
	env, err := c.call(ctx, http.MethodPost, "/api/auth/login", body, false)
	if err != nil {
		return nil, err
	}
	return c.establish(env)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	env, err := c.call(ctx, http.MethodPost, "/api/auth/register", in, false)
	if err != nil {
		return nil, err
	}
	return c.establish(env)
}

// Logout tells the server and drops local state whatever the server says.
// With redirect set, the navigator is sent to the login path.
func (c *Client) Logout(ctx context.Context, redirect bool) error {
	if _, err := c.call(ctx, http.MethodPost, "/api/auth/logout", nil, true); err != nil {
		c.log.Warn().Err(err).Msg("logout request failed")
	}
	c.clear()
	if redirect && c.nav != nil {
		c.nav.Navigate(c.loginPath)
	}
	return nil
}

// CheckStatus asks the server whether the session is still valid and adopts
// any reissued token. A rejected session clears local state. When force is
// set the call is bounded by the status timeout, and a transport failure
// keeps an already known user signed in.
func (c *Client) CheckStatus(ctx context.Context, force bool) (bool, error) {
	if force {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.statusTimeout)
		defer cancel()
	}

	env, err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, true)

	c.mu.Lock()
	c.checked = true
	known := c.state.User != nil
	c.mu.Unlock()

	var apiErr *APIError
	switch {
	case err == nil:
		if env.User == nil || env.ExpiresAt == nil {
			c.clear()
			return false, errors.New("authclient: malformed status response")
		}
		c.adopt(env)
		return true, nil
	case errors.As(err, &apiErr):
		c.clear()
		if apiErr.Unauthorized() {
			return false, nil
		}
		return false, err
	default:
		if force && known {
			c.log.Warn().Err(err).Msg("status check failed, keeping cached session")
			return true, nil
		}
		c.clear()
		return false, err
	}
}

// IsAuthenticated reports whether a user is held and the token is unexpired.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticatedLocked()
}

func (c *Client) authenticatedLocked() bool {
	return c.state.User != nil && c.now().Before(c.state.ExpiresAt)
}

// User returns a copy of the signed-in user, or nil.
func (c *Client) User() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.User.clone()
}

// ExpiresAt returns the current token expiry; zero when signed out.
func (c *Client) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ExpiresAt
}

// AuthFetch sends req with the current credentials. A 401 or 403 triggers
// exactly one forced status check; if it confirms the session the request
// is retried once and that response returned as is, otherwise
// ErrSessionExpired. Relative request URLs resolve against the base URL.
func (c *Client) AuthFetch(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req, req.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	drain(resp)

	ok, err := c.CheckStatus(req.Context(), true)
	if !ok {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, ErrSessionExpired
	}

	body := req.Body
	if body != nil && body != http.NoBody {
		if req.GetBody == nil {
			return nil, ErrBodyNotReplayable
		}
		if body, err = req.GetBody(); err != nil {
			return nil, fmt.Errorf("authclient: replay body: %w", err)
		}
	}
	return c.send(req, body)
}

// RequireAuth runs callback when signed in. Before the first status check
// completes it does nothing. When signed out it records the current location
// for PostLoginRedirect and navigates to redirectPath, or the login path
// when empty.
func (c *Client) RequireAuth(callback func(), redirectPath string) bool {
	c.mu.Lock()
	checked := c.checked
	authed := c.authenticatedLocked()
	c.mu.Unlock()

	if !checked {
		return false
	}
	if authed {
		if callback != nil {
			callback()
		}
		return true
	}
	if c.nav == nil {
		return false
	}
	if err := c.session.SetRedirect(c.nav.Location()); err != nil {
		c.log.Warn().Err(err).Msg("record redirect")
	}
	if redirectPath == "" {
		redirectPath = c.loginPath
	}
	c.nav.Navigate(redirectPath)
	return false
}

// PostLoginRedirect returns and forgets the location recorded by RequireAuth.
func (c *Client) PostLoginRedirect() (string, bool) {
	return c.session.TakeRedirect()
}

// Close stops the refresh scheduler.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

type envelope struct {
	Success        bool       `json:"success"`
	User           *User      `json:"user"`
	Token          string     `json:"token"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	TokenRefreshed bool       `json:"tokenRefreshed"`
	Error          string     `json:"error"`
	Code           string     `json:"code"`
}

func (c *Client) establish(env *envelope) (*User, error) {
	if env.User == nil || env.Token == "" || env.ExpiresAt == nil {
		return nil, errors.New("authclient: malformed auth response")
	}

	st := State{User: env.User.clone(), Token: env.Token, ExpiresAt: *env.ExpiresAt}
	c.mu.Lock()
	c.state = st
	c.checked = true
	c.scheduleLocked(st.ExpiresAt)
	c.mu.Unlock()

	if err := c.session.Save(st); err != nil {
		c.log.Warn().Err(err).Msg("persist session")
	}
	return env.User.clone(), nil
}

// adopt applies a successful status response.
func (c *Client) adopt(env *envelope) {
	c.mu.Lock()
	st := c.state
	st.User = env.User.clone()
	if env.TokenRefreshed && env.Token != "" {
		st.Token = env.Token
	}
	st.ExpiresAt = *env.ExpiresAt
	changed := !st.ExpiresAt.Equal(c.state.ExpiresAt)
	c.state = st
	// An unchanged expiry after the timer already fired is not rescheduled.
	if changed || c.timer == nil {
		c.scheduleLocked(st.ExpiresAt)
	}
	c.mu.Unlock()

	if err := c.session.Save(st); err != nil {
		c.log.Warn().Err(err).Msg("persist session")
	}
}

func (c *Client) clear() {
	c.mu.Lock()
	c.state = State{}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if err := c.session.Clear(); err != nil {
		c.log.Warn().Err(err).Msg("clear session")
	}
}

func (c *Client) scheduleLocked(expiresAt time.Time) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.closed {
		return
	}
	delay := expiresAt.Sub(c.now()) - c.lead
	if delay < 0 {
		delay = 0
	}
	c.timer = time.AfterFunc(delay, c.refresh)
}

func (c *Client) refresh() {
	ok, err := c.CheckStatus(context.Background(), true)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Msg("scheduled status check failed")
	case !ok:
		c.log.Info().Msg("session ended")
	default:
		c.log.Debug().Time("expires_at", c.ExpiresAt()).Msg("session revalidated")
	}
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Token
}

func (c *Client) resolve(u *url.URL) *url.URL {
	if u.IsAbs() {
		return u
	}
	return c.base.ResolveReference(u)
}

func (c *Client) send(req *http.Request, body io.ReadCloser) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL = c.resolve(req.URL)
	r.Host = ""
	r.Body = body
	if tok := c.bearer(); tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(r)
	if err != nil {
		return nil, fmt.Errorf("authclient: %s %s: %w", r.Method, r.URL.Path, err)
	}
	return resp, nil
}

// call performs a JSON request against the auth API.
func (c *Client) call(ctx context.Context, method, path string, in any, withAuth bool) (*envelope, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("authclient: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(&url.URL{Path: path}).String(), body)
	if err != nil {
		return nil, fmt.Errorf("authclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.bearer(); withAuth && tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Error, Code: env.Code}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("authclient: decode response: %w", decodeErr)
	}
	return &env, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
