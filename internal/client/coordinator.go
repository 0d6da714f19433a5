package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRefreshTimeout = 10 * time.Second
	CSRFHeader            = "X-CSRF-Token"
)

var (
	// ErrSessionExpired wraps the refresh failure that ended the session.
	ErrSessionExpired = errors.New("session expired")
	ErrLoggedOut      = errors.New("logged out")
)

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

type state int

const (
	stateIdle state = iota
	stateRefreshing
)

type waiter struct {
	done  chan struct{}
	creds Credentials
	err   error
}

// Coordinator attaches the stored access token to outgoing requests and
// renews it on 401. At most one refresh is in flight; requests failing
// meanwhile wait for it and are released in arrival order. Each released
// request replays on its own goroutine, so replays may reach the server in
// any order.
type Coordinator struct {
	base      http.RoundTripper
	store     CredentialRepository
	refresher Refresher
	timeout   time.Duration
	onExpired func(error)

	// onDiscarded receives a pair minted by a refresh that finished after
	// logout. The server already considers it live.
	onDiscarded func(Credentials)
	log         *zap.SugaredLogger

	mu         sync.Mutex
	state      state
	generation uint64
	waiters    []*waiter
}

type CoordinatorOption func(*Coordinator)

func WithBaseTransport(rt http.RoundTripper) CoordinatorOption {
	return func(c *Coordinator) {
		if rt != nil {
			c.base = rt
		}
	}
}

// WithRefreshTimeout bounds a refresh call. Hitting it counts as failure.
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOnSessionExpired registers the hook that forces re-authentication.
func WithOnSessionExpired(fn func(error)) CoordinatorOption {
	return func(c *Coordinator) { c.onExpired = fn }
}

// WithOnDiscardedRefresh registers the hook that revokes a pair whose refresh
// completed after logout.
func WithOnDiscardedRefresh(fn func(Credentials)) CoordinatorOption {
	return func(c *Coordinator) { c.onDiscarded = fn }
}

func WithCoordinatorLogger(log *zap.SugaredLogger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

func NewCoordinator(store CredentialRepository, refresher Refresher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		base:      http.DefaultTransport,
		store:     store,
		refresher: refresher,
		timeout:   DefaultRefreshTimeout,
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	creds, err := c.store.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			return c.base.RoundTrip(req)
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	resp, err := c.send(req, creds.AccessToken, creds.CSRFToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	next, err := c.awaitToken(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	return c.send(req, next.AccessToken, next.CSRFToken)
}

// Logout clears the store and rejects every queued request. The result of
// a refresh still in flight is discarded.
func (c *Coordinator) Logout(ctx context.Context) error {
	_, err := c.EndSession(ctx)
	return err
}

// EndSession does what Logout does and returns the pair that was stored, so
// the caller can revoke it on the server afterwards. Queued requests are
// rejected before it returns. The pair is zero when nothing readable was
// stored.
func (c *Coordinator) EndSession(ctx context.Context) (Credentials, error) {
	c.mu.Lock()
	c.generation++
	waiters := c.waiters
	c.waiters = nil
	c.state = stateIdle
	creds, getErr := c.store.Get(ctx)
	clearErr := c.store.Clear(ctx)
	c.mu.Unlock()

	for _, w := range waiters {
		w.err = ErrLoggedOut
		close(w.done)
	}
	if getErr != nil {
		if !errors.Is(getErr, ErrNoCredentials) {
			c.log.Warnw("failed to load credentials on logout", "error", getErr)
		}
		creds = Credentials{}
	}
	if clearErr != nil {
		return creds, fmt.Errorf("clear credentials: %w", clearErr)
	}
	return creds, nil
}

// awaitToken returns credentials newer than stale, starting a refresh if
// none is running.
func (c *Coordinator) awaitToken(ctx context.Context, stale string) (Credentials, error) {
	c.mu.Lock()
	current, err := c.store.Get(ctx)
	if err != nil {
		c.mu.Unlock()
		return Credentials{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if c.state == stateIdle && current.AccessToken != stale {
		c.mu.Unlock()
		return current, nil
	}

	w := &waiter{done: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	if c.state == stateIdle {
		c.state = stateRefreshing
		go c.refresh(c.generation, current.RefreshToken)
	}
	c.mu.Unlock()

	select {
	case <-w.done:
		return w.creds, w.err
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

func (c *Coordinator) refresh(generation uint64, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.log.Debugw("Refreshing session")
	next, err := c.refresher.Refresh(ctx, refreshToken)

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.log.Debugw("Discarding refresh result after logout")
		if err == nil && c.onDiscarded != nil {
			c.onDiscarded(next)
		}
		return
	}
	waiters := c.waiters
	c.waiters = nil
	c.state = stateIdle
	if err == nil {
		err = c.store.Set(context.Background(), next)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionExpired, err)
		if clearErr := c.store.Clear(context.Background()); clearErr != nil {
			c.log.Warnw("failed to clear credentials", "error", clearErr)
		}
	}
	c.mu.Unlock()

	for _, w := range waiters {
		w.creds, w.err = next, err
		close(w.done)
	}

	if err != nil {
		c.log.Warnw("Session refresh failed", "waiters", len(waiters), "error", err)
		if c.onExpired != nil {
			c.onExpired(err)
		}
		return
	}
	c.log.Debugw("Session refreshed", "waiters", len(waiters))
}

func (c *Coordinator) send(req *http.Request, accessToken, csrfToken string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+accessToken)
	if csrfToken != "" && !isSafeMethod(req.Method) {
		out.Header.Set(CSRFHeader, csrfToken)
	}
	return c.base.RoundTrip(out)
}

func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
