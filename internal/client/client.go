package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/models"
)

// Client talks to the API with a session that renews itself.
type Client struct {
	baseURL string
	plain   *http.Client
	authed  *http.Client
	store   CredentialRepository
	coord   *Coordinator
	log     *zap.SugaredLogger
}

// New builds a Client. plain is used for login, logout and refresh calls and
// may be nil.
func New(baseURL string, store CredentialRepository, plain *http.Client, log *zap.SugaredLogger, opts ...CoordinatorOption) *Client {
	if plain == nil {
		plain = &http.Client{Timeout: DefaultRefreshTimeout}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		plain:   plain,
		store:   store,
		log:     log,
	}

	opts = append([]CoordinatorOption{
		WithBaseTransport(plain.Transport),
		WithCoordinatorLogger(log),
		WithOnDiscardedRefresh(c.revokeDiscarded),
	}, opts...)
	c.coord = NewCoordinator(store, NewHTTPRefresher(c.baseURL, plain), opts...)
	c.authed = &http.Client{Transport: c.coord}
	return c
}

func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	err := postJSON(ctx, c.plain, c.baseURL+LoginPath, "", models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Token == nil {
		return nil, errors.New("login response carried no credentials")
	}
	if err = c.store.Set(ctx, CredentialsFromPair(resp.Token)); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	return &resp, nil
}

// Logout rejects queued requests and clears local state first, then ends
// the server session on a best-effort basis.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.coord.EndSession(ctx)
	if creds.AccessToken != "" || creds.RefreshToken != "" {
		c.revoke(ctx, creds)
	}
	return err
}

// revokeDiscarded ends the session a refresh created after Logout had
// already cleared the store.
func (c *Client) revokeDiscarded(creds Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRefreshTimeout)
	defer cancel()
	c.revoke(ctx, creds)
}

func (c *Client) revoke(ctx context.Context, creds Credentials) {
	err := postJSON(ctx, c.plain, c.baseURL+LogoutPath, creds.AccessToken,
		models.LogoutRequest{RefreshToken: creds.RefreshToken}, nil)
	if err != nil {
		c.log.Warnw("server logout failed", "error", err)
	}
}

// Verify asks the server who the current session belongs to. An expired
// access token is renewed on the way.
func (c *Client) Verify(ctx context.Context) (*models.VerifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+VerifyPath, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.authed.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeStatusError(resp)
	}
	var out models.VerifyResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &out, nil
}

// Do sends req with the current session attached.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.authed.Do(req)
}

func (c *Client) HTTPClient() *http.Client {
	return c.authed
}
