package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/listarr/internal/models"
)

func newSessionServer(t *testing.T, refreshes *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "correct horse" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(models.ErrorResponse{Code: "invalid_credentials", Reason: "invalid credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(models.AuthResponse{
			User:  models.PublicUser{ID: "u1", Email: req.Email},
			Token: &models.TokenPair{AccessToken: "stale", RefreshToken: "r1"},
		})
	})
	mux.HandleFunc(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "fresh", RefreshToken: "r2"})
	})
	mux.HandleFunc(VerifyPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(models.VerifyResponse{UserID: "u1", Email: "ann@x.com", Role: models.RoleUser})
	})
	mux.HandleFunc(LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_LoginVerifyLogout(t *testing.T) {
	var refreshes atomic.Int32
	srv := newSessionServer(t, &refreshes)
	store := NewMemoryStore()
	c := New(srv.URL, store, srv.Client(), nil)
	ctx := context.Background()

	_, err := c.Login(ctx, "ann@x.com", "correct horse")
	require.NoError(t, err)

	who, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", who.UserID)
	assert.Equal(t, int32(1), refreshes.Load())

	creds, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", creds.RefreshToken)

	require.NoError(t, c.Logout(ctx))
	_, err = store.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestClient_LoginRejected(t *testing.T) {
	var refreshes atomic.Int32
	srv := newSessionServer(t, &refreshes)
	store := NewMemoryStore()
	c := New(srv.URL, store, srv.Client(), nil)

	_, err := c.Login(context.Background(), "ann@x.com", "wrong")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "invalid_credentials", statusErr.Code)

	_, err = store.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

// rotatingServer rotates refresh-1 into refresh-2 only when released, and
// records every refresh token presented to logout.
type rotatingServer struct {
	refreshStarted chan struct{}
	releaseRefresh chan struct{}

	mu      sync.Mutex
	revoked []string
}

func (s *rotatingServer) revokedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

func newRotatingServer(t *testing.T) (*httptest.Server, *rotatingServer) {
	t.Helper()
	rs := &rotatingServer{refreshStarted: make(chan struct{}), releaseRefresh: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		close(rs.refreshStarted)
		select {
		case <-rs.releaseRefresh:
		case <-r.Context().Done():
			return
		}
		_ = json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"})
	})
	mux.HandleFunc(LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		var req models.LogoutRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		rs.mu.Lock()
		rs.revoked = append(rs.revoked, req.RefreshToken)
		rs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rs
}

func TestClient_LogoutRejectsRequestWaitingOnRefresh(t *testing.T) {
	srv, rs := newRotatingServer(t)
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"}))
	c := New(srv.URL, store, srv.Client(), nil)

	errCh := make(chan error, 1)
	go func() {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/data", http.NoBody)
		if err != nil {
			errCh <- err
			return
		}
		resp, err := c.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
		errCh <- err
	}()

	<-rs.refreshStarted
	require.NoError(t, c.Logout(context.Background()))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrLoggedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("request waiting on refresh survived logout")
	}

	close(rs.releaseRefresh)

	assert.Eventually(t, func() bool {
		revoked := rs.revokedTokens()
		return len(revoked) == 2 && revoked[0] == "refresh-1" && revoked[1] == "refresh-2"
	}, 2*time.Second, 10*time.Millisecond, "both the old pair and the pair minted after logout must be revoked")

	_, err := store.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}
