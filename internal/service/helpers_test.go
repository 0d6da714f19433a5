package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage/memory"
	"github.com/rryowa/listarr/internal/util"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type resetMessage struct {
	userID string
	token  string
}

type recordingNotifier struct {
	mu      sync.Mutex
	resets  []resetMessage
	ipMoves []string
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, user *models.User, token string, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, resetMessage{userID: user.ID, token: token})
}

func (n *recordingNotifier) NotifyIPChange(_ context.Context, user *models.User, _, newIP string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ipMoves = append(n.ipMoves, user.ID+"@"+newIP)
}

func (n *recordingNotifier) lastReset() (resetMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		return resetMessage{}, false
	}
	return n.resets[len(n.resets)-1], true
}

func testTokenConfig() *util.TokenConfig {
	return &util.TokenConfig{
		JwtSecretKey:  []byte(strings.Repeat("s", 64)),
		CSRFSecretKey: []byte(strings.Repeat("c", 64)),
		Issuer:        "listarr-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		ResetTTL:      30 * time.Minute,
	}
}

type authFixture struct {
	svc      *AuthService
	store    *memory.Storage
	tokens   *TokenService
	clock    *testClock
	notifier *recordingNotifier
}

func newAuthFixture(t *testing.T, requireApproval bool) *authFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	clock := newTestClock()
	cfg := testTokenConfig()
	tokens := NewTokenService(cfg, WithTokenClock(clock.Now))
	store := memory.NewStorage(log)
	notifier := &recordingNotifier{}

	svc := NewAuthService(
		store,
		memory.NewTokenStorage(),
		tokens,
		NewCSRFManager(cfg.CSRFSecretKey),
		notifier,
		&util.AuthConfig{RequireApproval: requireApproval},
		log,
	)
	return &authFixture{svc: svc, store: store, tokens: tokens, clock: clock, notifier: notifier}
}

var browser = models.UserMetadata{UserAgent: "test-agent", IPAddress: "10.0.0.1"}
