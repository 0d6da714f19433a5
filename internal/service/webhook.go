package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/models"
)

const (
	defaultHTTPStatusThreshold = 300
	webhookTimeout             = 10 * time.Second

	EventPasswordReset = "password_reset_requested"
	EventNewIP         = "session_ip_changed"
)

// Notifier delivers out-of-band account events. Implementations must not
// block the caller.
type Notifier interface {
	NotifyPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time)
	NotifyIPChange(ctx context.Context, user *models.User, oldIP, newIP string)
}

type WebhookPayload struct {
	Event     string    `json:"event"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	OldIP     string    `json:"old_ip,omitempty"`
	NewIP     string    `json:"new_ip,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

type WebhookService struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewWebhookService(log *zap.SugaredLogger, webhookURL string) *WebhookService {
	return &WebhookService{
		client:     &http.Client{Timeout: webhookTimeout},
		log:        log,
		webhookURL: webhookURL,
	}
}

func (s *WebhookService) NotifyPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) {
	if s.webhookURL == "" {
		s.log.Warnw("Password reset requested but no webhook is configured", "userID", user.ID)
		return
	}
	s.send(ctx, WebhookPayload{
		Event:     EventPasswordReset,
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expiresAt,
		SentAt:    time.Now().UTC(),
	})
}

func (s *WebhookService) NotifyIPChange(ctx context.Context, user *models.User, oldIP, newIP string) {
	s.send(ctx, WebhookPayload{
		Event:  EventNewIP,
		UserID: user.ID,
		Email:  user.Email,
		OldIP:  oldIP,
		NewIP:  newIP,
		SentAt: time.Now().UTC(),
	})
}

func (s *WebhookService) send(ctx context.Context, data WebhookPayload) {
	if s.webhookURL == "" {
		return
	}
	// The request outlives the handler that triggered it.
	ctx = context.WithoutCancel(ctx)

	go func() {
		payload, err := json.Marshal(data)
		if err != nil {
			s.log.Errorw("failed to marshal webhook payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send webhook", "event", data.Event, "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("webhook returned non-2xx status", "event", data.Event, "status", resp.StatusCode)
		}
	}()
}
