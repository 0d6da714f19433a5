package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rryowa/listarr/internal/models"
)

const (
	RefreshPath = "/api/auth/refresh"
	LoginPath   = "/api/auth/login"
	LogoutPath  = "/api/auth/logout"
	VerifyPath  = "/api/auth/verify"
)

// StatusError is a non-2xx answer from the auth API.
type StatusError struct {
	StatusCode int
	Code       string
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("auth api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("auth api: status %d: %s", e.StatusCode, e.Reason)
}

// HTTPRefresher calls the refresh endpoint. Its client must not be routed
// through a Coordinator.
type HTTPRefresher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRefresher(baseURL string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRefresher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	var pair models.TokenPair
	err := postJSON(ctx, r.client, r.baseURL+RefreshPath, "", models.TokenRefreshRequest{RefreshToken: refreshToken}, &pair)
	if err != nil {
		return Credentials{}, err
	}
	return CredentialsFromPair(&pair), nil
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	var e models.ErrorResponse
	if json.NewDecoder(resp.Body).Decode(&e) == nil {
		statusErr.Code, statusErr.Reason = e.Code, e.Reason
	}
	return statusErr
}
