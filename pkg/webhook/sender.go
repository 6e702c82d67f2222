// Package webhook delivers JSON payloads to callback URLs with optional
// HMAC-SHA256 signing.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender posts webhook payloads over HTTP.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with standard transport settings.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SendOptions controls how a payload is sent.
type SendOptions struct {
	SigningKey string // HMAC key, empty = no signing
	EventType  string // value for the X-Harness-Event header
	EventID    string // value for the X-Harness-Delivery header
}

// Send delivers a payload via HTTP POST. Any 2xx response counts as
// delivered; everything else is an HTTPError.
func (s *Sender) Send(ctx context.Context, url string, payload any, opts SendOptions) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if opts.EventType != "" {
		req.Header.Set("X-Harness-Event", opts.EventType)
	}
	if opts.EventID != "" {
		req.Header.Set("X-Harness-Delivery", opts.EventID)
	}
	if opts.SigningKey != "" {
		req.Header.Set("X-Signature-256", generateSignature(body, opts.SigningKey))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &HTTPError{StatusCode: resp.StatusCode}
}

// Sign computes the HMAC-SHA256 signature a receiver should expect for a
// payload, in "sha256=<hex>" form.
func Sign(payload any, key string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return generateSignature(body, key), nil
}

func generateSignature(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// HTTPError represents a non-2xx webhook response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx errors (shouldn't retry).
func IsClientError(err error) bool {
	if he, ok := err.(*HTTPError); ok {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}
