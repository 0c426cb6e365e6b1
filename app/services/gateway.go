// Package services provides external service integrations and technical concerns like gateways and progress publishing
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/textwave/textwave/config"
	"github.com/textwave/textwave/utils"
)

// OutboundMessage is one message handed to a gateway.
type OutboundMessage struct {
	CampaignUUID string
	To           string
	Text         string
	CustomID     string
}

// GatewayReceipt is the provider acknowledgement for an accepted message.
type GatewayReceipt struct {
	GatewayMessageID string
	AcceptedAt       time.Time
}

// RetryableError marks a transient provider failure. The caller may retry
// after RetryAfter.
type RetryableError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable gateway failure (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// AuthError marks rejected credentials. Retrying cannot help until the
// configuration changes.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("gateway authentication failed: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// FatalError marks a permanent per-message rejection (bad number, blocked
// content). The message fails; the campaign keeps going.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("gateway rejected message: %v", e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsAuthFailure reports whether err is a credentials failure.
func IsAuthFailure(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// GatewayAdapter sends a single message and classifies any failure. The
// classification happens here so callers never inspect provider status
// codes themselves.
type GatewayAdapter interface {
	Send(ctx context.Context, msg OutboundMessage) (*GatewayReceipt, error)
}

// LiveGatewayAdapter talks to the real SMS provider over HTTP.
type LiveGatewayAdapter struct {
	config *config.GatewayConfig
	client *http.Client
}

// gatewayRequest is the provider wire format for a send call.
type gatewayRequest struct {
	SrcNum    string `json:"srcNum"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	CustomID  string `json:"customId,omitempty"`
}

// gatewayResponse is the provider wire format for a send result.
type gatewayResponse struct {
	MessageID  int64  `json:"messageId"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

// NewLiveGatewayAdapter creates an adapter against the configured provider.
func NewLiveGatewayAdapter(cfg *config.GatewayConfig) GatewayAdapter {
	return &LiveGatewayAdapter{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Send submits one message and maps the provider outcome onto the error
// kinds: 401/403 become AuthError, 429 and 5xx become RetryableError, other
// non-2xx statuses become FatalError.
func (g *LiveGatewayAdapter) Send(ctx context.Context, msg OutboundMessage) (*GatewayReceipt, error) {
	body, err := json.Marshal(gatewayRequest{
		SrcNum:    g.config.SourceNumber,
		Recipient: msg.To,
		Body:      msg.Text,
		CustomID:  msg.CustomID,
	})
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to marshal gateway request: %w", err)}
	}

	url := fmt.Sprintf("https://%s/api/v3.0.1/send", g.config.ProviderDomain)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &RetryableError{RetryAfter: g.config.DefaultRetryAfter, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Err: fmt.Errorf("provider returned %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &RetryableError{
			RetryAfter: retryAfterHeader(resp, g.config.DefaultRetryAfter),
			Err:        fmt.Errorf("provider returned %d", resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &FatalError{Err: fmt.Errorf("provider returned %d", resp.StatusCode)}
	}

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &RetryableError{RetryAfter: g.config.DefaultRetryAfter, Err: fmt.Errorf("failed to decode gateway response: %w", err)}
	}
	if result.StatusCode != 200 || result.Status != "ACCEPTED" {
		return nil, &FatalError{Err: fmt.Errorf("message rejected for %s: %s (%d)", result.Recipient, result.Status, result.StatusCode)}
	}

	return &GatewayReceipt{
		GatewayMessageID: strconv.FormatInt(result.MessageID, 10),
		AcceptedAt:       utils.UTCNow(),
	}, nil
}

func retryAfterHeader(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// MockGatewayAdapter simulates a provider for virtual campaigns and tests.
// It records every accepted message and can fail a configurable fraction of
// sends.
type MockGatewayAdapter struct {
	mu           sync.Mutex
	SentMessages []OutboundMessage

	FailureRate float64       // 0.0 to 1.0
	Latency     time.Duration // simulated provider latency
	failNext    int
}

// NewMockGatewayAdapter creates a mock gateway with no failures.
func NewMockGatewayAdapter() *MockGatewayAdapter {
	return &MockGatewayAdapter{
		SentMessages: make([]OutboundMessage, 0),
	}
}

// FailNext makes the next n sends return a retryable failure.
func (m *MockGatewayAdapter) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Send records the message or simulates a failure.
func (m *MockGatewayAdapter) Send(ctx context.Context, msg OutboundMessage) (*GatewayReceipt, error) {
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, &RetryableError{RetryAfter: time.Second, Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext > 0 {
		m.failNext--
		return nil, &RetryableError{RetryAfter: time.Second, Err: errors.New("simulated provider outage")}
	}
	if m.FailureRate > 0 && rand.Float64() < m.FailureRate {
		return nil, &FatalError{Err: errors.New("simulated provider rejection")}
	}

	m.SentMessages = append(m.SentMessages, msg)
	return &GatewayReceipt{
		GatewayMessageID: fmt.Sprintf("mock-%d", len(m.SentMessages)),
		AcceptedAt:       utils.UTCNow(),
	}, nil
}

// Sent returns a copy of the accepted messages.
func (m *MockGatewayAdapter) Sent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}
