// Package telegram is one concrete implementation of messaging.Sender: a
// plain net/http + encoding/json client against the upstream messaging
// service, grounded on the teacher's sdk/telegram/client.go do()/JSON
// envelope idiom. Generalized from the teacher's single-bot-token shape to
// one Client per Executor (own credentials, own session blob, optional
// proxy) with the first-contact raw-send protocol spec.md §4.2 requires.
//
// There is no idiomatic third-party Telegram *user-account* client in the
// example pack that also matches this plain-HTTP-do idiom (gotd/td is a
// real option but is a heavier client object model entirely) — see
// DESIGN.md for the full reasoning.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/local/outreach/internal/messaging"
)

// Client is one executor's connection to the upstream messaging service.
type Client struct {
	executorID     int64
	apiCredentials string
	sessionBlob    string
	proxy          *messaging.Proxy

	baseURL    string
	httpClient *http.Client
}

var _ messaging.Sender = (*Client)(nil)

// New constructs a Client for one executor. baseURL points at the upstream
// messaging service's HTTP gateway (an external collaborator per spec.md
// §1; its exact address is operator configuration, not part of this core).
func New(executorID int64, apiCredentials, sessionBlob string, proxy *messaging.Proxy, baseURL string) *Client {
	transport := http.DefaultTransport
	if proxy != nil {
		if proxyURL, err := buildProxyURL(proxy); err == nil {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return &Client{
		executorID:     executorID,
		apiCredentials: apiCredentials,
		sessionBlob:    sessionBlob,
		baseURL:        baseURL,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
	}
}

func buildProxyURL(p *messaging.Proxy) (*url.URL, error) {
	u := &url.URL{
		Scheme: p.Scheme,
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u, nil
}

// Connect establishes the session. Grounded on the teacher's Client being a
// thin HTTP wrapper with no persistent connection — "connect" here verifies
// the session blob is still accepted by the upstream service.
func (c *Client) Connect(ctx context.Context) error {
	var result struct {
		OK bool `json:"ok"`
	}
	err := c.do(ctx, "session.check", map[string]any{
		"api_credentials": c.apiCredentials,
		"session":         c.sessionBlob,
	}, &result)
	if err != nil {
		return &messaging.AuthFailedError{}
	}
	if !result.OK {
		return &messaging.AuthFailedError{}
	}
	return nil
}

// Close releases any resources the httpClient holds (its idle connections).
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// do sends one request to the upstream messaging service's JSON-envelope
// API, grounded on the teacher's do() exactly: build request, decode
// envelope, translate a non-OK envelope into an error. method namespacing
// ("session.check", "messages.send", ...) replaces the teacher's flat
// Bot-API method names since this client addresses a richer user-account
// surface (spec.md §6).
func (c *Client) do(ctx context.Context, method string, payload any, result any) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, method)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session", c.sessionBlob)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
		Error  *upstreamError  `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return classifyUpstreamError(envelope.Error)
	}
	if result != nil && envelope.Result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// upstreamError is the wire shape of a failed envelope; its Code field is
// translated into the messaging taxonomy by classifyUpstreamError.
type upstreamError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds"`
}

func classifyUpstreamError(e *upstreamError) error {
	if e == nil {
		return fmt.Errorf("upstream error (no detail)")
	}
	switch e.Code {
	case "FLOOD_WAIT":
		return &messaging.ThrottledWait{Wait: time.Duration(e.RetryAfter) * time.Second}
	case "PEER_FLOOD":
		return &messaging.PeerFloodError{}
	case "USER_IS_BLOCKED", "USER_BLOCKED":
		return &messaging.RecipientBlockedError{}
	case "PRIVACY_PREMIUM_REQUIRED":
		return &messaging.PremiumRequiredError{}
	case "SESSION_PASSWORD_NEEDED":
		return &messaging.TwoFactorRequiredError{}
	case "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "SESSION_EXPIRED":
		return &messaging.AuthFailedError{}
	case "PROXY_CONNECTION_FAILED":
		return &messaging.AuthFailedError{Proxy: true}
	default:
		return fmt.Errorf("upstream error %s: %s", e.Code, e.Message)
	}
}
