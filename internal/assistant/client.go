// Package assistant adapts the external LLM conversation service (spec.md
// §6) to the Conversation Runtime's contract: one server-side conversation
// thread per prospect, tool calls dispatched through the tools registry and
// resubmitted until no function-call items remain, and the final output_text
// parsed as the structured reply directive.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/local/outreach/internal/session"
	"github.com/local/outreach/internal/telemetry"
	"github.com/local/outreach/internal/tools"
)

// Config carries the service endpoint and model selection.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Prompt  string // system instructions, sent with every response call
}

// Client talks to the assistant service over its JSON API.
type Client struct {
	cfg         Config
	http        *http.Client
	users       tools.UserStore
	registry    *tools.Registry
	transcripts *session.Store
	log         *telemetry.Logger
}

// New constructs a Client. transcripts may be nil to disable dialog
// recording.
func New(cfg Config, users tools.UserStore, registry *tools.Registry, transcripts *session.Store, log *telemetry.Logger) *Client {
	return &Client{
		cfg:         cfg,
		http:        &http.Client{Timeout: 120 * time.Second},
		users:       users,
		registry:    registry,
		transcripts: transcripts,
		log:         log,
	}
}

// GetOrCreateConversation returns the prospect's assistant-side thread
// handle, creating one on first contact and persisting it on the user row.
func (c *Client) GetOrCreateConversation(ctx context.Context, userID int64) (string, error) {
	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("assistant: conversation lookup: %w", err)
	}
	if user.ConversationID != "" && user.ConversationID != "0" {
		return user.ConversationID, nil
	}

	var result struct {
		ID string `json:"id"`
	}
	err = c.post(ctx, "conversations", map[string]any{
		"metadata": map[string]string{"user": fmt.Sprintf("%d", userID)},
	}, &result)
	if err != nil {
		return "", fmt.Errorf("assistant: create conversation: %w", err)
	}
	if err := c.users.UpdateUserParam(ctx, userID, "conversation_id", result.ID); err != nil {
		return "", err
	}
	return result.ID, nil
}

// post sends one JSON request, retrying 429/5xx with exponential back-off.
// Client errors other than 429 are permanent: re-sending a malformed request
// can't fix it.
func (c *Client) post(ctx context.Context, path string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/%s", c.cfg.BaseURL, path), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%s: status %d", path, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s: status %d: %.200s", path, resp.StatusCode, raw))
		}
		if result != nil {
			if err := json.Unmarshal(raw, result); err != nil {
				return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
			}
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx))
}
