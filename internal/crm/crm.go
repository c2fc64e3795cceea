// Package crm submits qualified prospects to the CRM's form endpoint
// (spec.md §6): an HTTP POST with name, phone, note, telegram, the static
// form identifiers, and fresh per-submission UUIDs. HTTP 200 counts as
// success; everything else is a soft failure the caller reports back to the
// assistant.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config carries the static form identifiers the CRM hands out per form.
type Config struct {
	Endpoint string
	FormID   string
	Hash     string
	Referer  string
	Timezone string
}

// Client posts form submissions. A zero Endpoint disables it: Submit
// reports failure without a network call, so the tool path still degrades
// gracefully on an unconfigured deployment.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit posts one prospect to the CRM form. Returns true only on HTTP 200.
func (c *Client) Submit(ctx context.Context, name, phone, note, telegram string) bool {
	if c.cfg.Endpoint == "" {
		return false
	}

	origin, _ := json.Marshal(map[string]string{
		"datetime": time.Now().Format("Mon Jan 02 2006 15:04:05 GMT-0700"),
		"timezone": c.cfg.Timezone,
		"referer":  c.cfg.Referer,
	})

	form := url.Values{}
	form.Set("fields[name_1]", name)
	form.Set("fields[581821_1][521181]", phone)
	form.Set("fields[note_2]", note)
	form.Set("fields[656491_1]", telegram)
	form.Set("form_id", c.cfg.FormID)
	form.Set("hash", c.cfg.Hash)
	form.Set("user_origin", string(origin))
	form.Set("visitor_uid", uuid.NewString())
	form.Set("form_request_id", uuid.NewString())
	form.Set("gso_session_uid", uuid.NewString())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", originOf(c.cfg.Endpoint))
	req.Header.Set("Referer", c.cfg.Referer)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func originOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
