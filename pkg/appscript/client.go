// Package appscript fetches Google Forms submissions through the App Script
// web endpoint that fronts the forms.
package appscript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/qri-io/jsonschema"
)

// Submission is one respondent as reported by the endpoint.
type Submission struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Timestamp string `json:"timestamp"`
}

// DisplayName builds a human name, falling back to the email local part when
// the endpoint carries no name fields.
func (s Submission) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName))
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(s.Email, "@")
	return strings.TrimSpace(local)
}

// SubmittedAt parses the endpoint timestamp. Unparseable or missing values
// fall back to the current time so a submission is never dropped over a
// malformed date.
func (s Submission) SubmittedAt() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s.Timestamp); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// FormResponses is the payload returned for one form.
type FormResponses struct {
	Emails []string     `json:"emails"`
	People []Submission `json:"people"`
	Error  string       `json:"error,omitempty"`
}

// payloadSchema rejects shapes the sync would otherwise misread, like a
// string where the emails array belongs.
var payloadSchema = jsonschema.Must(`{
	"type": "object",
	"properties": {
		"emails": {"type": "array", "items": {"type": "string"}},
		"people": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"email": {"type": "string"},
					"firstName": {"type": "string"},
					"lastName": {"type": "string"},
					"timestamp": {"type": "string"}
				},
				"required": ["email"]
			}
		},
		"error": {"type": "string"}
	}
}`)

// Config holds the endpoint settings.
type Config struct {
	URL     string
	Timeout time.Duration
	// Retries is the number of attempts after the first.
	Retries int
	Backoff time.Duration
	// CacheTTL bounds how long a fetched payload may be served again,
	// so an all-forms sync hits the endpoint once per form.
	CacheTTL time.Duration
}

type cacheEntry struct {
	payload *FormResponses
	fetched time.Time
}

// Client talks to the App Script endpoint.
type Client struct {
	cfg   Config
	httpc *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		cache: make(map[string]cacheEntry),
	}
}

// FetchResponses returns the submissions recorded for one Google form.
// Results are cached for the configured TTL.
func (c *Client) FetchResponses(ctx context.Context, googleFormID string) (*FormResponses, error) {
	if googleFormID == "" {
		return nil, fmt.Errorf("google form id is empty")
	}

	c.mu.Lock()
	if e, ok := c.cache[googleFormID]; ok && time.Since(e.fetched) < c.cfg.CacheTTL {
		c.mu.Unlock()
		return e.payload, nil
	}
	c.mu.Unlock()

	payload, err := c.fetch(ctx, googleFormID)
	if err != nil {
		return nil, err
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("endpoint reported: %s", payload.Error)
	}

	c.mu.Lock()
	c.cache[googleFormID] = cacheEntry{payload: payload, fetched: time.Now()}
	c.mu.Unlock()
	return payload, nil
}

// InvalidateCache drops any cached payloads so the next fetch is fresh.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context, googleFormID string) (*FormResponses, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
			}
		}
		payload, err := c.doRequest(ctx, googleFormID)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch responses for form %s: %w", googleFormID, lastErr)
}

func (c *Client) doRequest(ctx context.Context, googleFormID string) (*FormResponses, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint url: %w", err)
	}
	q := u.Query()
	if googleFormID != "" {
		q.Set("formId", googleFormID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if errs, err := payloadSchema.ValidateBytes(ctx, body); err != nil {
		return nil, fmt.Errorf("validate payload: %w", err)
	} else if len(errs) > 0 {
		return nil, fmt.Errorf("malformed payload: %s", errs[0].Error())
	}

	var payload FormResponses
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}

// SelfTest probes the endpoint without a form id. The endpoint answers such
// requests with a "missing formId" error, which proves it is deployed and
// reachable.
func (c *Client) SelfTest(ctx context.Context) error {
	payload, err := c.doRequest(ctx, "")
	if err != nil {
		return err
	}
	if payload.Error == "" {
		return fmt.Errorf("endpoint did not reject a probe without formId")
	}
	return nil
}
