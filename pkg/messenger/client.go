// Package messenger sends reminder messages through the Facebook Messenger
// Send API.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stntools/relance/pkg/models"
)

const DefaultBaseURL = "https://graph.facebook.com/v17.0/me/messages"

// Config holds the Send API settings.
type Config struct {
	BaseURL   string
	PageToken string
	Timeout   time.Duration
	// SendDelay is the minimum interval between two sends.
	SendDelay time.Duration
}

// Message is one reminder to deliver.
type Message struct {
	PSID       string
	PersonName string
	Text       string
}

// Client is a paced Send API client. Safe for concurrent use; the limiter
// serializes the effective send rate across goroutines.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SendDelay == 0 {
		cfg.SendDelay = time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(cfg.SendDelay), 1),
	}
}

type sendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
	Error       *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one message, honoring the pacing interval. The result is
// always returned; a failed send reports Success=false with the error detail
// rather than aborting the caller's loop.
func (c *Client) Send(ctx context.Context, m Message) models.SendResult {
	res := models.SendResult{
		PersonName: m.PersonName,
		PSID:       m.PSID,
		Timestamp:  time.Now().UTC(),
	}
	if m.PSID == "" {
		res.Error = "no psid"
		return res
	}
	if err := c.limiter.Wait(ctx); err != nil {
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	msgID, err := c.post(ctx, m)
	res.Latency = time.Since(start)
	// book the next slot only once the call has returned, so the pacing
	// interval runs from the end of one send to the start of the next
	c.limiter.ReserveN(time.Now(), 1)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.MessageID = msgID
	return res
}

func (c *Client) post(ctx context.Context, m Message) (string, error) {
	var req sendRequest
	req.Recipient.ID = m.PSID
	req.Message.Text = m.Text

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"?access_token="+c.cfg.PageToken, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call send api: %w", err)
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("send api error %d (%s): %s", out.Error.Code, out.Error.Type, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("send api returned %d", resp.StatusCode)
	}
	return out.MessageID, nil
}

// SendBulk delivers the messages one by one at the paced rate and aggregates
// the outcomes. Failures do not stop the run.
func (c *Client) SendBulk(ctx context.Context, messages []Message) models.BulkSendStats {
	start := time.Now()
	stats := models.BulkSendStats{Results: make([]models.SendResult, 0, len(messages))}
	for _, m := range messages {
		res := c.Send(ctx, m)
		stats.Results = append(stats.Results, res)
		if res.Success {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}
	stats.Total = time.Since(start)
	return stats
}

// SelfTest checks the page token against the Graph API profile endpoint.
func (c *Client) SelfTest(ctx context.Context) error {
	probeURL := strings.TrimSuffix(c.cfg.BaseURL, "/messages") + "?access_token=" + c.cfg.PageToken
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call graph api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var out sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Error != nil {
			return fmt.Errorf("page token rejected: %s", out.Error.Message)
		}
		return fmt.Errorf("graph api returned %d", resp.StatusCode)
	}
	return nil
}
