// SPDX-License-Identifier: AGPL-3.0-only
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/jolks/mcp-pingr/internal/clock"
)

// defaultSender identifies reminders on the receiving side
const defaultSender = "runtime:reminder"

// Webhook posts reminders to an HTTP endpoint. Posts are rate limited so a
// large batch of due tasks does not flood the receiver.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	clock   clock.Clock
}

type webhookPayload struct {
	Sender  string `json:"sender"`
	Title   string `json:"title"`
	Content string `json:"content"`
	SentAt  int64  `json:"sentAt"`
}

// NewWebhook creates a webhook notifier posting to url. A nil clk stamps
// payloads with the system clock.
func NewWebhook(url string, timeout time.Duration, clk clock.Clock) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		clock:   clk,
	}
}

// Deliver implements model.Notifier. The sender can be overridden with MCP_PINGR_SENDER.
func (w *Webhook) Deliver(ctx context.Context, title, body string) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	sender := os.Getenv("MCP_PINGR_SENDER")
	if sender == "" {
		sender = defaultSender
	}
	payload, err := json.Marshal(webhookPayload{
		Sender:  sender,
		Title:   title,
		Content: body,
		SentAt:  w.clock.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}
