package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"ServerMonitorAPI/internal/logger"
)

const (
	SourceHeader = "X-Notification-Source"
	SourceValue  = "server-monitor"

	DefaultWebhookTimeout = 10 * time.Second
)

type webhookPayload struct {
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata"`
}

type WebhookProvider struct {
	client *http.Client
	log    *logger.Logger
}

func NewWebhookProvider(timeout time.Duration, log *logger.Logger) *WebhookProvider {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookProvider{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Send POSTs {title, message, metadata} to the destination URL. Any non-2xx
// response is a failure.
func (p *WebhookProvider) Send(ctx context.Context, destination, subject, content string, metadata map[string]interface{}) Result {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	body, err := json.Marshal(webhookPayload{Title: subject, Message: content, Metadata: metadata})
	if err != nil {
		return failure("encode webhook payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return failure("build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SourceHeader, SourceValue)

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("Webhook %s failed: %v", destination, err)
		return failure("webhook post: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure("webhook returned HTTP %d", resp.StatusCode)
	}

	p.log.Debug("Webhook delivered to %s", destination)
	return ok()
}
