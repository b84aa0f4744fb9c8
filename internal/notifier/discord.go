package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/italolelis/mocap_installer/internal/installer"
)

// discordContentLimit is the maximum message length Discord accepts.
const discordContentLimit = 2000

const ellipsis = "…"

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type DiscordNotifier struct {
	WebhookURL string
	HTTPClient *http.Client
}

func NewDiscordNotifier(webhookURL string, httpClient *http.Client) *DiscordNotifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &DiscordNotifier{WebhookURL: webhookURL, HTTPClient: httpClient}
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": truncate(content, discordContentLimit)}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// NotifyBatchFailure posts the artifacts a pipeline install left behind.
func (d *DiscordNotifier) NotifyBatchFailure(ctx context.Context, batchErr *installer.BatchError) error {
	var b strings.Builder

	fmt.Fprintf(&b, "❌ %s: %d artifact(s) need a manual download", batchErr.Pipeline, len(batchErr.Failures))

	for _, f := range batchErr.Failures {
		url := f.URL
		if url == "" {
			url = "no source reached"
		}

		fmt.Fprintf(&b, "\n• **%s** %s → `%s` (%s)", f.Artifact, url, f.Path, f.Reason)
	}

	return d.Notify(ctx, b.String())
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	cut := limit - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + ellipsis
}
