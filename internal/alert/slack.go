package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oshokin/cf-guard/internal/version"
)

// DefaultSendTimeout bounds a single delivery.
const DefaultSendTimeout = 10 * time.Second

var (
	errWebhookRequired = errors.New("slack webhook url is not set")
	errSlackStatus     = errors.New("slack returned non-2xx status")
)

// SlackChannel posts events to a Slack incoming webhook.
type SlackChannel struct {
	// webhookURL is the incoming webhook endpoint.
	webhookURL string
	// useBlocks selects Block Kit over a plain text payload.
	useBlocks bool
	// client performs the request.
	client *http.Client
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(webhookURL string, useBlocks bool) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		useBlocks:  useBlocks,
		client:     &http.Client{Timeout: DefaultSendTimeout},
	}
}

// Name implements Channel.
func (s *SlackChannel) Name() string {
	return "slack"
}

// Send implements Channel.
func (s *SlackChannel) Send(ctx context.Context, event Event) error {
	if s.webhookURL == "" {
		return errWebhookRequired
	}

	var payload any = map[string]string{"text": event.Text()}
	if s.useBlocks {
		payload = slackBlocks(event)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errSlackStatus, resp.StatusCode)
	}

	return nil
}

// slackBlocks builds the Block Kit payload.
func slackBlocks(event Event) map[string]any {
	field := func(title, value string) map[string]string {
		return map[string]string{"type": "mrkdwn", "text": "*" + title + ":*\n" + value}
	}

	return map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": "Cloudflare Guard Alert", "emoji": true},
			},
			map[string]any{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": "*" + event.Text() + "*"},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					field("Host", event.Host),
					field("Time (UTC)", event.Timestamp()),
					field("Target Mode", event.Mode.String()),
					field("Load / Threshold", FormatLoad(event.Load)+" / "+FormatLoad(event.Threshold)),
				},
			},
			map[string]any{
				"type": "context",
				"elements": []any{
					map[string]string{"type": "mrkdwn", "text": "Automated by " + version.Name},
				},
			},
		},
	}
}
