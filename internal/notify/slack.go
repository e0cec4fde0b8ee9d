// Package notify delivers triggered-alert notifications to an external
// channel with bounded, best-effort semantics.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"pricewatch-go/internal/alert"
)

// Slack posts alert messages to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
	log        zerolog.Logger
}

type slackPayload struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

func NewSlack(webhookURL string, log zerolog.Logger) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Configured reports whether a webhook URL is present.
func (s *Slack) Configured() bool { return s.webhookURL != "" }

// SendAlert posts one triggered-alert message. It returns whether delivery
// succeeded; an unconfigured webhook is a logged skip, not an error.
func (s *Slack) SendAlert(ctx context.Context, rule alert.Rule, price float64, ts time.Time) bool {
	if !s.Configured() {
		s.log.Debug().Str("alert", rule.ID).Msg("slack webhook not configured, skipping alert")
		return false
	}
	return s.post(ctx, slackPayload{
		Text:      formatAlertMessage(rule, price, ts),
		Username:  "Market Alert",
		IconEmoji: ":chart_with_upwards_trend:",
	})
}

// SendTest posts a canned message so operators can verify the integration.
func (s *Slack) SendTest(ctx context.Context) bool {
	if !s.Configured() {
		return false
	}
	return s.post(ctx, slackPayload{
		Text:      "🧪 *Test Alert*\n\nThis is a test notification from pricewatch.",
		Username:  "Market Alert",
		IconEmoji: ":test_tube:",
	})
}

func (s *Slack) post(ctx context.Context, payload slackPayload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal slack payload")
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.log.Error().Err(err).Msg("build slack request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("slack notification failed")
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Msg("slack notification rejected")
		return false
	}
	return true
}

func formatAlertMessage(rule alert.Rule, price float64, ts time.Time) string {
	label := rule.Kind
	switch rule.Kind {
	case alert.KindPriceAbove:
		label = "Price Above"
	case alert.KindPriceBelow:
		label = "Price Below"
	case alert.KindPctMove:
		label = "Percentage Move"
	}
	return fmt.Sprintf(
		"🚨 *Alert Triggered*\n\n*Symbol:* %s\n*Alert Type:* %s\n*Threshold:* $%.2f\n*Current Price:* $%.2f\n*Time:* %s\n",
		rule.Symbol, label, rule.Threshold, price, ts.UTC().Format(time.RFC3339),
	)
}
