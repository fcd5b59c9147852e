package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SlackAlerter posts degraded/recovered listener alerts. A SlackAlerter
// built with an empty bot token is a noop that only logs.
type SlackAlerter struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackAlerter builds a SlackAlerter. If botToken is empty the
// alerter logs instead of posting.
func NewSlackAlerter(botToken, channel string, logger *slog.Logger) *SlackAlerter {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackAlerter{client: client, channel: channel, logger: logger}
}

func (a *SlackAlerter) enabled() bool {
	return a.client != nil && a.channel != ""
}

// post is best-effort: a Slack failure is logged, never returned, so it
// can never block the reconnect loop that calls it.
func (a *SlackAlerter) post(ctx context.Context, text string) {
	if !a.enabled() {
		if a.logger != nil {
			a.logger.Info("listener alert (slack disabled)", "message", text)
		}
		return
	}
	if _, _, err := a.client.PostMessageContext(ctx, a.channel, goslack.MsgOptionText(text, false)); err != nil && a.logger != nil {
		a.logger.Warn("posting listener alert to slack failed", "error", err)
	}
}

// Degraded alerts that the schema:update listener has exhausted its
// reconnect backoff.
func (a *SlackAlerter) Degraded(ctx context.Context, lastErr error) {
	a.post(ctx, fmt.Sprintf(":warning: schema:update listener disconnected and is backing off: %v", lastErr))
}

// Recovered alerts that a previously degraded listener has reconnected.
func (a *SlackAlerter) Recovered(ctx context.Context) {
	a.post(ctx, ":white_check_mark: schema:update listener reconnected")
}
