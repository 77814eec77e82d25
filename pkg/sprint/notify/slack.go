// Package notify implements the best-effort terminal-outcome notifier
// (a SPEC_FULL supplement, not a memory adapter): the daemon posts one
// Slack message when an issue reaches a terminal state so a human
// doesn't have to poll the IPC surface.
package notify

import (
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier posts terminal-outcome messages to a configured channel.
// A nil client (empty token) or an empty channel disables notification
// entirely; NotifyOutcome is then a no-op and safe to call unconditionally.
type Notifier struct {
	client  *slack.Client
	channel string
	log     *zap.Logger
}

func New(token, channel string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	var client *slack.Client
	if token != "" {
		client = slack.New(token)
	}
	return &Notifier{client: client, channel: channel, log: log}
}

// NotifyOutcome posts a one-line message about issueKey reaching a
// terminal outcome. Failures are logged, never propagated — this is
// best-effort per its own design, not part of the workflow's critical
// path.
func (n *Notifier) NotifyOutcome(issueKey, outcome, detail string) {
	if n.client == nil || n.channel == "" {
		return
	}
	text := issueKey + ": " + outcome
	if detail != "" {
		text += " (" + detail + ")"
	}
	if _, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false)); err != nil {
		n.log.Warn("slack notification failed", zap.String("issue_key", issueKey), zap.Error(err))
	}
}
