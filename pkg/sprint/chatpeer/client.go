// Package chatpeer defines the UI chat peer contract spec §6
// describes: "exposes at least ping(), launch_issue_chat(...) on a bus
// interface". The daemon's foreground workflow depends on this peer
// being reachable before it moves an issue's tracker status.
package chatpeer

import (
	"context"
	"time"
)

// LaunchResult is launch_issue_chat's return shape (spec §6).
type LaunchResult struct {
	Success bool
	ChatID  string
}

// Peer is the UI chat peer contract.
type Peer interface {
	Ping(ctx context.Context) bool
	LaunchIssueChat(ctx context.Context, key, summary, prompt string, returnToPrevious bool) (LaunchResult, error)
}

// PingTimeout is the default IPC ping deadline (spec §5, ~5s).
const PingTimeout = 5 * time.Second

// Unavailable is a Peer that reports itself unreachable; used when no
// UI process has registered, so the foreground workflow correctly
// reports {waiting: true} instead of guessing (spec §4.J step 4).
type Unavailable struct{}

func (Unavailable) Ping(ctx context.Context) bool { return false }

func (Unavailable) LaunchIssueChat(ctx context.Context, key, summary, prompt string, returnToPrevious bool) (LaunchResult, error) {
	return LaunchResult{}, nil
}
