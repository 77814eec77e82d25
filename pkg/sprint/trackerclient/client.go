// Package trackerclient implements the external issue-tracker contract
// spec §6 describes abstractly: "fetch active sprint", "fetch issues
// in sprint", "set issue status", surfaced through a process-local CLI
// wrapper with auth read from the environment.
package trackerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/oauth2"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Sprint mirrors the subset of sprint metadata the tracker API returns.
type Sprint struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Issue mirrors one tracker-side issue record.
type Issue struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary"`
	StoryPoints int       `json:"storyPoints"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	IssueType   string    `json:"issueType"`
	Assignee    string    `json:"assignee"`
	Created     time.Time `json:"created"`
}

// Client is the abstract tracker contract (spec §6 "Issue tracker").
type Client interface {
	FetchActiveSprint(ctx context.Context, project, component string) (Sprint, error)
	FetchSprintIssues(ctx context.Context, sprintID string) ([]Issue, error)
	SetIssueStatus(ctx context.Context, issueKey, status string) error
}

// CLIClient shells out to a configured tracker CLI binary, passing the
// OAuth2 token as an environment variable rather than an argument
// (spec §6 "Auth tokens read from environment"). Errors surface via
// nonzero exit + stderr, matching the tracker's documented contract.
type CLIClient struct {
	BinaryPath string
	BaseURL    string
	TokenSrc   oauth2.TokenSource
	Timeout    time.Duration
}

func NewCLIClient(binaryPath, baseURL string, tokenSrc oauth2.TokenSource) *CLIClient {
	return &CLIClient{BinaryPath: binaryPath, BaseURL: baseURL, TokenSrc: tokenSrc, Timeout: 60 * time.Second}
}

func (c *CLIClient) FetchActiveSprint(ctx context.Context, project, component string) (Sprint, error) {
	args := []string{"sprint", "active", "--project", project}
	if component != "" {
		args = append(args, "--component", component)
	}
	var sprint Sprint
	if err := c.runJSON(ctx, args, &sprint); err != nil {
		return Sprint{}, err
	}
	return sprint, nil
}

func (c *CLIClient) FetchSprintIssues(ctx context.Context, sprintID string) ([]Issue, error) {
	args := []string{"sprint", "issues", "--sprint-id", sprintID}
	var issues []Issue
	if err := c.runJSON(ctx, args, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (c *CLIClient) SetIssueStatus(ctx context.Context, issueKey, status string) error {
	args := []string{"issue", "transition", "--key", issueKey, "--status", status}
	_, err := c.run(ctx, args)
	if err != nil {
		return sharederrors.FailedToWithDetails("set issue status", "trackerclient", issueKey, err)
	}
	return nil
}

func (c *CLIClient) runJSON(ctx context.Context, args []string, out interface{}) error {
	stdout, err := c.run(ctx, args)
	if err != nil {
		return sharederrors.FailedToWithDetails("call tracker CLI", "trackerclient", strings.Join(args, " "), err)
	}
	if err := json.Unmarshal(stdout, out); err != nil {
		return sharederrors.FailedToWithDetails("parse tracker CLI output", "trackerclient", strings.Join(args, " "), err)
	}
	return nil
}

func (c *CLIClient) run(ctx context.Context, args []string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.BaseURL != "" {
		args = append(args, "--base-url", c.BaseURL)
	}

	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	cmd.Env = append(cmd.Env, envPairs(c.TokenSrc)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &sharederrors.ExternalToolError{Tool: c.BinaryPath, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return stdout.Bytes(), nil
}

func envPairs(src oauth2.TokenSource) []string {
	if src == nil {
		return nil
	}
	token, err := src.Token()
	if err != nil {
		return nil
	}
	return []string{fmt.Sprintf("TRACKER_AUTH_TOKEN=%s", token.AccessToken)}
}
