// Package agent wraps the headless coding agent subprocess contract
// spec §6 describes: "an invokable subprocess that accepts a prompt
// via CLI arg and emits Markdown/text to stdout".
package agent

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/sony/gobreaker"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Result is one subprocess invocation's outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Invoker runs the headless agent binary with a wall-clock deadline,
// guarded by a circuit breaker so a wedged agent binary doesn't
// degrade every subsequent call (spec §5 background agent timeout =
// 1800s default).
type Invoker struct {
	BinaryPath string
	breaker    *gobreaker.CircuitBreaker
}

func NewInvoker(binaryPath string) *Invoker {
	return &Invoker{
		BinaryPath: binaryPath,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "agent-invoker",
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Invoke runs the agent with prompt as its sole argument, enforcing
// deadline as a wall-clock timeout (spec §4.J step 5). A timeout kills
// the process and sets Result.TimedOut rather than returning an error,
// since the caller needs the partial stdout captured so far.
func (inv *Invoker) Invoke(ctx context.Context, prompt string, deadline time.Duration) (Result, error) {
	v, err := inv.breaker.Execute(func() (interface{}, error) {
		return inv.run(ctx, prompt, deadline)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (inv *Invoker) run(ctx context.Context, prompt string, deadline time.Duration) (Result, error) {
	if deadline <= 0 {
		deadline = 1800 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.BinaryPath, prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), TimedOut: true}, nil
	}

	exitErr, isExitErr := err.(*exec.ExitError)
	switch {
	case err == nil:
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 0}, nil
	case isExitErr:
		// A nonzero exit is part of the agent's documented contract
		// (§4.J parses it alongside the marker), not an invoker failure.
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitErr.ExitCode()}, nil
	default:
		return Result{}, sharederrors.FailedToWithDetails("invoke headless agent", "agent", inv.BinaryPath, err)
	}
}
