package scanner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Invocation describes one external tool call. The orchestrator treats every
// scan stage as an opaque command taking a target and a timeout.
type Invocation struct {
	Tool    string
	Args    []string
	Timeout time.Duration
}

// Output is the raw result of a tool call. Shape differs per tool; parsing
// is the finding parser's concern, not the runner's.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
	Err      error
}

// Failed reports whether the invocation failed to produce usable output.
// A non-zero exit with stdout present is not a failure: several scanners
// exit non-zero when they find something.
func (o Output) Failed() bool {
	return o.TimedOut || (o.Err != nil && o.Stdout == "")
}

// Runner executes external scan tools.
type Runner interface {
	Run(ctx context.Context, inv Invocation) Output
}

// ExecRunner invokes tools as local processes.
type ExecRunner struct{}

// NewExecRunner returns a process-based runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// CheckTool verifies a tool is installed.
func (r *ExecRunner) CheckTool(tool string) error {
	if _, err := exec.LookPath(tool); err != nil {
		return fmt.Errorf("tool '%s' not found in PATH", tool)
	}
	return nil
}

// Run executes the invocation with a bounded timeout.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) Output {
	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, inv.Tool, inv.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Err:      err,
		TimedOut: runCtx.Err() == context.DeadlineExceeded,
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		out.ExitCode = -1
	}
	return out
}

// LivenessProbe builds the bounded ICMP probe for a target.
func LivenessProbe(target string, timeout time.Duration) Invocation {
	waitSecs := int(timeout.Seconds())
	if waitSecs < 1 {
		waitSecs = 1
	}
	return Invocation{
		Tool:    "ping",
		Args:    []string{"-c", "3", "-W", fmt.Sprintf("%d", waitSecs), target},
		Timeout: timeout,
	}
}

// QuickScan builds the scoped fast port scan. XML goes to stdout so the
// whole result travels through the opaque command boundary.
func QuickScan(target string, timeout time.Duration) Invocation {
	return Invocation{
		Tool:    "nmap",
		Args:    []string{"-F", "-Pn", "-oX", "-", target},
		Timeout: timeout,
	}
}

// FullScan builds the long-running vulnerability scan, one JSON object per
// matched template on stdout.
func FullScan(target string, timeout time.Duration) Invocation {
	return Invocation{
		Tool:    "nuclei",
		Args:    []string{"-target", target, "-jsonl", "-silent"},
		Timeout: timeout,
	}
}
