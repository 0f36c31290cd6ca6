package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"scanwarden/internal/config"
	"scanwarden/internal/findings"
	"scanwarden/internal/ledger"
	"scanwarden/internal/progress"
	"scanwarden/internal/scanner"
	"scanwarden/pkg/models"
)

// StagePayload travels on stage_started / stage_completed / error events.
type StagePayload struct {
	Stage  string `json:"stage"`
	Detail string `json:"detail,omitempty"`
}

// DonePayload travels on the final done event.
type DonePayload struct {
	State           string `json:"state"`
	TotalFindings   int    `json:"total_findings"`
	HighestSeverity string `json:"highest_severity"`
	ErrorDetail     string `json:"error_detail,omitempty"`
}

type job struct {
	executionID int64
	target      string
	requester   string
}

// Orchestrator drives a target through liveness check, bounded quick scan,
// and background full scan, writing every transition to the ledger and
// publishing progress to the requester's stream.
//
// The orchestrator is the only writer for its executions; once it hands a
// full scan to the worker pool its self-healing ends and the reconciliation
// sweep takes over failure detection.
type Orchestrator struct {
	cfg      *config.Config
	ledger   *ledger.Ledger
	hub      *progress.Hub
	runner   scanner.Runner
	registry *findings.Registry

	jobs     chan job
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logf receives diagnostics that have no requester to report to.
	Logf func(format string, args ...interface{})
}

// New creates an orchestrator and starts its full-scan worker pool.
func New(cfg *config.Config, ldg *ledger.Ledger, hub *progress.Hub, runner scanner.Runner, registry *findings.Registry) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		ledger:   ldg,
		hub:      hub,
		runner:   runner,
		registry: registry,
		jobs:     make(chan job, cfg.QueueSize),
		Logf:     func(string, ...interface{}) {},
	}

	for i := 0; i < cfg.MaxWorkers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// Stop drains the worker pool. In-flight full scans finish; queued jobs that
// never ran stay in the ledger for RequeueOrphans on the next start.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.jobs)
	})
	o.wg.Wait()
}

// RequeueOrphans re-enqueues full-scan executions left running by a previous
// process. The ledger is the queue's source of truth; the channel is only a
// hand-off.
func (o *Orchestrator) RequeueOrphans() (int, error) {
	orphans, err := o.ledger.RunningAtStage(ledger.StageFullScan)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned executions: %w", err)
	}

	requeued := 0
	for _, e := range orphans {
		select {
		case o.jobs <- job{executionID: e.ID, target: e.Target, requester: e.Requester}:
			requeued++
		default:
			// Queue already full; the sweep will resolve what is left over.
		}
	}
	return requeued, nil
}

// Start accepts a scan and returns the new execution id immediately; the
// pipeline runs asynchronously. A target that already has a non-terminal
// execution gets a new, independent execution: scans are not deduplicated,
// each request is separately auditable.
func (o *Orchestrator) Start(ctx context.Context, target models.Target, requester string) (int64, error) {
	id, err := o.ledger.CreateExecution(target.Value, string(target.Type), requester, ledger.Stages())
	if err != nil {
		return 0, fmt.Errorf("failed to accept scan: %w", err)
	}

	go o.runInline(ctx, id, target.Value, requester)
	return id, nil
}

// runInline executes the two bounded synchronous stages and hands the full
// scan to the worker pool. The requester-facing path never waits longer than
// the sum of the two bounded timeouts plus a non-blocking enqueue.
func (o *Orchestrator) runInline(ctx context.Context, id int64, target, requester string) {
	// Stage 1: liveness. Failure here is a finding, not a fatal error, but a
	// dead host skips the deeper stages.
	alive, ok := o.runLiveness(ctx, id, target, requester)
	if !ok {
		return
	}
	if !alive {
		o.report(ctx, id, requester, "")
		return
	}

	// Stage 2: bounded quick scan. A timeout marks the stage failed but the
	// pipeline proceeds best-effort.
	if ok := o.runQuickScan(ctx, id, target, requester); !ok {
		return
	}

	// Stage 3: hand off the expensive scan and return control to the caller.
	if err := o.ledger.AdvanceStage(id, ledger.StageFullScan); err != nil {
		o.Logf("execution %d: %v", id, err)
		return
	}
	o.publishStage(requester, id, progress.EventStageStarted, ledger.StageFullScan, "queued for background worker")

	select {
	case o.jobs <- job{executionID: id, target: target, requester: requester}:
	default:
		o.publishStage(requester, id, progress.EventError, ledger.StageFullScan, "worker queue saturated")
		o.report(ctx, id, requester, "full scan skipped: worker queue saturated")
	}
}

// runLiveness returns (alive, pipeline-should-continue).
func (o *Orchestrator) runLiveness(ctx context.Context, id int64, target, requester string) (bool, bool) {
	if err := o.ledger.AdvanceStage(id, ledger.StageLiveness); err != nil {
		o.Logf("execution %d: %v", id, err)
		return false, false
	}
	o.publishStage(requester, id, progress.EventStageStarted, ledger.StageLiveness, "")

	out := o.runner.Run(ctx, scanner.LivenessProbe(target, o.cfg.Timeouts.Liveness))
	o.recordOutput(id, ledger.StageLiveness, "ping", out)

	alive := !out.TimedOut && out.ExitCode == 0
	detail := "host is alive"
	if !alive {
		detail = "host did not respond; skipping deeper stages"
	}
	o.publishStage(requester, id, progress.EventStageCompleted, ledger.StageLiveness, detail)
	return alive, true
}

// runQuickScan returns whether the pipeline should continue.
func (o *Orchestrator) runQuickScan(ctx context.Context, id int64, target, requester string) bool {
	if err := o.ledger.AdvanceStage(id, ledger.StageQuickScan); err != nil {
		o.Logf("execution %d: %v", id, err)
		return false
	}
	o.publishStage(requester, id, progress.EventStageStarted, ledger.StageQuickScan, "")

	out := o.runner.Run(ctx, scanner.QuickScan(target, o.cfg.Timeouts.QuickScan))
	o.recordOutput(id, ledger.StageQuickScan, "nmap", out)

	if out.Failed() {
		// Non-fatal: the full scan may still produce findings.
		o.publishStage(requester, id, progress.EventError, ledger.StageQuickScan, "quick scan failed, continuing")
	} else {
		o.publishStage(requester, id, progress.EventStageCompleted, ledger.StageQuickScan, "")
	}
	return true
}

// worker consumes full-scan jobs until the queue closes.
func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.runFullScan(context.Background(), j)
	}
}

func (o *Orchestrator) runFullScan(ctx context.Context, j job) {
	// Fresh heartbeat marks the job as claimed; if the ledger says the
	// execution is already terminal (sweep got there first), walk away.
	exec, err := o.ledger.GetExecution(j.executionID)
	if err != nil || ledger.IsTerminal(exec.State) {
		return
	}
	if err := o.ledger.Heartbeat(j.executionID); err != nil {
		o.Logf("execution %d: %v", j.executionID, err)
	}

	out := o.runner.Run(ctx, scanner.FullScan(j.target, o.cfg.Timeouts.FullScan))
	o.recordOutput(j.executionID, ledger.StageFullScan, "nuclei", out)

	switch {
	case out.TimedOut:
		// Terminal for the long stage: report partials, end timed_out.
		o.publishStage(j.requester, j.executionID, progress.EventError, ledger.StageFullScan, "full scan exceeded its deadline")
		o.reportWithState(ctx, j.executionID, j.requester, ledger.StateTimedOut, "full scan timed out")
	case out.Failed():
		o.publishStage(j.requester, j.executionID, progress.EventError, ledger.StageFullScan, "full scan tool failed")
		o.reportWithState(ctx, j.executionID, j.requester, ledger.StateFailed, fmt.Sprintf("full scan failed: %v", out.Err))
	default:
		o.publishStage(j.requester, j.executionID, progress.EventStageCompleted, ledger.StageFullScan, "")
		o.report(ctx, j.executionID, j.requester, "")
	}
}

// report runs the reporting stage and closes the execution as succeeded
// (or failed when errDetail names an earlier problem).
func (o *Orchestrator) report(ctx context.Context, id int64, requester, errDetail string) {
	state := ledger.StateSucceeded
	if errDetail != "" {
		state = ledger.StateFailed
	}
	o.reportWithState(ctx, id, requester, state, errDetail)
}

// reportWithState parses whatever raw output was gathered, attaches the
// findings, and moves the execution to its terminal state. Partial results
// always reach the ledger: scans never disappear silently.
func (o *Orchestrator) reportWithState(ctx context.Context, id int64, requester, state, errDetail string) {
	if err := o.ledger.AdvanceStage(id, ledger.StageReporting); err != nil {
		o.Logf("execution %d: %v", id, err)
		return
	}
	o.publishStage(requester, id, progress.EventStageStarted, ledger.StageReporting, "")

	outputs, err := o.ledger.StageOutputs(id)
	if err != nil {
		o.Logf("execution %d: failed to load stage outputs: %v", id, err)
	}

	var all []findings.Finding
	for _, out := range outputs {
		all = append(all, o.registry.Parse(out.Tool, out.Stdout, out.Stderr)...)
	}

	if err := o.ledger.AttachFindings(id, all); err != nil {
		o.Logf("execution %d: failed to attach findings: %v", id, err)
	}

	for _, f := range all {
		o.hub.Publish(requester, progress.Event{ExecutionID: id, Type: progress.EventFinding, Payload: f})
	}

	if err := o.ledger.Complete(id, state, errDetail); err != nil {
		// Sweep closed it first; its done event already went out.
		o.Logf("execution %d: %v", id, err)
		return
	}

	o.publishStage(requester, id, progress.EventStageCompleted, ledger.StageReporting, "")
	o.hub.Publish(requester, progress.Event{
		ExecutionID: id,
		Type:        progress.EventDone,
		Payload: DonePayload{
			State:           state,
			TotalFindings:   len(all),
			HighestSeverity: findings.HighestSeverity(all),
			ErrorDetail:     errDetail,
		},
	})
}

func (o *Orchestrator) recordOutput(id int64, stage, tool string, out scanner.Output) {
	err := o.ledger.AddStageOutput(ledger.StageOutput{
		ExecutionID: id,
		Stage:       stage,
		Tool:        tool,
		Stdout:      out.Stdout,
		Stderr:      out.Stderr,
		ExitCode:    out.ExitCode,
		Duration:    out.Duration,
		Failed:      out.Failed(),
	})
	if err != nil {
		o.Logf("execution %d: %v", id, err)
	}
	if err := o.ledger.Heartbeat(id); err != nil {
		o.Logf("execution %d: %v", id, err)
	}
}

func (o *Orchestrator) publishStage(requester string, id int64, eventType, stage, detail string) {
	o.hub.Publish(requester, progress.Event{
		ExecutionID: id,
		Type:        eventType,
		Payload:     StagePayload{Stage: stage, Detail: detail},
	})
}
