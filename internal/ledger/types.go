package ledger

import "time"

// Lifecycle states. All terminal states are final: no execution ever
// transitions out of succeeded, failed, or timed_out.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateTimedOut  = "timed_out"
)

// Pipeline stages, in execution order.
const (
	StageLiveness  = "liveness"
	StageQuickScan = "quick_scan"
	StageFullScan  = "full_scan"
	StageReporting = "reporting"
)

var stageOrder = map[string]int{
	StageLiveness:  0,
	StageQuickScan: 1,
	StageFullScan:  2,
	StageReporting: 3,
}

// Stages returns the full pipeline in order.
func Stages() []string {
	return []string{StageLiveness, StageQuickScan, StageFullScan, StageReporting}
}

// StageRank returns the position of a stage in the pipeline; unknown stages
// rank before liveness so they can never pass the advance check.
func StageRank(stage string) int {
	if r, ok := stageOrder[stage]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether a lifecycle state is final.
func IsTerminal(state string) bool {
	switch state {
	case StateSucceeded, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// Execution is one attempt to scan a target. Rows are append-only history:
// executions reach a terminal state but are never deleted.
type Execution struct {
	ID              int64      `json:"id"`
	Target          string     `json:"target"`
	TargetType      string     `json:"target_type"`
	Requester       string     `json:"requester"`
	State           string     `json:"state"`
	CurrentStage    string     `json:"current_stage,omitempty"`
	RequestedStages []string   `json:"requested_stages"`
	StartedAt       time.Time  `json:"started_at"`
	HeartbeatAt     time.Time  `json:"heartbeat_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
}

// StageOutput is the opaque raw result of one tool invocation within an
// execution.
type StageOutput struct {
	ID          int64         `json:"id"`
	ExecutionID int64         `json:"execution_id"`
	Stage       string        `json:"stage"`
	Tool        string        `json:"tool"`
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	ExitCode    int           `json:"exit_code"`
	Duration    time.Duration `json:"duration"`
	Failed      bool          `json:"failed"`
	CreatedAt   time.Time     `json:"created_at"`
}
