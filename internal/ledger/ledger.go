package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scanwarden/internal/findings"
)

var (
	// ErrTerminal is returned when a write targets an execution that already
	// reached a final state.
	ErrTerminal = errors.New("execution is terminal")

	// ErrStageRegression is returned when a stage transition would move the
	// pipeline backwards.
	ErrStageRegression = errors.New("stage transition would regress")

	// ErrNotFound is returned when an execution id does not exist.
	ErrNotFound = errors.New("execution not found")
)

// Ledger is the durable record of every scan attempt. It is the single
// source of truth for execution lifecycle state; SQLite serializes writers
// per row, which gives the at-least-one-writer-at-a-time guarantee the
// orchestrator and sweep rely on.
type Ledger struct {
	db *sql.DB

	// Logf receives diagnostics for silently-swallowed writes, such as a
	// late heartbeat against a closed execution.
	Logf func(format string, args ...interface{})
}

// NewLedger opens (or creates) the ledger database in dataDir.
func NewLedger(dataDir string) (*Ledger, error) {
	dbPath := filepath.Join(dataDir, "scanwarden.db")

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l := &Ledger{db: db, Logf: func(string, ...interface{}) {}}
	if err := l.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initTables() error {
	executionsTable := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		target_type TEXT NOT NULL,
		requester TEXT NOT NULL,
		state TEXT NOT NULL,
		current_stage TEXT,
		requested_stages TEXT NOT NULL,
		started_at TEXT NOT NULL,
		heartbeat_at TEXT NOT NULL,
		ended_at TEXT,
		error_detail TEXT
	);`

	stageOutputsTable := `
	CREATE TABLE IF NOT EXISTS stage_outputs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id INTEGER NOT NULL,
		stage TEXT NOT NULL,
		tool TEXT NOT NULL,
		stdout TEXT,
		stderr TEXT,
		exit_code INTEGER,
		duration_ms INTEGER,
		failed BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		FOREIGN KEY (execution_id) REFERENCES executions (id)
	);`

	findingsTable := `
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		execution_id INTEGER NOT NULL,
		source_tool TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		endpoint TEXT,
		vuln_id TEXT,
		evidence TEXT,
		remediation TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (execution_id) REFERENCES executions (id)
	);`

	tables := []string{executionsTable, stageOutputsTable, findingsTable}
	for _, table := range tables {
		if _, err := l.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateExecution records a newly accepted scan in the queued state and
// returns its monotonic execution id.
func (l *Ledger) CreateExecution(target, targetType, requester string, stages []string) (int64, error) {
	ts := now()
	query := `INSERT INTO executions (target, target_type, requester, state, requested_stages, started_at, heartbeat_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := l.db.Exec(query, target, targetType, requester, StateQueued, strings.Join(stages, ","), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to create execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get execution id: %w", err)
	}
	return id, nil
}

// AdvanceStage moves an execution into running at the given stage and
// refreshes the heartbeat. The stage must be strictly later than the current
// one (or the first stage from queued); transitions on terminal executions
// are rejected.
func (l *Ledger) AdvanceStage(id int64, stage string) error {
	if StageRank(stage) < 0 {
		return fmt.Errorf("unknown stage: %s", stage)
	}

	exec, err := l.GetExecution(id)
	if err != nil {
		return err
	}
	if IsTerminal(exec.State) {
		return fmt.Errorf("advance to %s on execution %d: %w", stage, id, ErrTerminal)
	}
	if exec.CurrentStage != "" && StageRank(stage) <= StageRank(exec.CurrentStage) {
		return fmt.Errorf("advance %s -> %s on execution %d: %w", exec.CurrentStage, stage, id, ErrStageRegression)
	}

	// Guard on the state read above so a concurrent terminal write wins.
	res, err := l.db.Exec(
		`UPDATE executions SET state = ?, current_stage = ?, heartbeat_at = ? WHERE id = ? AND state IN (?, ?)`,
		StateRunning, stage, now(), id, StateQueued, StateRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to advance stage: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("advance to %s on execution %d: %w", stage, id, ErrTerminal)
	}
	return nil
}

// Heartbeat refreshes the last-heartbeat time. A late heartbeat against a
// terminal execution is logged and dropped, never an error: a superseded
// worker must not resurrect a closed record.
func (l *Ledger) Heartbeat(id int64) error {
	res, err := l.db.Exec(
		`UPDATE executions SET heartbeat_at = ? WHERE id = ? AND state IN (?, ?)`,
		now(), id, StateQueued, StateRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		l.Logf("ignoring heartbeat for execution %d: already terminal or missing", id)
	}
	return nil
}

// Complete moves a non-terminal execution into a terminal state. Used by the
// orchestrator at the end of the reporting stage.
func (l *Ledger) Complete(id int64, state, errorDetail string) error {
	if !IsTerminal(state) {
		return fmt.Errorf("complete requires a terminal state, got %s", state)
	}

	var detail interface{}
	if errorDetail != "" {
		detail = errorDetail
	}
	res, err := l.db.Exec(
		`UPDATE executions SET state = ?, ended_at = ?, error_detail = ? WHERE id = ? AND state IN (?, ?)`,
		state, now(), detail, id, StateQueued, StateRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete execution %d: %w", id, ErrTerminal)
	}
	return nil
}

// ForceTerminal transitions a non-terminal execution straight to failed,
// regardless of stage. Reserved for the reconciliation sweep.
func (l *Ledger) ForceTerminal(id int64, reason string) error {
	res, err := l.db.Exec(
		`UPDATE executions SET state = ?, ended_at = ?, error_detail = ? WHERE id = ? AND state IN (?, ?)`,
		StateFailed, now(), reason, id, StateQueued, StateRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to force-terminate execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("force-terminate execution %d: %w", id, ErrTerminal)
	}
	return nil
}

// AddStageOutput stores the opaque raw result of one tool invocation.
func (l *Ledger) AddStageOutput(out StageOutput) error {
	_, err := l.db.Exec(
		`INSERT INTO stage_outputs (execution_id, stage, tool, stdout, stderr, exit_code, duration_ms, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ExecutionID, out.Stage, out.Tool, out.Stdout, out.Stderr, out.ExitCode,
		out.Duration.Milliseconds(), out.Failed, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to add stage output: %w", err)
	}
	return nil
}

// StageOutputs retrieves raw outputs for an execution in insertion order.
func (l *Ledger) StageOutputs(executionID int64) ([]StageOutput, error) {
	rows, err := l.db.Query(
		`SELECT id, execution_id, stage, tool, stdout, stderr, exit_code, duration_ms, failed, created_at
		 FROM stage_outputs WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage outputs: %w", err)
	}
	defer rows.Close()

	var outs []StageOutput
	for rows.Next() {
		var o StageOutput
		var durationMs int64
		var createdAt string
		if err := rows.Scan(&o.ID, &o.ExecutionID, &o.Stage, &o.Tool, &o.Stdout, &o.Stderr,
			&o.ExitCode, &durationMs, &o.Failed, &createdAt); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(durationMs) * time.Millisecond
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		outs = append(outs, o)
	}
	return outs, rows.Err()
}

// AttachFindings stores normalized findings for an execution. Findings are
// append-only and never shared across executions; a rescan writes new rows
// under its own execution id.
func (l *Ledger) AttachFindings(executionID int64, fs []findings.Finding) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO findings (execution_id, source_tool, severity, title, endpoint, vuln_id, evidence, remediation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, f := range fs {
		if _, err := stmt.Exec(executionID, f.SourceTool, f.Severity, f.Title, f.Endpoint,
			f.VulnID, f.Evidence, f.Remediation, ts); err != nil {
			return fmt.Errorf("failed to insert finding: %w", err)
		}
	}
	return tx.Commit()
}

// Findings retrieves an execution's findings in discovery order.
func (l *Ledger) Findings(executionID int64) ([]findings.Finding, error) {
	rows, err := l.db.Query(
		`SELECT source_tool, severity, title, endpoint, vuln_id, evidence, remediation
		 FROM findings WHERE execution_id = ? ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var fs []findings.Finding
	for rows.Next() {
		var f findings.Finding
		var vulnID, evidence, remediation sql.NullString
		if err := rows.Scan(&f.SourceTool, &f.Severity, &f.Title, &f.Endpoint, &vulnID, &evidence, &remediation); err != nil {
			return nil, err
		}
		f.VulnID = vulnID.String
		f.Evidence = evidence.String
		f.Remediation = remediation.String
		fs = append(fs, f)
	}
	return fs, rows.Err()
}

const executionColumns = `id, target, target_type, requester, state, current_stage, requested_stages, started_at, heartbeat_at, ended_at, error_detail`

func scanExecution(scan func(...interface{}) error) (*Execution, error) {
	var e Execution
	var currentStage, endedAt, errorDetail sql.NullString
	var stages, startedAt, heartbeatAt string

	if err := scan(&e.ID, &e.Target, &e.TargetType, &e.Requester, &e.State,
		&currentStage, &stages, &startedAt, &heartbeatAt, &endedAt, &errorDetail); err != nil {
		return nil, err
	}

	e.CurrentStage = currentStage.String
	e.ErrorDetail = errorDetail.String
	if stages != "" {
		e.RequestedStages = strings.Split(stages, ",")
	}
	e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	e.HeartbeatAt, _ = time.Parse(time.RFC3339Nano, heartbeatAt)
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err == nil {
			e.EndedAt = &t
		}
	}
	return &e, nil
}

// GetExecution retrieves a single execution by id.
func (l *Ledger) GetExecution(id int64) (*Execution, error) {
	row := l.db.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

func (l *Ledger) queryExecutions(query string, args ...interface{}) ([]Execution, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var execs []Execution
	for rows.Next() {
		e, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *e)
	}
	return execs, rows.Err()
}

// ListExecutions returns the most recent executions, newest first. This is
// the read-only surface the surrounding application lists history from.
func (l *Ledger) ListExecutions(limit int) ([]Execution, error) {
	return l.queryExecutions(`SELECT `+executionColumns+` FROM executions ORDER BY id DESC LIMIT ?`, limit)
}

// ListByTarget returns a target's executions, newest first.
func (l *Ledger) ListByTarget(target string, limit int) ([]Execution, error) {
	return l.queryExecutions(`SELECT `+executionColumns+` FROM executions WHERE target = ? ORDER BY id DESC LIMIT ?`, target, limit)
}

// RunningAtStage returns non-terminal executions currently at the given
// stage. Used at startup to requeue full-scan jobs orphaned by a restart.
func (l *Ledger) RunningAtStage(stage string) ([]Execution, error) {
	return l.queryExecutions(
		`SELECT `+executionColumns+` FROM executions WHERE state = ? AND current_stage = ? ORDER BY id`,
		StateRunning, stage)
}

// StaleRunning returns running executions whose heartbeat is older than the
// stage-dependent deadline. deadlineFor maps a stage to its deadline.
func (l *Ledger) StaleRunning(nowTime time.Time, deadlineFor func(stage string) time.Duration) ([]Execution, error) {
	running, err := l.queryExecutions(
		`SELECT `+executionColumns+` FROM executions WHERE state = ? ORDER BY id`, StateRunning)
	if err != nil {
		return nil, err
	}

	var stale []Execution
	for _, e := range running {
		deadline := deadlineFor(e.CurrentStage)
		if nowTime.Sub(e.HeartbeatAt) > deadline {
			stale = append(stale, e)
		}
	}
	return stale, nil
}
