package ui

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"scanwarden/internal/findings"
	"scanwarden/internal/ledger"
	"scanwarden/internal/orchestrator"
	"scanwarden/internal/progress"
)

// UI handles all user interface elements
type UI struct {
	colors *uiColors
}

type uiColors struct {
	Blue    *color.Color
	Green   *color.Color
	Red     *color.Color
	Yellow  *color.Color
	Cyan    *color.Color
	Magenta *color.Color
	White   *color.Color
}

// NewUI creates a new UI instance
func NewUI() *UI {
	return &UI{
		colors: &uiColors{
			Blue:    color.New(color.FgBlue),
			Green:   color.New(color.FgGreen),
			Red:     color.New(color.FgRed),
			Yellow:  color.New(color.FgYellow),
			Cyan:    color.New(color.FgCyan),
			Magenta: color.New(color.FgMagenta),
			White:   color.New(color.FgWhite),
		},
	}
}

// ShowBanner displays the application banner
func (u *UI) ShowBanner() {
	u.colors.Blue.Println("╔══════════════════════════════════════════════════════════════╗")
	u.colors.Blue.Println("║                         ScanWarden                           ║")
	u.colors.Blue.Println("║          conversational scan orchestration console           ║")
	u.colors.Blue.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// ShowInfo displays an informational message
func (u *UI) ShowInfo(msg string) {
	u.colors.Cyan.Printf("[*] %s\n", msg)
}

// ShowSuccess displays a success message
func (u *UI) ShowSuccess(msg string) {
	u.colors.Green.Printf("[+] %s\n", msg)
}

// ShowError displays an error message
func (u *UI) ShowError(msg string) {
	u.colors.Red.Printf("[!] %s\n", msg)
}

// ShowWarning displays a warning message
func (u *UI) ShowWarning(msg string) {
	u.colors.Yellow.Printf("[-] %s\n", msg)
}

// ShowPrompt displays the chat prompt
func (u *UI) ShowPrompt() {
	u.colors.White.Print("\n> ")
}

// RenderEvent prints one progress event as a stage-by-stage progress line.
func (u *UI) RenderEvent(ev progress.Event) {
	switch ev.Type {
	case progress.EventStageStarted:
		if p, ok := ev.Payload.(orchestrator.StagePayload); ok {
			u.colors.Cyan.Printf("  [#%d] %s started", ev.ExecutionID, p.Stage)
			if p.Detail != "" {
				u.colors.Cyan.Printf(" (%s)", p.Detail)
			}
			fmt.Println()
		}
	case progress.EventStageCompleted:
		if p, ok := ev.Payload.(orchestrator.StagePayload); ok {
			u.colors.Green.Printf("  [#%d] %s completed", ev.ExecutionID, p.Stage)
			if p.Detail != "" {
				u.colors.Green.Printf(" (%s)", p.Detail)
			}
			fmt.Println()
		}
	case progress.EventFinding:
		if f, ok := ev.Payload.(findings.Finding); ok {
			u.severityColor(f.Severity).Printf("  [#%d] %s: %s (%s)\n", ev.ExecutionID, f.Severity, f.Title, f.Endpoint)
		}
	case progress.EventError:
		u.colors.Red.Printf("  [#%d] error: %v\n", ev.ExecutionID, payloadDetail(ev.Payload))
	case progress.EventDone:
		u.colors.Green.Printf("  [#%d] scan finished\n", ev.ExecutionID)
	}
}

func payloadDetail(p interface{}) string {
	switch v := p.(type) {
	case string:
		return v
	case orchestrator.StagePayload:
		return fmt.Sprintf("%s: %s", v.Stage, v.Detail)
	default:
		return fmt.Sprintf("%v", p)
	}
}

func (u *UI) severityColor(severity string) *color.Color {
	switch severity {
	case findings.SeverityCritical:
		return u.colors.Magenta
	case findings.SeverityHigh:
		return u.colors.Red
	case findings.SeverityMedium:
		return u.colors.Yellow
	case findings.SeverityLow:
		return u.colors.Cyan
	default:
		return u.colors.White
	}
}

// RenderReport prints a ranked report grouped by remediation priority.
func (u *UI) RenderReport(report findings.RankedReport) {
	fmt.Println()
	u.colors.White.Printf("  Findings: %d total", report.Total)
	fmt.Println()
	for _, sev := range []string{findings.SeverityCritical, findings.SeverityHigh, findings.SeverityMedium, findings.SeverityLow, findings.SeverityInfo} {
		if n := report.CountsBySeverity[sev]; n > 0 {
			u.severityColor(sev).Printf("    %-8s %d\n", sev, n)
		}
	}

	if len(report.ImmediateAction) > 0 {
		fmt.Println()
		u.colors.Magenta.Println("  ════ IMMEDIATE ACTION ════")
		u.renderFindings(report.ImmediateAction)
	}
	if len(report.ScheduledRemediation) > 0 {
		fmt.Println()
		u.colors.Red.Println("  ════ SCHEDULED REMEDIATION ════")
		u.renderFindings(report.ScheduledRemediation)
	}
	if len(report.Informational) > 0 {
		fmt.Println()
		u.colors.White.Println("  ════ INFORMATIONAL ════")
		u.renderFindings(report.Informational)
	}
	fmt.Println()
}

func (u *UI) renderFindings(fs []findings.Finding) {
	for _, f := range fs {
		u.severityColor(f.Severity).Printf("  [%s] %s\n", f.Severity, f.Title)
		u.colors.White.Printf("      Endpoint: %s\n", f.Endpoint)
		if f.VulnID != "" {
			u.colors.White.Printf("      ID: %s\n", f.VulnID)
		}
		if f.Evidence != "" {
			u.colors.White.Printf("      Evidence: %s\n", f.Evidence)
		}
		if f.Remediation != "" {
			u.colors.Cyan.Printf("      Fix: %s\n", f.Remediation)
		}
	}
}

// RenderHistory prints ledger executions, newest first.
func (u *UI) RenderHistory(execs []ledger.Execution) {
	if len(execs) == 0 {
		u.ShowInfo("No executions recorded yet.")
		return
	}

	u.colors.White.Printf("  %-6s %-24s %-10s %-12s %-20s %s\n", "ID", "TARGET", "STATE", "STAGE", "STARTED", "DETAIL")
	for _, e := range execs {
		line := u.colors.White
		switch e.State {
		case ledger.StateSucceeded:
			line = u.colors.Green
		case ledger.StateFailed, ledger.StateTimedOut:
			line = u.colors.Red
		case ledger.StateRunning:
			line = u.colors.Yellow
		}
		line.Printf("  %-6d %-24s %-10s %-12s %-20s %s\n",
			e.ID, e.Target, e.State, e.CurrentStage,
			e.StartedAt.Local().Format(time.DateTime), e.ErrorDetail)
	}
}
