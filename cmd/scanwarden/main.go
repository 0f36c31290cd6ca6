package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scanwarden/internal/config"
	"scanwarden/internal/findings"
	"scanwarden/internal/intent"
	"scanwarden/internal/ledger"
	"scanwarden/internal/orchestrator"
	"scanwarden/internal/progress"
	"scanwarden/internal/scanner"
	"scanwarden/internal/sweep"
	"scanwarden/internal/ui"
)

var (
	cfg        *config.Config
	uiInstance *ui.UI
	debugMode  bool
)

func main() {
	uiInstance = ui.NewUI()

	var rootCmd = &cobra.Command{
		Use:   "scanwarden",
		Short: "Conversational security scan orchestration",
		Long: `ScanWarden turns free-form requests into staged security scans:
a bounded liveness probe and quick port scan run inline, the expensive
vulnerability scan runs on a background worker pool, and every attempt is
recorded in a durable execution ledger with classified, prioritized findings.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if v := viper.GetString("data-dir"); v != "" {
				cfg.DataDir = v
			}
			if v := viper.GetInt("workers"); v > 0 {
				cfg.MaxWorkers = v
			}
			debugMode = viper.GetBool("debug")
			return cfg.EnsureDataDir()
		},
		Run: func(cmd *cobra.Command, args []string) {
			uiInstance.ShowBanner()
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the execution ledger (default ./data)")
	rootCmd.PersistentFlags().Int("workers", 0, "Full-scan worker pool size")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetEnvPrefix("SCANWARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func debugf(format string, args ...interface{}) {
	if debugMode {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// engine wires the core components together for a command's lifetime.
type engine struct {
	ledger *ledger.Ledger
	hub    *progress.Hub
	orch   *orchestrator.Orchestrator
	sweep  *sweep.Sweep
}

func newEngine() (*engine, error) {
	ldg, err := ledger.NewLedger(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	ldg.Logf = debugf

	hub := progress.NewHub(cfg.QueueSize)
	orch := orchestrator.New(cfg, ldg, hub, scanner.NewExecRunner(), findings.NewRegistry())
	orch.Logf = debugf

	sw := sweep.New(cfg, ldg, hub)
	sw.Logf = debugf

	if n, err := orch.RequeueOrphans(); err != nil {
		debugf("orphan requeue failed: %v", err)
	} else if n > 0 {
		uiInstance.ShowInfo(fmt.Sprintf("Requeued %d interrupted full scan(s)", n))
	}

	return &engine{ledger: ldg, hub: hub, orch: orch, sweep: sw}, nil
}

func (e *engine) close() {
	e.orch.Stop()
	e.ledger.Close()
}

// scanCmd runs one scan to completion, streaming progress.
func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan a single IPv4 address or domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := intent.NewResolver(cfg)
			res, err := resolver.Resolve(args[0], nil)
			if err != nil {
				return fmt.Errorf("not a scannable target: %s", args[0])
			}

			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			requester := uuid.NewString()
			sub := eng.hub.Subscribe(requester)
			defer sub.Close()

			uiInstance.ShowBanner()
			uiInstance.ShowInfo(fmt.Sprintf("Scanning %s", res.Target))

			id, err := eng.orch.Start(context.Background(), res.Target, requester)
			if err != nil {
				return err
			}

			waitForDone(eng, sub, id)
			return renderExecutionReport(eng.ledger, id)
		},
	}
}

// chatCmd starts the interactive conversational loop.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive scan console",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			// Background reconciliation keeps chat-launched scans honest even
			// if a worker dies mid-session.
			sweepCtx, cancelSweep := context.WithCancel(context.Background())
			defer cancelSweep()
			go eng.sweep.Run(sweepCtx)

			resolver := intent.NewResolver(cfg)
			requester := uuid.NewString()
			sub := eng.hub.Subscribe(requester)
			defer sub.Close()

			// Stream progress for every scan launched in this session.
			go func() {
				for ev := range sub.C {
					uiInstance.RenderEvent(ev)
					if ev.Type == progress.EventDone {
						if err := renderExecutionReport(eng.ledger, ev.ExecutionID); err != nil {
							debugf("report render failed: %v", err)
						}
					}
				}
			}()

			uiInstance.ShowBanner()
			uiInstance.ShowInfo("Ask for a scan, e.g. 'scan 203.0.113.5'. Follow-ups like 'rescan it' work too.")
			uiInstance.ShowInfo("Type 'quit' or 'exit' to stop.")

			var history []intent.Message
			stdin := bufio.NewScanner(os.Stdin)
			for {
				uiInstance.ShowPrompt()
				if !stdin.Scan() {
					break
				}
				input := strings.TrimSpace(stdin.Text())
				if input == "quit" || input == "exit" {
					break
				}
				if input == "" {
					continue
				}

				res, err := resolver.Resolve(input, history)
				history = append(history, intent.Message{Role: "user", Text: input})
				if err != nil {
					// Clarification prompt, not an error: never guess a target.
					uiInstance.ShowWarning("Which host should I scan? Give me an IPv4 address or domain.")
					continue
				}

				switch res.Action {
				case intent.ActionReport:
					showLatestReport(eng.ledger, res.Target.Value)
				default:
					id, err := eng.orch.Start(context.Background(), res.Target, requester)
					if err != nil {
						uiInstance.ShowError(err.Error())
						continue
					}
					uiInstance.ShowInfo(fmt.Sprintf("Started execution #%d for %s", id, res.Target))
					history = append(history, intent.Message{
						Role: "assistant",
						Text: fmt.Sprintf("Started scan of %s (execution #%d)", res.Target, id),
					})
				}
			}
			return nil
		},
	}
}

// historyCmd lists ledger executions.
func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "List recorded scan executions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ldg, err := ledger.NewLedger(cfg.DataDir)
			if err != nil {
				return err
			}
			defer ldg.Close()

			var execs []ledger.Execution
			if len(args) == 1 {
				execs, err = ldg.ListByTarget(args[0], limit)
			} else {
				execs, err = ldg.ListExecutions(limit)
			}
			if err != nil {
				return err
			}
			uiInstance.RenderHistory(execs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum executions to list")
	return cmd
}

// reportCmd re-renders the ranked report for a past execution.
func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <execution-id>",
		Short: "Show the classified findings of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid execution id: %s", args[0])
			}

			ldg, err := ledger.NewLedger(cfg.DataDir)
			if err != nil {
				return err
			}
			defer ldg.Close()

			return renderExecutionReport(ldg, id)
		},
	}
}

// sweepCmd runs the reconciliation sweep once (cron entry point).
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Force-resolve executions with stale heartbeats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ldg, err := ledger.NewLedger(cfg.DataDir)
			if err != nil {
				return err
			}
			defer ldg.Close()
			ldg.Logf = debugf

			sw := sweep.New(cfg, ldg, progress.NewHub(1))
			sw.Logf = func(format string, args ...interface{}) {
				uiInstance.ShowInfo(fmt.Sprintf(format, args...))
			}

			n, err := sw.RunOnce()
			if err != nil {
				return err
			}
			uiInstance.ShowSuccess(fmt.Sprintf("Sweep complete: %d execution(s) resolved", n))
			return nil
		},
	}
}

// waitForDone drains progress events until the execution reaches a terminal
// state, with a ceiling derived from the stage timeouts so a lost worker
// cannot hang the CLI forever.
func waitForDone(eng *engine, sub *progress.Subscription, id int64) {
	ceiling := cfg.Timeouts.Liveness + cfg.Timeouts.QuickScan + cfg.Timeouts.FullScan + cfg.Timeouts.Reporting + time.Minute
	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			uiInstance.RenderEvent(ev)
			if ev.Type == progress.EventDone && ev.ExecutionID == id {
				return
			}
		case <-deadline.C:
			uiInstance.ShowError("Timed out waiting for scan completion; run 'scanwarden sweep' to reconcile.")
			return
		}
	}
}

func renderExecutionReport(ldg *ledger.Ledger, id int64) error {
	exec, err := ldg.GetExecution(id)
	if err != nil {
		return err
	}
	fs, err := ldg.Findings(id)
	if err != nil {
		return err
	}

	uiInstance.ShowInfo(fmt.Sprintf("Execution #%d: %s (%s)", exec.ID, exec.Target, exec.State))
	if exec.ErrorDetail != "" {
		uiInstance.ShowWarning(exec.ErrorDetail)
	}
	uiInstance.RenderReport(findings.Classify(fs))
	return nil
}

// showLatestReport renders the newest execution for a target.
func showLatestReport(ldg *ledger.Ledger, target string) {
	execs, err := ldg.ListByTarget(target, 1)
	if err != nil || len(execs) == 0 {
		uiInstance.ShowWarning(fmt.Sprintf("No executions recorded for %s yet.", target))
		return
	}
	if err := renderExecutionReport(ldg, execs[0].ID); err != nil {
		uiInstance.ShowError(err.Error())
	}
}
