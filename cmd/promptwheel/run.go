package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codewheel-dev/promptwheel/internal/baseline"
	"github.com/codewheel-dev/promptwheel/internal/checkpoint"
	"github.com/codewheel-dev/promptwheel/internal/config"
	"github.com/codewheel-dev/promptwheel/internal/domain/drillplan"
	"github.com/codewheel-dev/promptwheel/internal/domain/wheelerr"
	"github.com/codewheel-dev/promptwheel/internal/gitutil"
	"github.com/codewheel-dev/promptwheel/internal/infrastructure/clock"
	"github.com/codewheel-dev/promptwheel/internal/infrastructure/process"
	"github.com/codewheel-dev/promptwheel/internal/ports"
	"github.com/codewheel-dev/promptwheel/internal/session"
	"github.com/codewheel-dev/promptwheel/internal/tui/wheeldash"
	"github.com/codewheel-dev/promptwheel/internal/wheel"
	"github.com/codewheel-dev/promptwheel/internal/wheel/finalize"
	"github.com/codewheel-dev/promptwheel/internal/wheel/schedule"
)

// runOptions mirrors the run command's flag surface.
type runOptions struct {
	Verbose         bool
	PR              bool
	Parallel        int
	DryRun          bool
	Issues          string
	Daemon          bool
	Output          string
	Hours           float64
	Tests           bool
	Eco             bool
	IncludeClaudeMD bool
}

// exitCodeError carries the process exit code a cobra RunE wants main to
// use, distinct from cobra's own usage-error convention.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func newRunCmd(root *rootFlags, app *AppContext) *cobra.Command {
	opts := runOptions{Parallel: 4, Output: "text"}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a wheel session against the current repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = root.verbose
			return runWheel(cmd, app, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.PR, "pr", false, "Open external reviews for completed tickets")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", opts.Parallel, "Scout concurrency (>= 1)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Survey and plan without dispatching any agent")
	cmd.Flags().StringVar(&opts.Issues, "issues", "", "Restrict surveys to a module/issue label")
	cmd.Flags().BoolVar(&opts.Daemon, "daemon", false, "Run unattended, suppressing the interactive dashboard")
	cmd.Flags().StringVar(&opts.Output, "output", opts.Output, "Summary format: json|text")
	cmd.Flags().Float64Var(&opts.Hours, "hours", 0, "Expire the session after this many hours")
	cmd.Flags().BoolVar(&opts.Tests, "tests", false, "Include test files in drill targeting")
	cmd.Flags().BoolVar(&opts.Eco, "eco", false, "Favor smaller survey batches (cheap-model mode)")
	cmd.Flags().BoolVar(&opts.IncludeClaudeMD, "include-claude-md", false, "Fold CLAUDE.md guidance into survey context")

	return cmd
}

func runWheel(cmd *cobra.Command, app *AppContext, opts runOptions) error {
	ctx := context.Background()

	repoRoot, err := os.Getwd()
	if err != nil {
		return &exitCodeError{2, wheelerr.Wrap(wheelerr.CodeFatalConfig, "resolving working directory", err)}
	}

	if _, err := gitutil.Open(repoRoot); err != nil {
		return &exitCodeError{2, err}
	}

	wheelDir := filepath.Join(repoRoot, ".promptwheel")
	if info, err := os.Stat(wheelDir); err != nil || !info.IsDir() {
		return &exitCodeError{2, wheelerr.New(wheelerr.CodeFatalConfig, "repository is not initialized for promptwheel: missing .promptwheel directory")}
	}

	cfg, err := config.Load(filepath.Join(wheelDir, "config.yaml"))
	if err != nil {
		var werr *wheelerr.WheelError
		if errors.As(err, &werr) && werr.Code == wheelerr.CodeFatalConfig {
			return &exitCodeError{2, err}
		}
		return &exitCodeError{1, err}
	}
	applyOptionOverrides(&cfg, opts)

	if opts.Verbose {
		if verbose, err := buildLogger("debug"); err == nil {
			app.Logger = verbose
		}
	}

	sysClock := clock.System{}
	procRunner := &process.Runner{}

	var display ports.DisplayAdapter
	useDashboard := opts.Output == "text" && !opts.Daemon && term.IsTerminal(int(os.Stdout.Fd()))
	if useDashboard {
		dash := wheeldash.Start()
		display = dash
		defer dash.Close()
	}

	state := session.New(ports.NewSessionID(), sysClock.Now())
	state.DrillMode = cfg.Drill.Enabled

	cp := checkpoint.Load(repoRoot)
	bl := baseline.Load(repoRoot)

	budget := wheel.Budget{}
	if opts.Hours > 0 {
		budget.Deadline = sysClock.Now().Add(time.Duration(opts.Hours * float64(time.Hour)))
	}

	collab := wheel.Collaborators{
		Schedule: schedule.Deps{
			Clock: sysClock,
			RunVerification: func(ctx context.Context, command string) (ports.ProcessResult, error) {
				return procRunner.Run(ctx, command, repoRoot, 0)
			},
		},
		Drill: drillplan.Deps{
			Clock:           sysClock,
			TestsEnabled:    opts.Tests,
			IncludeClaudeMD: opts.IncludeClaudeMD,
			ModuleGroup:     opts.Issues,
		},
		// Invoker is left nil in every run, --pr included: without one,
		// every dispatch resolves to AgentNoChanges, which is exactly the
		// behavior --dry-run and a plain preview run want.
		Invoker: nil,
		Display: display,
		Clock:   sysClock,
		Logger:  app.LoggerFor("wheel"),
	}
	if opts.PR && !opts.DryRun {
		// No external agent invoker is wired into this build; --pr only
		// gates the intent to dispatch, it cannot fabricate one.
		app.LoggerFor("cli").Warn(ctx, "no agent invoker configured; run will survey only")
	}

	runner := wheel.NewRunner(repoRoot, cfg, budget, collab)
	outcome := runner.Run(ctx, state, &cp, &bl)

	summary := finalize.Finalize(ctx, state, cfg, repoRoot, &cp, &bl, finalize.Deps{SkipPersist: opts.DryRun}, outcome.ReviewsCreated, outcome.AnyFailure, sysClock.Now())

	if err := printSummary(cmd, opts.Output, summary); err != nil {
		return &exitCodeError{1, err}
	}

	if code := exitCode(summary); code != 0 {
		return &exitCodeError{code, fmt.Errorf("session failed with zero reviews created")}
	}
	return nil
}

// applyOptionOverrides folds CLI flags onto the loaded config. A --parallel
// value outside the [1,32] bounds config.Validate enforces is ignored and the
// configured ScoutConcurrency is kept.
func applyOptionOverrides(cfg *config.Config, opts runOptions) {
	if opts.Parallel >= 1 && opts.Parallel <= 32 {
		cfg.ScoutConcurrency = opts.Parallel
	}
	if opts.Eco && cfg.BatchTokenBudget > 1 {
		cfg.BatchTokenBudget /= 2
	}
}

func exitCode(s finalize.Summary) int {
	if s.AnyFailure && s.ReviewsCreated == 0 {
		return 1
	}
	return 0
}

func printSummary(cmd *cobra.Command, output string, summary finalize.Summary) error {
	if output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cycles run: %d\n", summary.CyclesRun)
	fmt.Fprintf(out, "reviews created: %d\n", summary.ReviewsCreated)
	fmt.Fprintf(out, "any failure: %t\n", summary.AnyFailure)
	if summary.ShutdownReason != "" {
		fmt.Fprintf(out, "shutdown reason: %s\n", summary.ShutdownReason)
	}
	if summary.TrajectoryAbandonedAtEnd {
		fmt.Fprintln(out, "active trajectory abandoned at session end")
	}
	fmt.Fprintf(out, "weighted drill completion rate: %.2f\n", summary.WeightedCompletionRate)
	if len(summary.TopCategories) > 0 {
		fmt.Fprintf(out, "top categories: %v\n", summary.TopCategories)
	}
	if len(summary.StalledCategories) > 0 {
		fmt.Fprintf(out, "stalled categories: %v\n", summary.StalledCategories)
	}
	return nil
}
