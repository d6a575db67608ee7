package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webqa/qa-runner/exitcodes"
	"github.com/webqa/qa-runner/logging"
	"github.com/webqa/qa-runner/metrics"
	"github.com/webqa/qa-runner/registry"
	"github.com/webqa/qa-runner/types"
)

// RunResult captures the complete run
type RunResult struct {
	RunID     string                `json:"runId"`
	Subsets   []*types.SubsetResult `json:"subsets"`
	Status    types.TestStatus      `json:"status"`
	StartTime time.Time             `json:"startTime"`
	Duration  time.Duration         `json:"duration"`
	Stats     types.Stats           `json:"stats"`
	// Interrupted is set when the context was cancelled during the run
	Interrupted bool `json:"interrupted,omitempty"`
	// RunDir holds the run's artifacts. Nil when no report directory was configured.
	RunDir *logging.RunDir `json:"-"`
}

// ExitCode is 0 iff every invoked subset succeeded
func (r *RunResult) ExitCode() int {
	if r.Interrupted {
		return exitcodes.Interrupted
	}
	for _, s := range r.Subsets {
		if s.ExitCode() != 0 {
			return exitcodes.TestFailure
		}
	}
	return exitcodes.Success
}

// Failed returns the failed subsets in execution order
func (r *RunResult) Failed() []types.SubsetName {
	var failed []types.SubsetName
	for _, s := range r.Subsets {
		if s.Status.Failed() {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// Tally returns "N/M subsets passed", followed by the failed subsets if any
func (r *RunResult) Tally() string {
	failed := r.Failed()
	tally := fmt.Sprintf("%d/%d subsets passed", len(r.Subsets)-len(failed), len(r.Subsets))
	if len(failed) == 0 {
		return tally
	}
	names := make([]string, len(failed))
	for i, name := range failed {
		names[i] = name.String()
	}
	return fmt.Sprintf("%s; failed: %s", tally, strings.Join(names, ", "))
}

// SubsetRunner runs a selection of subsets
type SubsetRunner interface {
	Run(ctx context.Context, selected []types.SubsetName) (*RunResult, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry *registry.Registry
	WorkDir  string
	// ReportDir receives the run directory. Empty disables artifacts.
	ReportDir string
	// RunID defaults to a random UUID
	RunID    string
	GoTests  GoTestExecutor
	Commands CommandExecutor
	Log      log.Logger
}

// runner implements SubsetRunner
type runner struct {
	registry  *registry.Registry
	workDir   string
	reportDir string
	runID     string
	goTests   GoTestExecutor
	commands  CommandExecutor
	log       log.Logger
	tracer    trace.Tracer
}

// NewSubsetRunner creates a new runner instance
func NewSubsetRunner(cfg Config) (SubsetRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.GoTests == nil {
		return nil, fmt.Errorf("go test executor is required")
	}
	if cfg.Commands == nil {
		return nil, fmt.Errorf("command executor is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	cfg.Log.Debug("NewSubsetRunner()", "workDir", cfg.WorkDir, "reportDir", cfg.ReportDir)

	return &runner{
		registry:  cfg.Registry,
		workDir:   cfg.WorkDir,
		reportDir: cfg.ReportDir,
		runID:     cfg.RunID,
		goTests:   cfg.GoTests,
		commands:  cfg.Commands,
		log:       cfg.Log,
		tracer:    otel.Tracer("subset runner"),
	}, nil
}

// Run resolves and validates the whole selection, then executes each subset once in fixed order.
// A returned error means nothing was executed.
func (r *runner) Run(ctx context.Context, selected []types.SubsetName) (*RunResult, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no subsets selected", registry.ErrMisconfigured)
	}

	defs, err := r.registry.Resolve(selected)
	if err != nil {
		return nil, err
	}
	if err := registry.Validate(r.workDir, defs); err != nil {
		return nil, err
	}

	runID := r.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	result := &RunResult{
		RunID:     runID,
		StartTime: time.Now(),
	}

	if r.reportDir != "" {
		runDir, err := logging.NewRunDir(r.reportDir, runID)
		if err != nil {
			return nil, err
		}
		result.RunDir = runDir
		defer func() {
			if err := runDir.Close(); err != nil {
				r.log.Warn("Failed to close run directory", "err", err)
			}
		}()
	}

	ctx, span := r.tracer.Start(ctx, "run")
	defer span.End()

	r.log.Info("Starting run", "runID", runID, "subsets", len(defs))

	for _, def := range defs {
		if ctx.Err() != nil {
			break
		}
		subset := r.runSubset(ctx, def, result.RunDir)
		result.Subsets = append(result.Subsets, subset)
		result.Stats.Merge(subset.Stats)
	}
	if ctx.Err() != nil {
		result.Interrupted = true
		r.log.Warn("Run interrupted", "completed", len(result.Subsets), "selected", len(defs))
	}

	result.Duration = time.Since(result.StartTime)
	result.Status = determineRunStatus(result)
	if result.Status.Failed() {
		span.SetStatus(codes.Error, result.Tally())
	}

	failed := len(result.Failed())
	metrics.RecordRun(len(result.Subsets)-failed, failed, result.Duration)

	r.log.Info("Run finished", "runID", runID, "status", result.Status, "tally", result.Tally(), "duration", result.Duration)

	return result, nil
}

// runSubset executes one subset and records everything about it. It never aborts the run.
func (r *runner) runSubset(ctx context.Context, def types.SubsetDefinition, runDir *logging.RunDir) *types.SubsetResult {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("subset %s", def.Name),
		trace.WithAttributes(attribute.String("subset", def.Name.String()), attribute.String("kind", string(def.Kind))))
	defer span.End()

	r.log.Info("Running subset", "subset", def.Name, "description", def.Description)
	start := time.Now()

	var result *types.SubsetResult
	switch def.Kind {
	case types.SubsetKindGoTest:
		result = r.runGoTests(ctx, def, runDir)
	case types.SubsetKindCommand:
		result = r.runCommands(ctx, def)
	default:
		// Validate rejects unknown kinds before anything runs
		result = &types.SubsetResult{Status: types.TestStatusError, Error: fmt.Sprintf("unknown kind %q", def.Kind)}
	}

	result.Name = def.Name
	result.Description = def.Description
	result.Kind = def.Kind
	result.StartTime = start
	result.Duration = time.Since(start)

	if runDir != nil {
		if err := runDir.WriteSubsetLog(def.Name, result.Output); err != nil {
			r.log.Warn("Failed to write subset log", "subset", def.Name, "err", err)
			metrics.RecordErrorDetails("subset_log", err)
		}
	}

	metrics.RecordSubsetRun(def.Name, result.Status, result.Stats, result.Duration)
	span.SetAttributes(attribute.String("status", string(result.Status)))
	if result.Status.Failed() {
		span.SetStatus(codes.Error, result.Error)
		r.log.Error("Subset failed", "subset", def.Name, "duration", result.Duration, "err", result.Error)
	} else {
		r.log.Info("Subset finished", "subset", def.Name, "status", result.Status, "duration", result.Duration)
	}

	return result
}

func (r *runner) runGoTests(ctx context.Context, def types.SubsetDefinition, runDir *logging.RunDir) *types.SubsetResult {
	var artifacts Artifacts
	if runDir != nil {
		artifacts = runDir
	}

	result, err := r.goTests.Execute(ctx, def, artifacts)
	if err != nil {
		metrics.RecordErrorDetails("go_test_executor", err)
		return &types.SubsetResult{
			Status: types.TestStatusError,
			Error:  err.Error(),
			Output: err.Error(),
		}
	}
	return result
}

func (r *runner) runCommands(ctx context.Context, def types.SubsetDefinition) *types.SubsetResult {
	result := &types.SubsetResult{}
	var output strings.Builder
	var statuses []types.TestStatus
	var errs []string

	for _, cmd := range def.Commands {
		if ctx.Err() != nil {
			break
		}
		cmdResult := r.commands.Run(ctx, cmd)
		result.Commands = append(result.Commands, cmdResult)
		result.Stats.Add(cmdResult.Status)
		statuses = append(statuses, cmdResult.Status)

		fmt.Fprintf(&output, "==> %s: %s\n", cmd.Description, strings.Join(cmd.Args, " "))
		output.WriteString(cmdResult.Output)
		if cmdResult.Error != "" {
			fmt.Fprintf(&output, "error: %s\n", cmdResult.Error)
			errs = append(errs, cmdResult.Error)
		}
	}

	result.Status = types.CombineStatus(statuses...)
	if ctx.Err() != nil && len(result.Commands) < len(def.Commands) {
		result.Status = types.TestStatusError
		errs = append(errs, fmt.Sprintf("interrupted: %v", ctx.Err()))
	}
	result.Error = strings.Join(errs, "; ")
	result.Output = output.String()
	return result
}

// determineRunStatus is pass iff no subset failed. An empty or all-skipped run is a skip.
func determineRunStatus(result *RunResult) types.TestStatus {
	statuses := make([]types.TestStatus, 0, len(result.Subsets))
	for _, s := range result.Subsets {
		statuses = append(statuses, s.Status)
	}
	if result.Interrupted {
		statuses = append(statuses, types.TestStatusError)
	}
	return types.CombineStatus(statuses...)
}
