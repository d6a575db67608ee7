// Package loadtest drives an external load testing tool and records its outcome.
package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/webqa/qa-runner/exitcodes"
	"github.com/webqa/qa-runner/logging"
	"github.com/webqa/qa-runner/metrics"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/types"
)

const (
	DefaultTool  = "k6"
	targetURLEnv = "TARGET_URL"
)

// Config configures a load test run
type Config struct {
	Tool      string
	Script    string
	VUs       int
	Duration  time.Duration
	TargetURL string
	ReportDir string
	RunID     string // defaults to a random UUID
	Log       log.Logger
}

// Summary holds the metrics read from the tool's exported summary
type Summary struct {
	Requests    float64 `json:"requests"`
	FailedRatio float64 `json:"failedRatio"`
}

// Result captures one load test run
type Result struct {
	RunID     string               `json:"runId"`
	Timestamp time.Time            `json:"timestamp"`
	Status    types.TestStatus     `json:"status"`
	ExitCode  int                  `json:"exitCode"`
	Command   *types.CommandResult `json:"command"`
	Summary   *Summary             `json:"summary,omitempty"`

	RunDir *logging.RunDir `json:"-"`
}

// Runner runs the load tool through a CommandExecutor
type Runner struct {
	config   Config
	commands runner.CommandExecutor
}

// New validates the configuration and creates a Runner
func New(cfg Config, commands runner.CommandExecutor) (*Runner, error) {
	if commands == nil {
		return nil, errors.New("command executor is required")
	}
	if cfg.Script == "" {
		return nil, errors.New("load script is required")
	}
	if cfg.ReportDir == "" {
		return nil, errors.New("report directory is required")
	}
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.VUs <= 0 {
		return nil, fmt.Errorf("virtual users must be positive, got %d", cfg.VUs)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", cfg.Duration)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Runner{config: cfg, commands: commands}, nil
}

// Args returns the tool invocation writing its summary to summaryPath
func (r *Runner) Args(summaryPath string) []string {
	args := []string{
		r.config.Tool, "run",
		"--vus", strconv.Itoa(r.config.VUs),
		"--duration", r.config.Duration.String(),
		"--summary-export", summaryPath,
	}
	if r.config.TargetURL != "" {
		args = append(args, "-e", targetURLEnv+"="+r.config.TargetURL)
	}
	return append(args, r.config.Script)
}

// Run executes the tool once and writes the run directory.
// A failing tool is reported through the result; only artifact errors are returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := r.config.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	runDir, err := logging.NewRunDir(r.config.ReportDir, runID)
	if err != nil {
		return nil, err
	}
	defer runDir.Close()

	result := &Result{
		RunID:     runID,
		Timestamp: time.Now(),
		RunDir:    runDir,
	}

	summaryPath := runDir.File(logging.LoadSummaryJSON)
	r.config.Log.Info("Starting load test", "tool", r.config.Tool, "script", r.config.Script,
		"vus", r.config.VUs, "duration", r.config.Duration)

	result.Command = r.commands.Run(ctx, types.CommandConfig{
		Description: "Load Test",
		Args:        r.Args(summaryPath),
	})
	result.Status = result.Command.Status
	result.ExitCode = exitcodes.Success
	if result.Status.Failed() {
		result.ExitCode = exitcodes.TestFailure
	}

	summary, err := ReadSummary(summaryPath)
	switch {
	case err == nil:
		result.Summary = summary
	case errors.Is(err, os.ErrNotExist):
		r.config.Log.Warn("Load tool wrote no summary", "path", summaryPath)
	default:
		metrics.RecordErrorDetails("load_summary", err)
		r.config.Log.Warn("Failed to read load summary", "err", err)
	}

	if err := runDir.WriteFile(logging.LoadLog, []byte(stripansi.Strip(result.Command.Output))); err != nil {
		return nil, err
	}
	if err := writeReport(runDir, result); err != nil {
		return nil, err
	}

	r.config.Log.Info("Load test finished", "status", result.Status, "duration", result.Command.Duration)
	return result, nil
}

// exportedSummary is the subset of the --summary-export document we read
type exportedSummary struct {
	Metrics struct {
		HTTPReqs struct {
			Count float64 `json:"count"`
		} `json:"http_reqs"`
		HTTPReqFailed struct {
			Value float64 `json:"value"`
		} `json:"http_req_failed"`
	} `json:"metrics"`
}

// ReadSummary reads http_reqs.count and http_req_failed.value from an exported summary
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var exported exportedSummary
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("failed to parse load summary %s: %w", path, err)
	}
	return &Summary{
		Requests:    exported.Metrics.HTTPReqs.Count,
		FailedRatio: exported.Metrics.HTTPReqFailed.Value,
	}, nil
}

func writeReport(runDir *logging.RunDir, result *Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode load report: %w", err)
	}
	return runDir.WriteFile(logging.ReportJSON, append(data, '\n'))
}

// PrintSummary writes a short human readable outcome
func PrintSummary(w io.Writer, result *Result) {
	fmt.Fprintf(w, "Load test %s (exit code %d)\n", result.Status, result.Command.ExitCode)
	if result.Command.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", result.Command.Error)
	}
	if result.Summary != nil {
		fmt.Fprintf(w, "  requests: %.0f, failed: %.2f%%\n", result.Summary.Requests, result.Summary.FailedRatio*100)
	}
	fmt.Fprintf(w, "Load test reports in %s\n", result.RunDir.Path())
}
