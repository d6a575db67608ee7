package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/webqa/qa-runner/exitcodes"
	"github.com/webqa/qa-runner/registry"
	"github.com/webqa/qa-runner/reporting"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/service"
)

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

// harness runs the selected subsets once and reports the result.
type harness struct {
	config  *Config
	version string
	runner  runner.SubsetRunner
	service *service.Service
	result  *runner.RunResult
	stdout  io.Writer

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// Option customizes a harness
type Option func(h *harness)

// WithRunner replaces the subset runner, e.g. with one backed by fake executors
func WithRunner(r runner.SubsetRunner) Option {
	return func(h *harness) {
		h.runner = r
	}
}

// WithStdout redirects the printed summary
func WithStdout(w io.Writer) Option {
	return func(h *harness) {
		h.stdout = w
	}
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error), opts ...Option) (*harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating harness with config",
		"workDir", config.WorkDir,
		"subsetsFile", config.SubsetsFile,
		"reportDir", config.ReportDir,
		"selected", config.Selected)

	h := &harness{
		config:           config,
		version:          version,
		stdout:           os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.runner == nil {
		subsetRunner, err := newSubsetRunner(config)
		if err != nil {
			return nil, err
		}
		h.runner = subsetRunner
	}

	if config.Metrics.Enabled {
		h.service = service.New(service.Config{
			MetricsHost: config.Metrics.ListenAddr,
			MetricsPort: config.Metrics.ListenPort,
			HealthzPort: config.HealthzPort,
			Log:         config.Log,
		})
	}

	config.Log.Info("harness.New: created registry and subset runner")
	return h, nil
}

func newSubsetRunner(config *Config) (runner.SubsetRunner, error) {
	reg, err := registry.NewRegistry(registry.Config{
		Log:         config.Log,
		SubsetsFile: config.SubsetsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	goTests, err := runner.NewGoTestExecutor(runner.GoTestExecutorConfig{
		WorkDir:  config.WorkDir,
		GoBinary: config.GoBinary,
		Timeout:  config.Timeout,
		Log:      config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create go test executor: %w", err)
	}

	commands, err := runner.NewCommandExecutor(runner.CommandExecutorConfig{
		WorkDir: config.WorkDir,
		Log:     config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create command executor: %w", err)
	}

	subsetRunner, err := runner.NewSubsetRunner(runner.Config{
		Registry:  reg,
		WorkDir:   config.WorkDir,
		ReportDir: config.ReportDir,
		GoTests:   goTests,
		Commands:  commands,
		Log:       config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subset runner: %w", err)
	}
	return subsetRunner, nil
}

// Start runs the selected subsets once.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.running.Store(true)
	h.config.Log.Info("Starting qa-runner", "version", h.version, "subsets", h.config.Selected)

	if h.service != nil {
		if err := h.service.Start(ctx); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to start metrics service: %w", err))
		}
	}

	if err := h.runSubsets(ctx); err != nil {
		h.config.Log.Error("Runtime error running subsets", "error", err)
		return err
	}

	switch h.result.ExitCode() {
	case exitcodes.Interrupted:
		h.config.Log.Warn("Run interrupted", "tally", h.result.Tally())
		return NewInterruptedError(h.result.Tally())
	case exitcodes.Success:
		h.config.Log.Info("All subsets passed, exiting")
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	default:
		h.config.Log.Warn("Run completed with failures, returning exit code 1")
		return NewTestFailureError(h.result.Tally())
	}
}

// runSubsets executes the run and writes every report
func (h *harness) runSubsets(ctx context.Context) error {
	result, err := h.runner.Run(ctx, h.config.Selected)
	if err != nil {
		// A subset that cannot be located aborts the run before anything executes
		return NewRuntimeError(err)
	}
	h.result = result

	report := reporting.NewReport(result, h.config.Snapshot())
	if err := reporting.PrintSummary(h.stdout, report, h.config.Colored); err != nil {
		return NewRuntimeError(fmt.Errorf("failed to print summary: %w", err))
	}

	if result.RunDir != nil {
		if err := reporting.WriteArtifacts(result.RunDir, report); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to write report: %w", err))
		}
		if err := reporting.PrintArtifacts(h.stdout, result.RunDir); err != nil {
			return NewRuntimeError(fmt.Errorf("failed to list reports: %w", err))
		}
	}

	h.config.Log.Info("Run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// Result returns the last run, or nil before Start
func (h *harness) Result() *runner.RunResult {
	return h.result
}

// Stop stops the harness.
// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping qa-runner")

	if !h.running.Swap(false) {
		h.config.Log.Debug("Harness already stopped, nothing to do")
		return nil
	}

	if h.service != nil {
		if err := h.service.Shutdown(ctx); err != nil {
			h.config.Log.Warn("Failed to shut down metrics service", "error", err)
		}
	}

	h.config.Log.Info("qa-runner stopped successfully")
	return nil
}

// Stopped returns true if the harness is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	return !h.running.Load()
}
