package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/webqa/qa-runner/flags"
	"github.com/webqa/qa-runner/types"
)

// Config holds the application configuration
type Config struct {
	WorkDir     string             // Module root the subset packages are resolved against
	SubsetsFile string             // Optional subset overrides
	ReportDir   string             // Directory receiving the run directory
	GoBinary    string             // Path to the Go binary
	Timeout     time.Duration      // Default go test timeout per subset
	Selected    []types.SubsetName // Subsets to run, in execution order
	Colored     bool               // Whether the results table uses colors
	Metrics     opmetrics.CLIConfig
	HealthzPort int
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger, selected []types.SubsetName) (*Config, error) {
	if len(selected) == 0 {
		return nil, flags.ErrNoSelection
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		return nil, errors.New("work directory is required")
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}

	var absSubsetsFile string
	if subsetsFile := ctx.String(flags.SubsetsFile.Name); subsetsFile != "" {
		absSubsetsFile, err = filepath.Abs(subsetsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for subsets file '%s': %w", subsetsFile, err)
		}
	}

	// Get report directory, default to "reports" if not specified
	reportDir := ctx.String(flags.ReportDir.Name)
	if reportDir == "" {
		reportDir = "reports"
	}
	reportDir, err = filepath.Abs(reportDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", reportDir, err)
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", timeout)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		WorkDir:     absWorkDir,
		SubsetsFile: absSubsetsFile,
		ReportDir:   reportDir,
		GoBinary:    ctx.String(flags.GoBinary.Name),
		Timeout:     timeout,
		Selected:    selected,
		Colored:     oplog.ReadCLIConfig(ctx).Color,
		Metrics:     metricsCfg,
		HealthzPort: ctx.Int(flags.HealthzPort.Name),
		Log:         log,
	}, nil
}

// Snapshot returns the configuration recorded in the report
func (c *Config) Snapshot() types.EffectiveConfigSnapshot {
	return types.EffectiveConfigSnapshot{
		Selected:    c.Selected,
		WorkDir:     c.WorkDir,
		ReportDir:   c.ReportDir,
		SubsetsFile: c.SubsetsFile,
		GoBinary:    c.GoBinary,
		Timeout:     c.Timeout,
	}
}
