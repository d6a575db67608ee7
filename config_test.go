package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/webqa/qa-runner/flags"
	"github.com/webqa/qa-runner/types"
)

// newConfigFromArgs parses args with the root flags and builds a Config
func newConfigFromArgs(t *testing.T, selected []types.SubsetName, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg    *Config
		cfgErr error
	)
	app := &cli.App{
		Flags: cliapp.ProtectFlags(flags.Flags),
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()), selected)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"qa-runner"}, args...)))
	return cfg, cfgErr
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := newConfigFromArgs(t, []types.SubsetName{types.SubsetAPI})
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.WorkDir))
	assert.True(t, filepath.IsAbs(cfg.ReportDir))
	assert.Equal(t, "reports", filepath.Base(cfg.ReportDir))
	assert.Empty(t, cfg.SubsetsFile)
	assert.Equal(t, "go", cfg.GoBinary)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, 8080, cfg.HealthzPort)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, []types.SubsetName{types.SubsetAPI}, cfg.Selected)
}

func TestNewConfig_Flags(t *testing.T) {
	workDir := t.TempDir()
	cfg, err := newConfigFromArgs(t, []types.SubsetName{types.SubsetUnit, types.SubsetSecurity},
		"--workdir", workDir,
		"--subsets-file", "subsets.yaml",
		"--report-dir", "out",
		"--go-binary", "/usr/local/go/bin/go",
		"--timeout", "90s",
		"--metrics.enabled",
		"--metrics.port", "9100",
	)
	require.NoError(t, err)

	assert.Equal(t, workDir, cfg.WorkDir)
	assert.True(t, filepath.IsAbs(cfg.SubsetsFile))
	assert.Equal(t, "subsets.yaml", filepath.Base(cfg.SubsetsFile))
	assert.Equal(t, "out", filepath.Base(cfg.ReportDir))
	assert.Equal(t, "/usr/local/go/bin/go", cfg.GoBinary)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.ListenPort)
}

func TestNewConfig_Errors(t *testing.T) {
	_, err := newConfigFromArgs(t, nil)
	require.ErrorIs(t, err, flags.ErrNoSelection)

	_, err = newConfigFromArgs(t, []types.SubsetName{types.SubsetAPI}, "--timeout", "-1s")
	require.ErrorContains(t, err, "timeout must not be negative")

	_, err = newConfigFromArgs(t, []types.SubsetName{types.SubsetAPI}, "--workdir", "")
	require.ErrorContains(t, err, "work directory is required")
}

func TestConfigSnapshot(t *testing.T) {
	cfg := &Config{
		WorkDir:     "/work",
		SubsetsFile: "/work/subsets.yaml",
		ReportDir:   "/work/reports",
		GoBinary:    "go",
		Timeout:     time.Minute,
		Selected:    []types.SubsetName{types.SubsetAPI, types.SubsetUnit},
		HealthzPort: 8080,
	}
	snapshot := cfg.Snapshot()
	assert.Equal(t, types.EffectiveConfigSnapshot{
		Selected:    cfg.Selected,
		WorkDir:     "/work",
		ReportDir:   "/work/reports",
		SubsetsFile: "/work/subsets.yaml",
		GoBinary:    "go",
		Timeout:     time.Minute,
	}, snapshot)
}
