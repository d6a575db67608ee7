package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webqa/qa-runner/logging"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/types"
)

const summaryDoc = `{"metrics":{"http_reqs":{"count":120,"rate":4},"http_req_failed":{"passes":6,"fails":114,"value":0.05}}}`

// fakeTool writes a script that exports a summary when writeSummary is set and exits with exitCode
func fakeTool(t *testing.T, writeSummary bool, exitCode string) string {
	t.Helper()
	export := ""
	if writeSummary {
		export = "echo '" + summaryDoc + "' > \"$1\""
	}
	script := `#!/bin/sh
echo "args: $*"
while [ $# -gt 0 ]; do
  if [ "$1" = "--summary-export" ]; then
    shift
    ` + export + `
  fi
  shift
done
exit ` + exitCode + "\n"
	path := filepath.Join(t.TempDir(), "k6")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	logger := log.NewLogger(log.DiscardHandler())
	commands, err := runner.NewCommandExecutor(runner.CommandExecutorConfig{
		WorkDir: t.TempDir(),
		Log:     logger,
	})
	require.NoError(t, err)
	cfg.Log = logger
	r, err := New(cfg, commands)
	require.NoError(t, err)
	return r
}

func TestArgs(t *testing.T) {
	r := newRunner(t, Config{
		Tool:      "k6",
		Script:    "scenarios/smoke.js",
		VUs:       5,
		Duration:  time.Minute,
		TargetURL: "http://localhost:8000",
		ReportDir: t.TempDir(),
	})
	assert.Equal(t, []string{
		"k6", "run",
		"--vus", "5",
		"--duration", "1m0s",
		"--summary-export", "/tmp/load-summary.json",
		"-e", "TARGET_URL=http://localhost:8000",
		"scenarios/smoke.js",
	}, r.Args("/tmp/load-summary.json"))
}

func TestRun_Success(t *testing.T) {
	reportDir := t.TempDir()
	r := newRunner(t, Config{
		Tool:      fakeTool(t, true, "0"),
		Script:    "smoke.js",
		VUs:       2,
		Duration:  time.Second,
		ReportDir: reportDir,
		RunID:     "load-1",
	})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Equal(t, 0, result.ExitCode)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 120.0, result.Summary.Requests)
	assert.Equal(t, 0.05, result.Summary.FailedRatio)
	assert.Contains(t, result.Command.Output, "--vus 2")

	runDir := filepath.Join(reportDir, logging.RunDirectoryPrefix+"load-1")
	data, err := os.ReadFile(filepath.Join(runDir, logging.ReportJSON))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "load-1", decoded["runId"])
	assert.Contains(t, decoded, "summary")

	_, err = os.Stat(filepath.Join(runDir, logging.LoadLog))
	require.NoError(t, err)

	var out bytes.Buffer
	PrintSummary(&out, result)
	assert.Contains(t, out.String(), "requests: 120, failed: 5.00%")
	assert.Contains(t, out.String(), runDir)
}

func TestRun_ToolFailure(t *testing.T) {
	r := newRunner(t, Config{
		Tool:      fakeTool(t, false, "99"),
		Script:    "smoke.js",
		VUs:       1,
		Duration:  time.Second,
		ReportDir: t.TempDir(),
	})

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, 99, result.Command.ExitCode)
	assert.Nil(t, result.Summary, "no summary was exported")
	assert.NotEmpty(t, result.RunID)
}

func TestRun_ToolMissing(t *testing.T) {
	r := newRunner(t, Config{
		Tool:      filepath.Join(t.TempDir(), "missing-k6"),
		Script:    "smoke.js",
		VUs:       1,
		Duration:  time.Second,
		ReportDir: t.TempDir(),
	})

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Command.Error, "not found on PATH")
}

func TestReadSummary(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadSummary(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0644))
	_, err = ReadSummary(bad)
	require.ErrorContains(t, err, "failed to parse load summary")
}

func TestNew_Validation(t *testing.T) {
	commands, err := runner.NewCommandExecutor(runner.CommandExecutorConfig{WorkDir: t.TempDir()})
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing script", Config{ReportDir: "r", VUs: 1, Duration: time.Second}},
		{"missing report dir", Config{Script: "s.js", VUs: 1, Duration: time.Second}},
		{"zero vus", Config{Script: "s.js", ReportDir: "r", Duration: time.Second}},
		{"zero duration", Config{Script: "s.js", ReportDir: "r", VUs: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, commands)
			require.Error(t, err)
		})
	}

	_, err = New(Config{Script: "s.js", ReportDir: "r", VUs: 1, Duration: time.Second}, nil)
	require.Error(t, err)

	r, err := New(Config{Script: "s.js", ReportDir: "r", VUs: 1, Duration: time.Second}, commands)
	require.NoError(t, err)
	assert.Equal(t, DefaultTool, r.config.Tool)
}
