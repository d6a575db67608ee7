package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webqa/qa-runner/logging"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/types"
)

// sampleRun is a five-subset run where the database subset failed
func sampleRun() *runner.RunResult {
	result := &runner.RunResult{
		RunID:     "run-1",
		StartTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  12 * time.Second,
		Status:    types.TestStatusFail,
	}
	for _, name := range types.SubsetOrder {
		subset := &types.SubsetResult{
			Name:     name,
			Kind:     types.SubsetKindGoTest,
			Status:   types.TestStatusPass,
			Duration: 2 * time.Second,
			Stats:    types.Stats{Total: 2, Passed: 2},
		}
		if name == types.SubsetDatabase {
			subset.Status = types.TestStatusFail
			subset.Error = "1 of 2 tests failed\nstderr: exit status 1"
			subset.Stats = types.Stats{Total: 2, Passed: 1, Failed: 1}
			subset.Tests = []*types.TestResult{
				{Name: "TestCreateUser", Status: types.TestStatusPass},
				{Name: "TestDuplicateEmail", Status: types.TestStatusFail, Output: "=== RUN   TestDuplicateEmail\n    store_test.go:42: expected ErrDuplicateEmail\n--- FAIL: TestDuplicateEmail (0.00s)\n"},
			}
		}
		result.Subsets = append(result.Subsets, subset)
		result.Stats.Merge(subset.Stats)
	}
	return result
}

func TestNewReport(t *testing.T) {
	t.Setenv("CI", "true")
	t.Setenv("PLAYWRIGHT_BROWSERS_PATH", "0")

	cfg := types.EffectiveConfigSnapshot{Selected: types.SubsetOrder, WorkDir: "/work", GoBinary: "go"}
	report := NewReport(sampleRun(), cfg)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 1, report.ExitCode)
	assert.Equal(t, "4/5 subsets passed; failed: database", report.Tally)
	assert.Equal(t, []types.SubsetName{types.SubsetDatabase}, report.Failed)
	assert.Equal(t, types.Stats{Total: 10, Passed: 9, Failed: 1}, report.Stats)
	assert.Equal(t, map[string]string{"CI": "true", "PLAYWRIGHT_BROWSERS_PATH": "0"}, report.Environment)
	assert.Equal(t, "/work", report.Config.WorkDir)
}

func TestCaptureEnvironment(t *testing.T) {
	env := map[string]string{"CI": "1", "HOME": "/root"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	// Values are recorded verbatim, never interpreted
	assert.Equal(t, map[string]string{"CI": "1"}, CaptureEnvironment(lookup))
}

func TestWriteJSON(t *testing.T) {
	report := NewReport(sampleRun(), types.EffectiveConfigSnapshot{})

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, "fail", decoded["status"])
	assert.Equal(t, float64(1), decoded["exitCode"])
	subsets, ok := decoded["subsets"].([]any)
	require.True(t, ok)
	assert.Len(t, subsets, 5)
	_, hasOutput := subsets[0].(map[string]any)["Output"]
	assert.False(t, hasOutput, "subset output stays in the subset log")
}

func TestWriteArtifacts(t *testing.T) {
	runDir, err := logging.NewRunDir(t.TempDir(), "run-1")
	require.NoError(t, err)

	report := NewReport(sampleRun(), types.EffectiveConfigSnapshot{})
	require.NoError(t, WriteArtifacts(runDir, report))

	data, err := os.ReadFile(runDir.File(logging.ReportJSON))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"runId": "run-1"`)

	summary, err := os.ReadFile(runDir.File(logging.SummaryLog))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "database")
	assert.True(t, strings.HasSuffix(string(summary), "4/5 subsets passed; failed: database\n"))
	assert.NotContains(t, string(summary), "\x1b[", "summary log has no colors")
}
