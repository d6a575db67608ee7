package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webqa/qa-runner/exitcodes"
	"github.com/webqa/qa-runner/registry"
	"github.com/webqa/qa-runner/types"
)

// fakeGoTests records every subset it is asked to run
type fakeGoTests struct {
	calls  []types.SubsetName
	fail   map[types.SubsetName]bool
	err    map[types.SubsetName]error
	onCall func(name types.SubsetName)
}

func (f *fakeGoTests) Execute(_ context.Context, def types.SubsetDefinition, _ Artifacts) (*types.SubsetResult, error) {
	f.calls = append(f.calls, def.Name)
	if f.onCall != nil {
		f.onCall(def.Name)
	}
	if err := f.err[def.Name]; err != nil {
		return nil, err
	}
	result := &types.SubsetResult{Status: types.TestStatusPass, Output: "ok " + def.Name.String()}
	result.Stats.Add(types.TestStatusPass)
	if f.fail[def.Name] {
		result.Status = types.TestStatusFail
		result.Error = "1 of 2 tests failed"
		result.Stats.Add(types.TestStatusFail)
	}
	return result, nil
}

// fakeCommands records every command it is asked to run
type fakeCommands struct {
	calls [][]string
	fail  bool
}

func (f *fakeCommands) Run(_ context.Context, cmd types.CommandConfig) *types.CommandResult {
	f.calls = append(f.calls, cmd.Args)
	if f.fail {
		return &types.CommandResult{Args: cmd.Args, ExitCode: 1, Status: types.TestStatusFail, Error: "issues found"}
	}
	return &types.CommandResult{Args: cmd.Args, Status: types.TestStatusPass, Output: "clean\n"}
}

// newWorkDir creates the default suite directories
func newWorkDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, pkg := range []string{"api", "database", "unit", "integration"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "suites", pkg), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "suites", pkg, pkg+"_test.go"), []byte("package "+pkg+"\n"), 0644))
	}
	return dir
}

func newTestRunner(t *testing.T, workDir, reportDir string, goTests GoTestExecutor, commands CommandExecutor) SubsetRunner {
	t.Helper()
	logger := log.NewLogger(log.DiscardHandler())
	reg, err := registry.NewRegistry(registry.Config{Log: logger})
	require.NoError(t, err)

	r, err := NewSubsetRunner(Config{
		Registry:  reg,
		WorkDir:   workDir,
		ReportDir: reportDir,
		RunID:     "test-run",
		GoTests:   goTests,
		Commands:  commands,
		Log:       logger,
	})
	require.NoError(t, err)
	return r
}

func TestNewSubsetRunner(t *testing.T) {
	reg, err := registry.NewRegistry(registry.Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)

	_, err = NewSubsetRunner(Config{WorkDir: "/tmp", GoTests: &fakeGoTests{}, Commands: &fakeCommands{}})
	assert.Error(t, err)
	_, err = NewSubsetRunner(Config{Registry: reg, GoTests: &fakeGoTests{}, Commands: &fakeCommands{}})
	assert.Error(t, err)
	_, err = NewSubsetRunner(Config{Registry: reg, WorkDir: "/tmp", Commands: &fakeCommands{}})
	assert.Error(t, err)
	_, err = NewSubsetRunner(Config{Registry: reg, WorkDir: "/tmp", GoTests: &fakeGoTests{}})
	assert.Error(t, err)
}

func TestRunAllInvokesEverySubsetOnceInOrder(t *testing.T) {
	goTests := &fakeGoTests{}
	commands := &fakeCommands{}
	r := newTestRunner(t, newWorkDir(t), "", goTests, commands)

	result, err := r.Run(context.Background(), types.SubsetOrder)
	require.NoError(t, err)

	assert.Equal(t, []types.SubsetName{types.SubsetAPI, types.SubsetDatabase, types.SubsetUnit, types.SubsetIntegration}, goTests.calls)
	assert.Len(t, commands.calls, 2, "security runs both scanners")

	require.Len(t, result.Subsets, 5)
	for i, s := range result.Subsets {
		assert.Equal(t, types.SubsetOrder[i], s.Name)
	}
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Equal(t, exitcodes.Success, result.ExitCode())
	assert.Equal(t, "5/5 subsets passed", result.Tally())
	assert.Equal(t, "test-run", result.RunID)
	assert.Equal(t, 6, result.Stats.Total)
}

func TestRunAllWithDatabaseFailure(t *testing.T) {
	goTests := &fakeGoTests{fail: map[types.SubsetName]bool{types.SubsetDatabase: true}}
	commands := &fakeCommands{}
	r := newTestRunner(t, newWorkDir(t), "", goTests, commands)

	result, err := r.Run(context.Background(), types.SubsetOrder)
	require.NoError(t, err)

	// Execution continues past the failure
	assert.Len(t, goTests.calls, 4)
	assert.Len(t, commands.calls, 2)
	require.Len(t, result.Subsets, 5)

	assert.Equal(t, exitcodes.TestFailure, result.ExitCode())
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, []types.SubsetName{types.SubsetDatabase}, result.Failed())
	assert.Equal(t, "4/5 subsets passed; failed: database", result.Tally())
}

func TestRunSelectedSubsets(t *testing.T) {
	goTests := &fakeGoTests{}
	commands := &fakeCommands{}
	r := newTestRunner(t, newWorkDir(t), "", goTests, commands)

	result, err := r.Run(context.Background(), []types.SubsetName{types.SubsetUnit, types.SubsetAPI})
	require.NoError(t, err)

	assert.Equal(t, []types.SubsetName{types.SubsetAPI, types.SubsetUnit}, goTests.calls)
	assert.Empty(t, commands.calls)
	require.Len(t, result.Subsets, 2)
	assert.Equal(t, types.SubsetAPI, result.Subsets[0].Name)
	assert.Equal(t, types.SubsetUnit, result.Subsets[1].Name)
	assert.Equal(t, exitcodes.Success, result.ExitCode())
}

func TestExitCodeZeroIffEverySubsetPassed(t *testing.T) {
	gotestSubsets := []types.SubsetName{types.SubsetAPI, types.SubsetDatabase, types.SubsetUnit, types.SubsetIntegration}
	workDir := newWorkDir(t)

	// Every combination of failing subsets, including the security commands
	for mask := 0; mask < 1<<len(types.SubsetOrder); mask++ {
		fail := make(map[types.SubsetName]bool)
		for i, name := range gotestSubsets {
			if mask&(1<<i) != 0 {
				fail[name] = true
			}
		}
		securityFails := mask&(1<<len(gotestSubsets)) != 0

		r := newTestRunner(t, workDir, "", &fakeGoTests{fail: fail}, &fakeCommands{fail: securityFails})
		result, err := r.Run(context.Background(), types.SubsetOrder)
		require.NoError(t, err)

		allZero := true
		for _, s := range result.Subsets {
			if s.ExitCode() != 0 {
				allZero = false
			}
		}
		assert.Equal(t, mask == 0, allZero, "mask %b", mask)
		assert.Equal(t, allZero, result.ExitCode() == 0, "mask %b", mask)
	}
}

func TestRunMisconfiguredSubsetRunsNothing(t *testing.T) {
	workDir := t.TempDir()
	// Only the api directory exists
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "suites", "api"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "suites", "api", "api_test.go"), []byte("package api\n"), 0644))

	goTests := &fakeGoTests{}
	commands := &fakeCommands{}
	r := newTestRunner(t, workDir, t.TempDir(), goTests, commands)

	result, err := r.Run(context.Background(), types.SubsetOrder)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, registry.ErrMisconfigured))
	assert.Contains(t, err.Error(), "suites/database")
	assert.Empty(t, goTests.calls)
	assert.Empty(t, commands.calls)
}

func TestRunSubsetWithoutGoPackagesRunsNothing(t *testing.T) {
	workDir := newWorkDir(t)
	require.NoError(t, os.Remove(filepath.Join(workDir, "suites", "api", "api_test.go")))

	goTests := &fakeGoTests{}
	r := newTestRunner(t, workDir, t.TempDir(), goTests, &fakeCommands{})

	result, err := r.Run(context.Background(), []types.SubsetName{types.SubsetAPI, types.SubsetUnit})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, registry.ErrMisconfigured))
	assert.Contains(t, err.Error(), "matched no Go packages")
	assert.Empty(t, goTests.calls)
}

func TestRunRejectsUnknownOrEmptySelection(t *testing.T) {
	goTests := &fakeGoTests{}
	r := newTestRunner(t, newWorkDir(t), "", goTests, &fakeCommands{})

	_, err := r.Run(context.Background(), []types.SubsetName{"performance"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrMisconfigured))

	_, err = r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, goTests.calls)
}

func TestRunExecutorErrorIsRecorded(t *testing.T) {
	goTests := &fakeGoTests{err: map[types.SubsetName]error{types.SubsetAPI: errors.New("disk full")}}
	r := newTestRunner(t, newWorkDir(t), "", goTests, &fakeCommands{})

	result, err := r.Run(context.Background(), []types.SubsetName{types.SubsetAPI, types.SubsetUnit})
	require.NoError(t, err)

	require.Len(t, result.Subsets, 2)
	assert.Equal(t, types.TestStatusError, result.Subsets[0].Status)
	assert.Equal(t, "disk full", result.Subsets[0].Error)
	assert.Equal(t, types.TestStatusPass, result.Subsets[1].Status)
	assert.Equal(t, exitcodes.TestFailure, result.ExitCode())
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	goTests := &fakeGoTests{onCall: func(name types.SubsetName) {
		if name == types.SubsetDatabase {
			cancel()
		}
	}}
	commands := &fakeCommands{}
	r := newTestRunner(t, newWorkDir(t), "", goTests, commands)

	result, err := r.Run(ctx, types.SubsetOrder)
	require.NoError(t, err)

	assert.Equal(t, []types.SubsetName{types.SubsetAPI, types.SubsetDatabase}, goTests.calls)
	assert.Empty(t, commands.calls)
	assert.True(t, result.Interrupted)
	assert.Equal(t, exitcodes.Interrupted, result.ExitCode())
}

func TestRunWritesSubsetLogs(t *testing.T) {
	reportDir := t.TempDir()
	r := newTestRunner(t, newWorkDir(t), reportDir, &fakeGoTests{}, &fakeCommands{})

	result, err := r.Run(context.Background(), []types.SubsetName{types.SubsetAPI, types.SubsetSecurity})
	require.NoError(t, err)
	require.NotNil(t, result.RunDir)
	assert.Equal(t, filepath.Join(reportDir, "testrun-test-run"), result.RunDir.Path())

	data, err := os.ReadFile(result.RunDir.SubsetLogPath(types.SubsetAPI))
	require.NoError(t, err)
	assert.Equal(t, "ok api", string(data))

	data, err = os.ReadFile(result.RunDir.SubsetLogPath(types.SubsetSecurity))
	require.NoError(t, err)
	assert.Contains(t, string(data), "==> Static Analysis Scan: gosec -fmt text ./...")
	assert.Contains(t, string(data), "clean")
}

func TestRunCommandSubsetFailure(t *testing.T) {
	r := newTestRunner(t, newWorkDir(t), "", &fakeGoTests{}, &fakeCommands{fail: true})

	result, err := r.Run(context.Background(), []types.SubsetName{types.SubsetSecurity})
	require.NoError(t, err)
	require.Len(t, result.Subsets, 1)

	security := result.Subsets[0]
	assert.Equal(t, types.TestStatusFail, security.Status)
	assert.Equal(t, "issues found; issues found", security.Error)
	assert.Equal(t, types.Stats{Total: 2, Failed: 2}, security.Stats)
	assert.Equal(t, exitcodes.TestFailure, result.ExitCode())
}
