package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"

	"github.com/webqa/qa-runner/types"
)

var _ GoTestExecutor = (*goTestExecutor)(nil)

// Artifacts receives the files a subset produces
type Artifacts interface {
	// AppendRawEvents appends raw go test -json lines to the run's event log
	AppendRawEvents(r io.Reader) error
	// CoverageProfilePath returns where a subset's coverage profile is written
	CoverageProfilePath(name types.SubsetName) string
}

// GoTestExecutor runs the packages of a gotest subset.
// Test failures are reported through the result. The error is reserved for problems
// that prevented the subset from producing a result at all.
type GoTestExecutor interface {
	Execute(ctx context.Context, def types.SubsetDefinition, artifacts Artifacts) (*types.SubsetResult, error)
}

// CmdBuilder creates the command for a subprocess
type CmdBuilder func(ctx context.Context, name string, arg ...string) *exec.Cmd

// GoTestExecutorConfig configures a GoTestExecutor
type GoTestExecutorConfig struct {
	WorkDir  string
	GoBinary string
	// Timeout applies when the subset does not set its own. Zero means DefaultSubsetTimeout.
	Timeout    time.Duration
	Log        log.Logger
	CmdBuilder CmdBuilder
	// Env returns the child environment. Defaults to the current process environment.
	Env func() []string
}

// goTestExecutor implements GoTestExecutor
type goTestExecutor struct {
	workDir    string
	goBinary   string
	timeout    time.Duration
	log        log.Logger
	cmdBuilder CmdBuilder
	env        func() []string
}

// NewGoTestExecutor creates a new go test executor
func NewGoTestExecutor(cfg GoTestExecutorConfig) (GoTestExecutor, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("workDir cannot be empty")
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSubsetTimeout
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	if cfg.Env == nil {
		cfg.Env = os.Environ
	}

	return &goTestExecutor{
		workDir:    cfg.WorkDir,
		goBinary:   cfg.GoBinary,
		timeout:    cfg.Timeout,
		log:        cfg.Log,
		cmdBuilder: cfg.CmdBuilder,
		env:        cfg.Env,
	}, nil
}

// Execute runs every package of the subset in a single go test invocation
func (e *goTestExecutor) Execute(ctx context.Context, def types.SubsetDefinition, artifacts Artifacts) (*types.SubsetResult, error) {
	if len(def.Packages) == 0 {
		return nil, fmt.Errorf("subset %s has no packages", def.Name)
	}

	coverFile := ""
	if def.Coverage && artifacts != nil {
		coverFile = artifacts.CoverageProfilePath(def.Name)
	}
	args := e.buildTestArgs(def, coverFile)

	cmd := e.cmdBuilder(ctx, e.goBinary, args...)
	cmd.Dir = e.workDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, e.env())

	stdoutFile, err := os.CreateTemp("", "qa-runner-gotest-stdout-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout temp file: %w", err)
	}
	stdoutPath := stdoutFile.Name()
	defer func() {
		_ = stdoutFile.Close()
		_ = os.Remove(stdoutPath)
	}()

	stdoutTail := newTailBuffer(defaultStdoutTailBytes)
	var stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(stdoutFile, stdoutTail)
	cmd.Stderr = &stderrBuf

	e.log.Info("Running go test", "subset", def.Name, "packages", def.Packages, "coverage", coverFile != "")

	runErr := cmd.Run()
	_ = stdoutFile.Close()

	stdoutReader, err := os.Open(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdout: %w", err)
	}
	parsed, parseErr := ParseTestEvents(stdoutReader)
	_ = stdoutReader.Close()
	if parseErr != nil {
		// Fall back to the raw tail so the log still shows what happened
		parsed = &ParsedOutput{Log: stdoutTail.snippet()}
	}

	if artifacts != nil && stdoutTail.TotalBytes() > 0 {
		rawReader, err := os.Open(stdoutPath)
		if err != nil {
			return nil, fmt.Errorf("failed to reopen stdout: %w", err)
		}
		err = artifacts.AppendRawEvents(rawReader)
		_ = rawReader.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to store raw events: %w", err)
		}
	}

	result := &types.SubsetResult{
		Name:        def.Name,
		Description: def.Description,
		Kind:        types.SubsetKindGoTest,
		Tests:       parsed.Tests,
		Stats:       parsed.Stats,
		Commands: []*types.CommandResult{{
			Description: "go test",
			Args:        append([]string{e.goBinary}, args...),
			ExitCode:    exitCode(runErr),
		}},
	}
	if coverFile != "" {
		if _, err := os.Stat(coverFile); err == nil {
			result.CoverageFile = coverFile
		}
	}

	var output strings.Builder
	output.WriteString(parsed.Log)
	if stderrBuf.Len() > 0 {
		output.WriteString("\nstderr:\n")
		output.Write(stderrBuf.Bytes())
	}
	result.Output = output.String()

	result.Status, result.Error = e.classify(ctx, runErr, parsed, parseErr, stderrBuf.String())
	result.Commands[0].Status = result.Status
	result.Commands[0].Error = result.Error

	return result, nil
}

// classify turns the go test exit state into a subset status and error message
func (e *goTestExecutor) classify(ctx context.Context, runErr error, parsed *ParsedOutput, parseErr error, stderr string) (types.TestStatus, string) {
	if ctx.Err() != nil {
		return types.TestStatusError, fmt.Sprintf("interrupted: %v", ctx.Err())
	}
	if parseErr != nil {
		return types.TestStatusError, parseErr.Error()
	}

	if runErr == nil {
		return types.CombineStatus(statuses(parsed.Tests)...), ""
	}

	var errMsg string
	exitErr := &exec.ExitError{}
	if errors.As(runErr, &exitErr) {
		switch {
		case len(parsed.FailedBuilds) > 0:
			errMsg = fmt.Sprintf("test compilation failed: %s", strings.Join(parsed.FailedBuilds, ", "))
			if diag := strings.TrimSpace(parsed.BuildOutput); diag != "" {
				errMsg = fmt.Sprintf("%s\n%s", errMsg, diag)
			}
		case exitErr.ExitCode() == 1 && parsed.Stats.Failed > 0:
			errMsg = fmt.Sprintf("%d of %d tests failed", parsed.Stats.Failed, parsed.Stats.Total)
		case exitErr.ExitCode() == 1 && len(parsed.FailedPackages) > 0:
			errMsg = fmt.Sprintf("package setup failed: %s", strings.Join(parsed.FailedPackages, ", "))
		case exitErr.ExitCode() == 2:
			errMsg = "test compilation failed"
		default:
			errMsg = fmt.Sprintf("go test exited with code %d", exitErr.ExitCode())
		}
	} else {
		return types.TestStatusError, fmt.Sprintf("failed to run go test: %v", runErr)
	}

	if stderr = strings.TrimSpace(stderr); stderr != "" {
		errMsg = fmt.Sprintf("%s\nstderr: %s", errMsg, stderr)
	}
	return types.TestStatusFail, errMsg
}

func (e *goTestExecutor) buildTestArgs(def types.SubsetDefinition, coverFile string) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}

	timeout := e.timeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	if timeout > 0 {
		args = append(args, TimeoutFlag, timeout.String())
	}

	if coverFile != "" {
		args = append(args, CoverProfileFlag+"="+coverFile)
	}

	return append(args, def.Packages...)
}

func statuses(tests []*types.TestResult) []types.TestStatus {
	out := make([]types.TestStatus, 0, len(tests))
	for _, t := range tests {
		out = append(out, t.Status)
	}
	return out
}

// exitCode extracts the process exit code. -1 means the process never ran to completion.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	exitErr := &exec.ExitError{}
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
