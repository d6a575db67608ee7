package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"

	"github.com/webqa/qa-runner/types"
)

var _ CommandExecutor = (*commandExecutor)(nil)

// CommandExecutor runs one external tool of a command subset.
// Every outcome, including a binary missing from PATH, is reported through the result.
type CommandExecutor interface {
	Run(ctx context.Context, cmd types.CommandConfig) *types.CommandResult
}

// CommandExecutorConfig configures a CommandExecutor
type CommandExecutorConfig struct {
	WorkDir    string
	Log        log.Logger
	CmdBuilder CmdBuilder
	LookPath   func(file string) (string, error)
	Env        func() []string
	// OutputTailBytes bounds the captured output. Zero means the default.
	OutputTailBytes int
}

type commandExecutor struct {
	workDir    string
	log        log.Logger
	cmdBuilder CmdBuilder
	lookPath   func(file string) (string, error)
	env        func() []string
	tailBytes  int
}

// NewCommandExecutor creates a new command executor
func NewCommandExecutor(cfg CommandExecutorConfig) (CommandExecutor, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("workDir cannot be empty")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.Env == nil {
		cfg.Env = os.Environ
	}

	return &commandExecutor{
		workDir:    cfg.WorkDir,
		log:        cfg.Log,
		cmdBuilder: cfg.CmdBuilder,
		lookPath:   cfg.LookPath,
		env:        cfg.Env,
		tailBytes:  cfg.OutputTailBytes,
	}, nil
}

// Run executes the command in the work directory and captures its combined output
func (e *commandExecutor) Run(ctx context.Context, cfg types.CommandConfig) *types.CommandResult {
	result := &types.CommandResult{
		Description: cfg.Description,
		Args:        cfg.Args,
		ExitCode:    -1,
	}
	if len(cfg.Args) == 0 {
		result.Status = types.TestStatusError
		result.Error = "empty command"
		return result
	}

	path, err := e.lookPath(cfg.Args[0])
	if err != nil {
		result.Status = types.TestStatusFail
		result.Error = fmt.Sprintf("%s not found on PATH; install it to run this check", cfg.Args[0])
		e.log.Warn("Command not available", "command", cfg.Args[0], "err", err)
		return result
	}

	e.log.Info("Running command", "description", cfg.Description, "args", strings.Join(cfg.Args, " "))

	output := newTailBuffer(e.tailBytes)
	cmd := e.cmdBuilder(ctx, path, cfg.Args[1:]...)
	cmd.Dir = e.workDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, e.env())
	cmd.Stdout = output
	cmd.Stderr = output

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Output = output.snippet()
	result.ExitCode = exitCode(runErr)

	switch {
	case runErr == nil:
		result.Status = types.TestStatusPass
	case ctx.Err() != nil:
		result.Status = types.TestStatusError
		result.Error = fmt.Sprintf("interrupted: %v", ctx.Err())
	case result.ExitCode > 0:
		result.Status = types.TestStatusFail
		result.Error = fmt.Sprintf("%s exited with code %d", cfg.Args[0], result.ExitCode)
	default:
		result.Status = types.TestStatusError
		result.Error = fmt.Sprintf("failed to run %s: %v", cfg.Args[0], runErr)
	}

	e.log.Debug("Command finished", "command", cfg.Args[0], "exitCode", result.ExitCode, "duration", result.Duration)
	return result
}
