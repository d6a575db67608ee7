package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	harness "github.com/webqa/qa-runner"
	"github.com/webqa/qa-runner/exitcodes"
	"github.com/webqa/qa-runner/flags"
	"github.com/webqa/qa-runner/loadtest"
	"github.com/webqa/qa-runner/registry"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/verify"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "qa-runner"
	app.Usage = "Backend test runner for the web application test harness"
	app.Description = "qa-runner runs the selected backend test subsets in a fixed order and reports the result.\n" +
		"Combine --api, --database, --unit, --integration and --security, or use --all."
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:   "verify",
			Usage:  "Check that the environment can run the test subsets",
			Flags:  cliapp.ProtectFlags(flags.VerifyFlags),
			Action: runVerify,
		},
		{
			Name:   "load",
			Usage:  "Run the external load testing tool",
			Flags:  cliapp.ProtectFlags(flags.LoadFlags),
			Action: runLoad,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
		}
	}
	return app
}

// exitCode maps an application error to the process exit code
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case err == nil:
		return exitcodes.Success
	case errors.As(err, &exitErr):
		// Use the exit code from the ExitCoder
		return exitErr.ExitCode()
	case harness.IsInterruptedError(err):
		return exitcodes.Interrupted
	case harness.IsRuntimeError(err):
		// For runtime errors, use exit code 2
		return exitcodes.RuntimeErr
	case harness.IsTestFailureError(err), harness.IsUsageError(err):
		return exitcodes.TestFailure
	default:
		// For other unspecified errors, default to exit code 1
		return exitcodes.TestFailure
	}
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()
	return log
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log := setupLogger(ctx)

	selected, err := flags.Selection(ctx)
	if err != nil {
		_ = cli.ShowAppHelp(ctx)
		return nil, harness.NewUsageError(err)
	}

	cfg, err := harness.NewConfig(ctx, log, selected)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, harness.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg.Snapshot())

	h, err := harness.New(ctx.Context, cfg, Version, closeApp, harness.WithStdout(ctx.App.Writer))
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, harness.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	return h, nil
}

func runVerify(ctx *cli.Context) error {
	log := setupLogger(ctx)

	workDir, err := filepath.Abs(ctx.String(flags.WorkDir.Name))
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to resolve work directory: %w", err))
	}
	subsetsFile := ctx.String(flags.SubsetsFile.Name)
	if subsetsFile != "" {
		if subsetsFile, err = filepath.Abs(subsetsFile); err != nil {
			return harness.NewRuntimeError(fmt.Errorf("failed to resolve subsets file: %w", err))
		}
	}

	reg, err := registry.NewRegistry(registry.Config{Log: log, SubsetsFile: subsetsFile})
	if err != nil {
		return harness.NewRuntimeError(err)
	}

	verifier, err := verify.New(verify.Config{
		WorkDir:  workDir,
		GoBinary: ctx.String(flags.GoBinary.Name),
		APIURL:   ctx.String(flags.APIURL.Name),
		Timeout:  ctx.Duration(flags.VerifyTimeout.Name),
		Registry: reg,
		Log:      log,
	})
	if err != nil {
		return harness.NewRuntimeError(err)
	}

	report := verifier.Run(ctx.Context)
	if err := report.Print(ctx.App.Writer, oplog.ReadCLIConfig(ctx).Color); err != nil {
		return harness.NewRuntimeError(err)
	}
	if !report.OK() {
		return harness.NewTestFailureError(report.Tally())
	}
	return nil
}

func runLoad(ctx *cli.Context) error {
	log := setupLogger(ctx)

	if err := flags.CheckLoad(ctx); err != nil {
		return harness.NewUsageError(err)
	}

	reportDir, err := filepath.Abs(ctx.String(flags.ReportDir.Name))
	if err != nil {
		return harness.NewRuntimeError(fmt.Errorf("failed to resolve report directory: %w", err))
	}
	workDir, err := os.Getwd()
	if err != nil {
		return harness.NewRuntimeError(err)
	}

	commands, err := runner.NewCommandExecutor(runner.CommandExecutorConfig{WorkDir: workDir, Log: log})
	if err != nil {
		return harness.NewRuntimeError(err)
	}
	loadRunner, err := loadtest.New(loadtest.Config{
		Tool:      ctx.String(flags.LoadTool.Name),
		Script:    ctx.String(flags.LoadScript.Name),
		VUs:       ctx.Int(flags.LoadVUs.Name),
		Duration:  ctx.Duration(flags.LoadDuration.Name),
		TargetURL: ctx.String(flags.LoadTargetURL.Name),
		ReportDir: reportDir,
		Log:       log,
	}, commands)
	if err != nil {
		return harness.NewRuntimeError(err)
	}

	result, err := loadRunner.Run(ctx.Context)
	if err != nil {
		return harness.NewRuntimeError(err)
	}
	loadtest.PrintSummary(ctx.App.Writer, result)

	if result.ExitCode != exitcodes.Success {
		return harness.NewTestFailureError(fmt.Sprintf("load test %s", result.Status))
	}
	return nil
}
