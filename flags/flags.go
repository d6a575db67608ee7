package flags

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/webqa/qa-runner/loadtest"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/service"
	"github.com/webqa/qa-runner/types"
	"github.com/webqa/qa-runner/verify"
)

const EnvVarPrefix = "QA_RUNNER"

// ErrNoSelection is returned when no subset flag was given
var ErrNoSelection = errors.New("no test subset selected; use --all or any of --api, --database, --unit, --integration, --security")

// Subset selection flags. Each maps to exactly one subset, except All.
var (
	All = &cli.BoolFlag{
		Name:    "all",
		Usage:   "Run every test subset",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALL"),
	}
	API = &cli.BoolFlag{
		Name:    "api",
		Usage:   "Run the API black box tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API"),
	}
	Database = &cli.BoolFlag{
		Name:    "database",
		Usage:   "Run the database tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DATABASE"),
	}
	Unit = &cli.BoolFlag{
		Name:    "unit",
		Usage:   "Run the unit tests with coverage",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "UNIT"),
	}
	Integration = &cli.BoolFlag{
		Name:    "integration",
		Usage:   "Run the integration tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INTEGRATION"),
	}
	Security = &cli.BoolFlag{
		Name:    "security",
		Usage:   "Run the security scanners",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SECURITY"),
	}
)

// subsetFlags maps selection flags to subsets, in execution order
var subsetFlags = []struct {
	flag   *cli.BoolFlag
	subset types.SubsetName
}{
	{API, types.SubsetAPI},
	{Database, types.SubsetDatabase},
	{Unit, types.SubsetUnit},
	{Integration, types.SubsetIntegration},
	{Security, types.SubsetSecurity},
}

var (
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Module root the subset packages are resolved against",
	}
	SubsetsFile = &cli.StringFlag{
		Name:    "subsets-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUBSETS_FILE"),
		Usage:   "Optional YAML file overriding the built-in subset definitions",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "reports",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory receiving one testrun-<id> directory per run",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   runner.DefaultGoBinary,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   runner.DefaultSubsetTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for each go test subset, unless the subset sets its own",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   service.DefaultHealthzPort,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Port for the healthz server, started together with the metrics server",
	}
)

// verify subcommand flags
var (
	APIURL = &cli.StringFlag{
		Name:    "api-url",
		Value:   "http://localhost:8000",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_URL"),
		Usage:   "Base URL of the API under test, checked for reachability",
	}
	VerifyTimeout = &cli.DurationFlag{
		Name:    "verify.timeout",
		Value:   verify.DefaultTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERIFY_TIMEOUT"),
		Usage:   "Timeout for each environment check",
	}
)

// load subcommand flags
var (
	LoadTool = &cli.StringFlag{
		Name:    "load.tool",
		Value:   loadtest.DefaultTool,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOAD_TOOL"),
		Usage:   "Load testing binary, invoked as '<tool> run'",
	}
	LoadScript = &cli.StringFlag{
		Name:    "load.script",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOAD_SCRIPT"),
		Usage:   "Load scenario script passed to the load tool",
	}
	LoadVUs = &cli.IntFlag{
		Name:    "load.vus",
		Value:   10,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOAD_VUS"),
		Usage:   "Number of virtual users",
	}
	LoadDuration = &cli.DurationFlag{
		Name:    "load.duration",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOAD_DURATION"),
		Usage:   "Duration of the load test",
	}
	LoadTargetURL = &cli.StringFlag{
		Name:    "load.target-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOAD_TARGET_URL"),
		Usage:   "Passed to the script as the TARGET_URL environment variable",
	}
)

var selectionFlags = []cli.Flag{
	All,
	API,
	Database,
	Unit,
	Integration,
	Security,
}

var optionalFlags = []cli.Flag{
	WorkDir,
	SubsetsFile,
	ReportDir,
	GoBinary,
	Timeout,
	HealthzPort,
}

// Flags are the flags of the root command
var Flags []cli.Flag

// VerifyFlags are the flags of the verify subcommand
var VerifyFlags = []cli.Flag{
	WorkDir,
	SubsetsFile,
	GoBinary,
	APIURL,
	VerifyTimeout,
}

// LoadFlags are the flags of the load subcommand
var LoadFlags = []cli.Flag{
	ReportDir,
	LoadTool,
	LoadScript,
	LoadVUs,
	LoadDuration,
	LoadTargetURL,
}

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(selectionFlags, optionalFlags...)

	// Subcommands take the log flags after their own name
	VerifyFlags = append(VerifyFlags, oplog.CLIFlags(EnvVarPrefix)...)
	LoadFlags = append(LoadFlags, oplog.CLIFlags(EnvVarPrefix)...)
}

// Selection returns the selected subsets in execution order
func Selection(ctx *cli.Context) ([]types.SubsetName, error) {
	if ctx.Bool(All.Name) {
		return append([]types.SubsetName(nil), types.SubsetOrder...), nil
	}

	var selected []types.SubsetName
	for _, f := range subsetFlags {
		if ctx.Bool(f.flag.Name) {
			selected = append(selected, f.subset)
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoSelection
	}
	return selected, nil
}

// CheckLoad validates the load subcommand flags
func CheckLoad(ctx *cli.Context) error {
	if ctx.String(LoadScript.Name) == "" {
		return fmt.Errorf("flag %s is required", LoadScript.Name)
	}
	if ctx.Int(LoadVUs.Name) <= 0 {
		return fmt.Errorf("flag %s must be positive", LoadVUs.Name)
	}
	if ctx.Duration(LoadDuration.Name) <= 0 {
		return fmt.Errorf("flag %s must be positive", LoadDuration.Name)
	}
	return nil
}
