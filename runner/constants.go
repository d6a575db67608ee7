package runner

import "time"

// Test execution constants
const (
	// DefaultSubsetTimeout is the default timeout for a go-test subset
	DefaultSubsetTimeout = 10 * time.Minute

	// Default go binary name
	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand      = "test"
	JSONFlag         = "-json"
	VerboseFlag      = "-v"
	TimeoutFlag      = "-timeout"
	CountFlag        = "-count"
	CoverProfileFlag = "-coverprofile"

	// Test count to disable caching
	DisableCacheCount = "1"

	// maxEventLineBytes bounds a single test2json line
	maxEventLineBytes = 4 * 1024 * 1024
)

// Go test2json (TestEvent) action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"

	// Build events are keyed by ImportPath rather than Package
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)
