package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/webqa/qa-runner/types"
)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string

	// ImportPath is set on build-output and build-fail events
	ImportPath string
	// FailedBuild names the package whose build failed on a package-level fail event
	FailedBuild string
}

// ParsedOutput holds everything read from one go test -json stream
type ParsedOutput struct {
	// Tests are the top-level tests in the order they started
	Tests []*types.TestResult
	// Stats counts top-level tests only
	Stats types.Stats
	// FailedPackages lists packages that reported a package-level failure
	FailedPackages []string
	// FailedBuilds lists packages that failed to build
	FailedBuilds []string
	// BuildOutput holds the compiler diagnostics from build-output events
	BuildOutput string
	// Log is the human-readable output, i.e. what go test -v would have printed
	Log string
}

type testKey struct {
	pkg  string
	name string
}

// ParseTestEvents reads a test2json stream. Lines that are not JSON are kept in the log.
func ParseTestEvents(r io.Reader) (*ParsedOutput, error) {
	parsed := &ParsedOutput{}

	var logBuf strings.Builder
	topLevel := make(map[testKey]*types.TestResult)
	outputs := make(map[testKey]*strings.Builder)
	failedPkgs := make(map[string]bool)
	failedBuilds := make(map[string]bool)
	var buildBuf strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil {
			logBuf.Write(line)
			logBuf.WriteString("\n")
			continue
		}

		switch event.Action {
		case ActionOutput:
			logBuf.WriteString(event.Output)
		case ActionBuildOutput:
			logBuf.WriteString(event.Output)
			buildBuf.WriteString(event.Output)
			continue
		case ActionBuildFail:
			continue
		}

		if event.Test == "" {
			if event.Action != ActionFail {
				continue
			}
			if event.FailedBuild != "" {
				if !failedBuilds[event.Package] {
					failedBuilds[event.Package] = true
					parsed.FailedBuilds = append(parsed.FailedBuilds, event.Package)
				}
				continue
			}
			if !failedPkgs[event.Package] {
				failedPkgs[event.Package] = true
				parsed.FailedPackages = append(parsed.FailedPackages, event.Package)
			}
			continue
		}

		topName, subName, _ := strings.Cut(event.Test, "/")
		key := testKey{pkg: event.Package, name: topName}
		top, ok := topLevel[key]
		if !ok {
			top = &types.TestResult{Name: topName, Package: event.Package}
			topLevel[key] = top
			parsed.Tests = append(parsed.Tests, top)
		}

		target := top
		if subName != "" {
			if top.SubTests == nil {
				top.SubTests = make(map[string]*types.TestResult)
			}
			target, ok = top.SubTests[subName]
			if !ok {
				target = &types.TestResult{Name: event.Test, Package: event.Package}
				top.SubTests[subName] = target
			}
		}

		fullKey := testKey{pkg: event.Package, name: event.Test}
		switch event.Action {
		case ActionOutput:
			buf, ok := outputs[fullKey]
			if !ok {
				buf = &strings.Builder{}
				outputs[fullKey] = buf
			}
			buf.WriteString(event.Output)
		case ActionPass:
			target.Status = types.TestStatusPass
			target.Duration = elapsed(event)
		case ActionFail:
			target.Status = types.TestStatusFail
			target.Duration = elapsed(event)
		case ActionSkip:
			target.Status = types.TestStatusSkip
			target.Duration = elapsed(event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test output: %w", err)
	}

	for _, test := range parsed.Tests {
		finalize(test, outputs)
		for _, sub := range test.SubTests {
			finalize(sub, outputs)
		}
		parsed.Stats.Add(test.Status)
	}
	parsed.Log = logBuf.String()
	parsed.BuildOutput = buildBuf.String()

	return parsed, nil
}

// finalize marks tests that never reported a result as failed and keeps output for failures only
func finalize(test *types.TestResult, outputs map[testKey]*strings.Builder) {
	if test.Status == "" {
		// Started but never finished, e.g. the binary panicked or timed out
		test.Status = types.TestStatusFail
	}
	if test.Status.Failed() {
		if buf, ok := outputs[testKey{pkg: test.Package, name: test.Name}]; ok {
			test.Output = buf.String()
		}
	}
}

func elapsed(event TestEvent) time.Duration {
	if event.Elapsed <= 0 {
		return 0
	}
	return time.Duration(event.Elapsed * float64(time.Second))
}
