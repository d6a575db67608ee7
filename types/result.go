package types

import (
	"time"
)

// TestResult captures the outcome of a single Go test
type TestResult struct {
	Name     string                 `json:"name"`
	Package  string                 `json:"package"`
	Status   TestStatus             `json:"status"`
	Duration time.Duration          `json:"duration"`
	Output   string                 `json:"output,omitempty"` // kept for failing tests only
	SubTests map[string]*TestResult `json:"subTests,omitempty"`
}

// CommandResult captures the outcome of a single subprocess
type CommandResult struct {
	Description string        `json:"description,omitempty"`
	Args        []string      `json:"args"`
	ExitCode    int           `json:"exitCode"`
	Status      TestStatus    `json:"status"`
	Duration    time.Duration `json:"duration"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Stats tracks test counts
type Stats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Add folds a status into the stats
func (s *Stats) Add(status TestStatus) {
	s.Total++
	switch status {
	case TestStatusPass:
		s.Passed++
	case TestStatusSkip:
		s.Skipped++
	default:
		s.Failed++
	}
}

// Merge adds other into s
func (s *Stats) Merge(other Stats) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// SubsetResult captures the outcome of one subset
type SubsetResult struct {
	Name         SubsetName       `json:"name"`
	Description  string           `json:"description,omitempty"`
	Kind         SubsetKind       `json:"kind"`
	Status       TestStatus       `json:"status"`
	Duration     time.Duration    `json:"duration"`
	StartTime    time.Time        `json:"startTime"`
	Commands     []*CommandResult `json:"commands"`
	Tests        []*TestResult    `json:"tests,omitempty"`
	Stats        Stats            `json:"stats"`
	CoverageFile string           `json:"coverageFile,omitempty"`
	Error        string           `json:"error,omitempty"`

	// Output is the combined human-readable output, written to the subset log
	Output string `json:"-"`
}

// ExitCode returns the subset's process-level outcome: 0 for pass or skip, 1 otherwise
func (r *SubsetResult) ExitCode() int {
	if r.Status.Failed() {
		return 1
	}
	return 0
}
