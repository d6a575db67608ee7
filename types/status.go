// Package types contains shared types used across the qa-runner harness
package types

// TestStatus represents the possible states of a test or subset execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// Failed reports whether the status counts against the run
func (s TestStatus) Failed() bool {
	return s == TestStatusFail || s == TestStatusError
}

// CombineStatus folds a list of statuses into one.
// Any failure wins, then pass, and an empty or all-skipped list is a skip.
func CombineStatus(statuses ...TestStatus) TestStatus {
	allSkipped := true
	anyFailed := false
	for _, s := range statuses {
		if s != TestStatusSkip {
			allSkipped = false
		}
		if s.Failed() {
			anyFailed = true
		}
	}
	if anyFailed {
		return TestStatusFail
	}
	if allSkipped {
		return TestStatusSkip
	}
	return TestStatusPass
}
