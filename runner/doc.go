// Package runner dispatches the selected test subsets in their fixed order.
//
// The main components are:
//   - SubsetRunner: resolves, validates and runs the selected subsets one at a time
//   - GoTestExecutor: runs the packages of a gotest subset with go test -json
//   - CommandExecutor: runs the external tools of a command subset
//   - ParseTestEvents: turns a test2json stream into per-test results
//
// A subset failure is recorded and the run continues with the next subset.
// A subset that cannot be located aborts the run before anything executes.
package runner
