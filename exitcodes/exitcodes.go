// Package exitcodes defines the standard exit codes used by qa-runner.
package exitcodes

// Exit code constants used by qa-runner
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every selected subset passes
// * TestFailure (1): Used when one or more subsets fail, or the command line is invalid
// * RuntimeErr (2): Used for runtime errors such as a misconfigured subset or an unwritable report
// * Interrupted (130): Used when the run is cancelled by SIGINT/SIGTERM
const (
	Success     = 0   // All subsets pass
	TestFailure = 1   // Subset failures
	RuntimeErr  = 2   // Runtime errors or misconfiguration
	Interrupted = 130 // Interrupted by signal
)
