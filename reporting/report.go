package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/webqa/qa-runner/logging"
	"github.com/webqa/qa-runner/runner"
	"github.com/webqa/qa-runner/types"
)

// Report is the JSON document written to report.json
type Report struct {
	RunID       string                        `json:"runId"`
	Timestamp   time.Time                     `json:"timestamp"`
	Duration    time.Duration                 `json:"duration"`
	Status      types.TestStatus              `json:"status"`
	ExitCode    int                           `json:"exitCode"`
	Interrupted bool                          `json:"interrupted,omitempty"`
	Tally       string                        `json:"tally"`
	Failed      []types.SubsetName            `json:"failed,omitempty"`
	Stats       types.Stats                   `json:"stats"`
	Subsets     []*types.SubsetResult         `json:"subsets"`
	Config      types.EffectiveConfigSnapshot `json:"config"`
	Environment map[string]string             `json:"environment"`
}

// NewReport assembles the report for a finished run
func NewReport(result *runner.RunResult, cfg types.EffectiveConfigSnapshot) *Report {
	return &Report{
		RunID:       result.RunID,
		Timestamp:   result.StartTime,
		Duration:    result.Duration,
		Status:      result.Status,
		ExitCode:    result.ExitCode(),
		Interrupted: result.Interrupted,
		Tally:       result.Tally(),
		Failed:      result.Failed(),
		Stats:       result.Stats,
		Subsets:     result.Subsets,
		Config:      cfg,
		Environment: CaptureEnvironment(os.LookupEnv),
	}
}

// CaptureEnvironment records the pass-through variables exactly as set. Unset variables are omitted.
func CaptureEnvironment(lookup func(string) (string, bool)) map[string]string {
	env := make(map[string]string, len(types.PassthroughEnvVars))
	for _, name := range types.PassthroughEnvVars {
		if value, ok := lookup(name); ok {
			env[name] = value
		}
	}
	return env
}

// WriteJSON writes the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteArtifacts writes report.json and summary.log into the run directory
func WriteArtifacts(runDir *logging.RunDir, report *Report) error {
	f, err := os.Create(runDir.File(logging.ReportJSON))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}

	summary, err := NewTableFormatter(false, true).Format(report)
	if err != nil {
		return err
	}
	return runDir.WriteFile(logging.SummaryLog, []byte(summary+report.Tally+"\n"))
}
