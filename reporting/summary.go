package reporting

import (
	"fmt"
	"io"

	"github.com/webqa/qa-runner/logging"
)

// PrintSummary writes the results table followed by the subset tally
func PrintSummary(w io.Writer, report *Report, colored bool) error {
	out, err := NewTableFormatter(colored, true).Format(report)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, out); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, report.Tally)
	return err
}

// PrintArtifacts lists the files written for the run
func PrintArtifacts(w io.Writer, runDir *logging.RunDir) error {
	files, err := runDir.Artifacts()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTest reports in %s:\n", runDir.Path())
	if len(files) == 0 {
		fmt.Fprintln(w, "  (none)")
		return nil
	}
	for _, file := range files {
		fmt.Fprintf(w, "  - %s\n", file)
	}
	return nil
}
