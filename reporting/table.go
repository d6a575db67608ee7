package reporting

import (
	"bytes"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/webqa/qa-runner/types"
)

// TableFormatter renders a report as a table with one row per subset
type TableFormatter struct {
	colored         bool
	showFailedTests bool
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(colored bool, showFailedTests bool) *TableFormatter {
	return &TableFormatter{colored: colored, showFailedTests: showFailedTests}
}

// Format renders the report
func (tf *TableFormatter) Format(report *Report) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("Backend Test Results (%s)", formatDuration(report.Duration)))

	t.AppendHeader(table.Row{
		"Subset", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Subset", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, subset := range report.Subsets {
		t.AppendRow(table.Row{
			subset.Name.String(),
			formatDuration(subset.Duration),
			subset.Stats.Total,
			subset.Stats.Passed,
			subset.Stats.Failed,
			subset.Stats.Skipped,
			getResultString(subset.Status),
			extractKeyErrorMessage(subset.Error),
		})

		if tf.showFailedTests {
			tf.appendFailedTests(t, subset)
		}
	}

	// Update the table style based on overall result status
	if tf.colored {
		if report.Status.Failed() {
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		} else {
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		}
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(report.Duration),
		report.Stats.Total,
		report.Stats.Passed,
		report.Stats.Failed,
		report.Stats.Skipped,
		getResultString(report.Status),
		"",
	})

	t.Render()
	return buf.String(), nil
}

// appendFailedTests lists failing tests and commands beneath their subset
func (tf *TableFormatter) appendFailedTests(t table.Writer, subset *types.SubsetResult) {
	var rows []table.Row
	for _, test := range subset.Tests {
		if !test.Status.Failed() {
			continue
		}
		rows = append(rows, table.Row{
			test.Name, formatDuration(test.Duration), "", "", "", "", getResultString(test.Status), failingTestLine(test.Output),
		})
	}
	if subset.Kind == types.SubsetKindCommand {
		for _, cmd := range subset.Commands {
			if !cmd.Status.Failed() {
				continue
			}
			rows = append(rows, table.Row{
				cmd.Description, formatDuration(cmd.Duration), "", "", "", "", getResultString(cmd.Status), extractKeyErrorMessage(cmd.Error),
			})
		}
	}

	for i, row := range rows {
		prefix := "├──"
		if i == len(rows)-1 {
			prefix = "└──"
		}
		row[0] = fmt.Sprintf("%s %s", prefix, row[0])
		t.AppendRow(row)
	}
}
