package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/webqa/qa-runner/types"
)

// formatDuration formats a duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	case types.TestStatusError:
		return "✗ error"
	default:
		return "✗ fail"
	}
}

// extractKeyErrorMessage keeps the first line of an error for table display
func extractKeyErrorMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if i := strings.Index(msg, "\n"); i != -1 {
		msg = msg[:i]
	}
	const maxLen = 120
	if len(msg) > maxLen {
		msg = msg[:maxLen-3] + "..."
	}
	return msg
}

// failingTestLine picks the most useful line of a failed test's output
func failingTestLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "=== ") || strings.HasPrefix(trimmed, "--- FAIL") {
			continue
		}
		return extractKeyErrorMessage(trimmed)
	}
	return ""
}
