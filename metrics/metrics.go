package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/webqa/qa-runner/types"
)

const (
	MetricsNamespace = "qa_runner"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	subsetRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "subset_runs_total",
		Help:      "Count of subset executions by result",
	}, []string{
		"subset",
		"result",
	})

	subsetDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "subset_duration_seconds",
		Help:      "Duration of the last execution of each subset",
	}, []string{
		"subset",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of individual tests by subset and result",
	}, []string{
		"subset",
		"result",
	})

	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Number of subsets by result in the last run",
	}, []string{
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordSubsetRun records one finished subset and the tests it ran
func RecordSubsetRun(subset types.SubsetName, result types.TestStatus, stats types.Stats, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordSubsetRun - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "subset_runs_total",
			"subset", subset,
			"result", result)
	}
	subsetRunsTotal.WithLabelValues(subset.String(), string(result)).Inc()
	subsetDuration.WithLabelValues(subset.String()).Set(duration.Seconds())
	testsTotal.WithLabelValues(subset.String(), string(types.TestStatusPass)).Add(float64(stats.Passed))
	testsTotal.WithLabelValues(subset.String(), string(types.TestStatusFail)).Add(float64(stats.Failed))
	testsTotal.WithLabelValues(subset.String(), string(types.TestStatusSkip)).Add(float64(stats.Skipped))
}

// RecordRun records the outcome of a whole run
func RecordRun(passed int, failed int, duration time.Duration) {
	runResults.WithLabelValues(string(types.TestStatusPass)).Set(float64(passed))
	runResults.WithLabelValues(string(types.TestStatusFail)).Set(float64(failed))
	runDuration.Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
