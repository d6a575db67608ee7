package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/webqa/qa-runner/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SubsetsDirectory   = "subsets"
	RawGoEventsLog     = "raw_go_events.log"
	SummaryLog         = "summary.log"
	ReportJSON         = "report.json"
	LoadSummaryJSON    = "load-summary.json"
	LoadLog            = "load.log"
	coverageSuffix     = ".coverprofile"
)

// RunDir owns the artifacts of a single run under <baseDir>/testrun-<runID>
type RunDir struct {
	baseDir string
	dir     string
	runID   string

	mu        sync.Mutex
	rawEvents *os.File
}

// NewRunDir creates the run directory and its subsets directory
func NewRunDir(baseDir, runID string) (*RunDir, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	dir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(filepath.Join(dir, SubsetsDirectory), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	return &RunDir{baseDir: baseDir, dir: dir, runID: runID}, nil
}

// Path returns the run directory
func (d *RunDir) Path() string {
	return d.dir
}

// RunID returns the run this directory belongs to
func (d *RunDir) RunID() string {
	return d.runID
}

// File returns the path of a file directly under the run directory
func (d *RunDir) File(name string) string {
	return filepath.Join(d.dir, name)
}

// SubsetLogPath returns the log file of a subset
func (d *RunDir) SubsetLogPath(name types.SubsetName) string {
	return filepath.Join(d.dir, SubsetsDirectory, name.String()+".log")
}

// CoverageProfilePath returns where a subset's coverage profile is written
func (d *RunDir) CoverageProfilePath(name types.SubsetName) string {
	return filepath.Join(d.dir, SubsetsDirectory, name.String()+coverageSuffix)
}

// WriteSubsetLog writes the subset's output with ANSI escape sequences removed
func (d *RunDir) WriteSubsetLog(name types.SubsetName, output string) error {
	path := d.SubsetLogPath(name)
	if err := os.WriteFile(path, []byte(stripansi.Strip(output)), 0644); err != nil {
		return fmt.Errorf("failed to write subset log %s: %w", path, err)
	}
	return nil
}

// WriteFile writes a file directly under the run directory
func (d *RunDir) WriteFile(name string, data []byte) error {
	path := d.File(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// AppendRawEvents appends go test -json lines to raw_go_events.log.
// The file keeps the test2json format so it can be fed to tools like gotestsum.
func (d *RunDir) AppendRawEvents(r io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rawEvents == nil {
		f, err := os.OpenFile(d.File(RawGoEventsLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open raw events log: %w", err)
		}
		d.rawEvents = f
	}

	w := bufio.NewWriter(d.rawEvents)
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to write raw events: %w", err)
	}
	return w.Flush()
}

// Artifacts lists the files present in the run directory, relative to it
func (d *RunDir) Artifacts() ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Close releases the raw events file
func (d *RunDir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rawEvents == nil {
		return nil
	}
	err := d.rawEvents.Close()
	d.rawEvents = nil
	return err
}
