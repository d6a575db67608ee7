// Package verify checks that the environment can run the backend test subsets.
package verify

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	_ "modernc.org/sqlite"

	"github.com/webqa/qa-runner/registry"
	"github.com/webqa/qa-runner/testlist"
	"github.com/webqa/qa-runner/types"
)

// DefaultTimeout bounds each check
const DefaultTimeout = 5 * time.Second

// Check is the outcome of one environment check
type Check struct {
	Name     string           `json:"name"`
	Required bool             `json:"required"`
	Status   types.TestStatus `json:"status"`
	Detail   string           `json:"detail,omitempty"`
}

// Report holds the checks in execution order
type Report struct {
	Checks []*Check `json:"checks"`
}

// Passed returns the number of passed checks
func (r *Report) Passed() int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == types.TestStatusPass {
			n++
		}
	}
	return n
}

// OK reports whether every required check passed
func (r *Report) OK() bool {
	for _, c := range r.Checks {
		if c.Required && c.Status != types.TestStatusPass {
			return false
		}
	}
	return true
}

// Tally returns "Passed: X/N checks"
func (r *Report) Tally() string {
	return fmt.Sprintf("Passed: %d/%d checks", r.Passed(), len(r.Checks))
}

// Print renders the checks as a table followed by the tally
func (r *Report) Print(w io.Writer, colored bool) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Environment Checks")
	t.AppendHeader(table.Row{"Check", "Required", "Status", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Detail", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, c := range r.Checks {
		required := "no"
		if c.Required {
			required = "yes"
		}
		t.AppendRow(table.Row{c.Name, required, statusString(c), c.Detail})
	}
	if colored {
		if r.OK() {
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		} else {
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		}
	}
	t.Render()
	_, err := fmt.Fprintln(w, r.Tally())
	return err
}

func statusString(c *Check) string {
	switch {
	case c.Status == types.TestStatusPass:
		return "✓ ok"
	case !c.Required:
		return "! warn"
	default:
		return "✗ fail"
	}
}

// Config configures a Verifier
type Config struct {
	WorkDir  string
	GoBinary string
	APIURL   string
	Timeout  time.Duration
	Registry *registry.Registry
	Log      log.Logger

	// Overridable for tests
	LookPath   func(file string) (string, error)
	HTTPClient *http.Client
}

// Verifier runs the environment checks
type Verifier struct {
	config Config
}

// New creates a Verifier
func New(cfg Config) (*Verifier, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = "go"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Verifier{config: cfg}, nil
}

// Run executes every check in order. A failed check never stops the next one.
func (v *Verifier) Run(ctx context.Context) *Report {
	report := &Report{}
	add := func(c *Check) {
		v.config.Log.Info("Environment check", "check", c.Name, "status", c.Status, "detail", c.Detail)
		report.Checks = append(report.Checks, c)
	}

	add(v.checkGoToolchain(ctx))
	for _, c := range v.checkScanners() {
		add(c)
	}
	for _, c := range v.checkTestDirectories() {
		add(c)
	}
	add(v.checkSQLite(ctx))
	if v.config.APIURL != "" {
		add(v.checkAPI(ctx))
	}
	return report
}

func (v *Verifier) checkGoToolchain(ctx context.Context) *Check {
	check := &Check{Name: "Go toolchain", Required: true}

	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, v.config.GoBinary, "version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		check.Status = types.TestStatusFail
		check.Detail = fmt.Sprintf("%s version failed: %v", v.config.GoBinary, err)
		return check
	}
	check.Status = types.TestStatusPass
	check.Detail = strings.TrimSpace(out.String())
	return check
}

// checkScanners looks up the binaries of every command subset. Missing scanners only warn.
func (v *Verifier) checkScanners() []*Check {
	defs, err := v.config.Registry.Resolve(types.SubsetOrder)
	if err != nil {
		return []*Check{{Name: "Scanners", Status: types.TestStatusFail, Detail: err.Error()}}
	}

	var checks []*Check
	seen := make(map[string]bool)
	for _, def := range defs {
		if def.Kind != types.SubsetKindCommand {
			continue
		}
		for _, cmd := range def.Commands {
			if len(cmd.Args) == 0 || seen[cmd.Args[0]] {
				continue
			}
			seen[cmd.Args[0]] = true

			check := &Check{Name: "Scanner " + cmd.Args[0]}
			if path, err := v.config.LookPath(cmd.Args[0]); err != nil {
				check.Status = types.TestStatusSkip
				check.Detail = fmt.Sprintf("not found on PATH; the %s subset will fail", def.Name)
			} else {
				check.Status = types.TestStatusPass
				check.Detail = path
			}
			checks = append(checks, check)
		}
	}
	return checks
}

// checkTestDirectories confirms each go-test subset has packages containing tests
func (v *Verifier) checkTestDirectories() []*Check {
	defs, err := v.config.Registry.Resolve(types.SubsetOrder)
	if err != nil {
		return []*Check{{Name: "Test directories", Required: true, Status: types.TestStatusFail, Detail: err.Error()}}
	}

	var checks []*Check
	for _, def := range defs {
		if def.Kind != types.SubsetKindGoTest {
			continue
		}
		check := &Check{Name: fmt.Sprintf("Subset %s", def.Name), Required: true}
		checks = append(checks, check)

		total := 0
		var problems []string
		for _, pkg := range def.Packages {
			tests, err := testlist.FindTestFunctions(pkg, v.config.WorkDir)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", pkg, err))
				continue
			}
			if len(tests) == 0 {
				problems = append(problems, fmt.Sprintf("%s: no tests found", pkg))
			}
			total += len(tests)
		}

		if len(problems) > 0 {
			check.Status = types.TestStatusFail
			check.Detail = strings.Join(problems, "; ")
			continue
		}
		check.Status = types.TestStatusPass
		check.Detail = fmt.Sprintf("%d tests in %s", total, strings.Join(def.Packages, ", "))
	}
	return checks
}

func (v *Verifier) checkSQLite(ctx context.Context) *Check {
	check := &Check{Name: "SQLite", Required: true}

	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	if err := sqliteRoundTrip(ctx); err != nil {
		check.Status = types.TestStatusFail
		check.Detail = err.Error()
		return check
	}
	check.Status = types.TestStatusPass
	check.Detail = "in-memory create, insert and select"
	return check
}

func sqliteRoundTrip(ctx context.Context) error {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	// Each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE check_table (id INTEGER PRIMARY KEY, name TEXT, email TEXT)`); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	res, err := db.ExecContext(ctx, `INSERT INTO check_table (name, email) VALUES (?, ?)`, "Test User", "test@example.com")
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read row id: %w", err)
	}

	var name string
	if err := db.QueryRowContext(ctx, `SELECT name FROM check_table WHERE id = ?`, id).Scan(&name); err != nil {
		return fmt.Errorf("failed to query row: %w", err)
	}
	if name != "Test User" {
		return fmt.Errorf("read back %q, expected %q", name, "Test User")
	}
	return nil
}

func (v *Verifier) checkAPI(ctx context.Context) *Check {
	check := &Check{Name: "API reachable", Required: true}

	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.APIURL, nil)
	if err != nil {
		check.Status = types.TestStatusFail
		check.Detail = fmt.Sprintf("invalid url: %v", err)
		return check
	}
	resp, err := v.config.HTTPClient.Do(req)
	if err != nil {
		check.Status = types.TestStatusFail
		check.Detail = err.Error()
		return check
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		check.Status = types.TestStatusFail
		check.Detail = fmt.Sprintf("%s returned %s", v.config.APIURL, resp.Status)
		return check
	}
	check.Status = types.TestStatusPass
	check.Detail = fmt.Sprintf("%s returned %s", v.config.APIURL, resp.Status)
	return check
}
