package verify

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webqa/qa-runner/registry"
	"github.com/webqa/qa-runner/types"
)

const sampleTest = `package sample

import "testing"

func TestSample(t *testing.T) {}
`

// setupWorkDir creates a module with a test in every default go-test subset
func setupWorkDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/sample\n"), 0644))
	for _, suite := range []string{"api", "database", "unit", "integration"} {
		pkgDir := filepath.Join(dir, "suites", suite)
		require.NoError(t, os.MkdirAll(pkgDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "sample_test.go"), []byte(sampleTest), 0644))
	}
	return dir
}

// fakeGo writes a script answering "version"
func fakeGo(t *testing.T, exitCode string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "go")
	script := "#!/bin/sh\necho 'go version go1.26.0 linux/amd64'\nexit " + exitCode + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newVerifier(t *testing.T, workDir, goBinary, apiURL string, lookPath func(string) (string, error)) *Verifier {
	t.Helper()
	logger := log.NewLogger(log.DiscardHandler())
	reg, err := registry.NewRegistry(registry.Config{Log: logger})
	require.NoError(t, err)
	v, err := New(Config{
		WorkDir:  workDir,
		GoBinary: goBinary,
		APIURL:   apiURL,
		Registry: reg,
		Log:      logger,
		LookPath: lookPath,
	})
	require.NoError(t, err)
	return v
}

func findCheck(t *testing.T, report *Report, name string) *Check {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return nil
}

func found(file string) (string, error) { return "/usr/bin/" + file, nil }

func TestRun_AllPass(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	v := newVerifier(t, setupWorkDir(t), fakeGo(t, "0"), api.URL, found)
	report := v.Run(context.Background())

	assert.True(t, report.OK())
	assert.Equal(t, len(report.Checks), report.Passed())

	goCheck := findCheck(t, report, "Go toolchain")
	assert.Contains(t, goCheck.Detail, "go1.26.0")
	assert.Equal(t, "1 tests in ./suites/api/...", findCheck(t, report, "Subset api").Detail)
	assert.Equal(t, types.TestStatusPass, findCheck(t, report, "Scanner gosec").Status)
	assert.Equal(t, types.TestStatusPass, findCheck(t, report, "Scanner govulncheck").Status)
	assert.Equal(t, types.TestStatusPass, findCheck(t, report, "SQLite").Status)
	assert.Equal(t, types.TestStatusPass, findCheck(t, report, "API reachable").Status)

	// Order: toolchain, scanners, test directories, sqlite, api
	assert.Equal(t, "Go toolchain", report.Checks[0].Name)
	assert.Equal(t, "API reachable", report.Checks[len(report.Checks)-1].Name)
}

func TestRun_MissingScannerOnlyWarns(t *testing.T) {
	lookPath := func(file string) (string, error) {
		if file == "gosec" {
			return "", errors.New("not found")
		}
		return found(file)
	}
	v := newVerifier(t, setupWorkDir(t), fakeGo(t, "0"), "", lookPath)
	report := v.Run(context.Background())

	scanner := findCheck(t, report, "Scanner gosec")
	assert.Equal(t, types.TestStatusSkip, scanner.Status)
	assert.False(t, scanner.Required)
	assert.True(t, report.OK(), "a missing scanner does not fail verification")
	assert.Less(t, report.Passed(), len(report.Checks))
}

func TestRun_RequiredFailures(t *testing.T) {
	workDir := setupWorkDir(t)
	require.NoError(t, os.Remove(filepath.Join(workDir, "suites", "unit", "sample_test.go")))
	require.NoError(t, os.RemoveAll(filepath.Join(workDir, "suites", "integration")))

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer api.Close()

	v := newVerifier(t, workDir, fakeGo(t, "1"), api.URL, found)
	report := v.Run(context.Background())

	assert.False(t, report.OK())
	assert.Equal(t, types.TestStatusFail, findCheck(t, report, "Go toolchain").Status)
	assert.Contains(t, findCheck(t, report, "Subset unit").Detail, "no tests found")
	assert.Contains(t, findCheck(t, report, "Subset integration").Detail, "no such file or directory")
	assert.Equal(t, types.TestStatusPass, findCheck(t, report, "Subset api").Status)
	assert.Contains(t, findCheck(t, report, "API reachable").Detail, "503")
}

func TestRun_APIUnreachable(t *testing.T) {
	api := httptest.NewServer(http.NotFoundHandler())
	url := api.URL
	api.Close()

	v := newVerifier(t, setupWorkDir(t), fakeGo(t, "0"), url, found)
	report := v.Run(context.Background())

	assert.Equal(t, types.TestStatusFail, findCheck(t, report, "API reachable").Status)
	assert.False(t, report.OK())
}

func TestReportPrint(t *testing.T) {
	report := &Report{Checks: []*Check{
		{Name: "Go toolchain", Required: true, Status: types.TestStatusPass, Detail: "go1.26.0"},
		{Name: "Scanner gosec", Status: types.TestStatusSkip, Detail: "not found on PATH"},
		{Name: "SQLite", Required: true, Status: types.TestStatusFail, Detail: "boom"},
	}}

	var buf bytes.Buffer
	require.NoError(t, report.Print(&buf, false))
	out := buf.String()

	assert.Contains(t, out, "Environment Checks")
	assert.Contains(t, out, "✓ ok")
	assert.Contains(t, out, "! warn")
	assert.Contains(t, out, "✗ fail")
	assert.Contains(t, out, "Passed: 1/3 checks")
	assert.False(t, report.OK())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	reg, err := registry.NewRegistry(registry.Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)
	v, err := New(Config{WorkDir: t.TempDir(), Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, "go", v.config.GoBinary)
	assert.Equal(t, DefaultTimeout, v.config.Timeout)
}
