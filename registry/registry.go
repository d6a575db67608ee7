package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/webqa/qa-runner/testlist"
	"github.com/webqa/qa-runner/types"
)

// ErrMisconfigured marks a subset that cannot be located or has nothing to run
var ErrMisconfigured = errors.New("misconfigured subset")

// Registry holds the subset definitions the runner can dispatch to
type Registry struct {
	config  Config
	subsets map[types.SubsetName]types.SubsetDefinition
	mu      sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
	// SubsetsFile optionally overrides the built-in definitions. Empty means defaults only.
	SubsetsFile string
}

// DefaultSubsets returns the built-in subset definitions
func DefaultSubsets() map[types.SubsetName]types.SubsetDefinition {
	return map[types.SubsetName]types.SubsetDefinition{
		types.SubsetAPI: {
			Name:        types.SubsetAPI,
			Description: "API Black Box Tests",
			Kind:        types.SubsetKindGoTest,
			Packages:    []string{"./suites/api/..."},
		},
		types.SubsetDatabase: {
			Name:        types.SubsetDatabase,
			Description: "Database Tests with Generated Fixtures",
			Kind:        types.SubsetKindGoTest,
			Packages:    []string{"./suites/database/..."},
		},
		types.SubsetUnit: {
			Name:        types.SubsetUnit,
			Description: "Unit Tests with Coverage",
			Kind:        types.SubsetKindGoTest,
			Packages:    []string{"./suites/unit/..."},
			Coverage:    true,
		},
		types.SubsetIntegration: {
			Name:        types.SubsetIntegration,
			Description: "Integration Tests",
			Kind:        types.SubsetKindGoTest,
			Packages:    []string{"./suites/integration/..."},
		},
		types.SubsetSecurity: {
			Name:        types.SubsetSecurity,
			Description: "Security Scan",
			Kind:        types.SubsetKindCommand,
			Commands: []types.CommandConfig{
				{Description: "Static Analysis Scan", Args: []string{"gosec", "-fmt", "text", "./..."}},
				{Description: "Dependency Vulnerability Check", Args: []string{"govulncheck", "./..."}},
			},
		},
	}
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config:  cfg,
		subsets: DefaultSubsets(),
	}

	if cfg.SubsetsFile != "" {
		if err := r.loadOverrides(cfg.SubsetsFile); err != nil {
			return nil, fmt.Errorf("failed to load subsets file: %w", err)
		}
	}

	cfg.Log.Debug("Registry loaded", "len(subsets)", len(r.subsets), "subsetsFile", cfg.SubsetsFile)

	return r, nil
}

// loadOverrides merges the subsets file into the defaults
func (r *Registry) loadOverrides(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg types.SubsetsConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for rawName, override := range cfg.Subsets {
		name, err := types.ParseSubsetName(rawName)
		if err != nil {
			return fmt.Errorf("invalid subsets file: %w", err)
		}
		r.subsets[name] = mergeDefinition(r.subsets[name], override)
		r.config.Log.Debug("Subset overridden", "subset", name)
	}
	return nil
}

// mergeDefinition overlays the set fields of override on base.
// Without an explicit kind, packages imply gotest and commands imply command.
func mergeDefinition(base types.SubsetDefinition, override types.SubsetOverride) types.SubsetDefinition {
	if override.Description != "" {
		base.Description = override.Description
	}
	if len(override.Packages) > 0 {
		base.Kind = types.SubsetKindGoTest
		base.Packages = override.Packages
		base.Commands = nil
	}
	if len(override.Commands) > 0 {
		base.Kind = types.SubsetKindCommand
		base.Commands = override.Commands
		base.Packages = nil
	}
	if override.Kind != "" {
		base.Kind = override.Kind
	}
	if override.Coverage != nil {
		base.Coverage = *override.Coverage
	}
	if override.Timeout != 0 {
		base.Timeout = override.Timeout
	}
	return base
}

// Get returns the definition of a single subset
func (r *Registry) Get(name types.SubsetName) (types.SubsetDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.subsets[name]
	return def, ok
}

// Resolve returns the definitions for the selected subsets, deduplicated and in the fixed execution order
func (r *Registry) Resolve(names []types.SubsetName) ([]types.SubsetDefinition, error) {
	selected := make(map[types.SubsetName]bool, len(names))
	for _, name := range names {
		if name.Index() < 0 {
			return nil, fmt.Errorf("%w: unknown subset %q", ErrMisconfigured, name)
		}
		selected[name] = true
	}

	var defs []types.SubsetDefinition
	for _, name := range types.SubsetOrder {
		if !selected[name] {
			continue
		}
		def, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: subset %q is not defined", ErrMisconfigured, name)
		}
		def.Name = name
		defs = append(defs, def)
	}
	return defs, nil
}

// Validate checks that every definition can be located under workDir and has something to run
func Validate(workDir string, defs []types.SubsetDefinition) error {
	var errs []error
	for _, def := range defs {
		if err := validateDefinition(workDir, def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateDefinition(workDir string, def types.SubsetDefinition) error {
	switch def.Kind {
	case types.SubsetKindGoTest:
		if len(def.Packages) == 0 {
			return fmt.Errorf("%w: subset %s has no packages", ErrMisconfigured, def.Name)
		}
		for _, pkg := range def.Packages {
			dir, err := testlist.PackageDir(pkg, workDir)
			if err != nil {
				return fmt.Errorf("%w: subset %s: %v", ErrMisconfigured, def.Name, err)
			}
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				return fmt.Errorf("%w: subset %s: package %s not found at %s", ErrMisconfigured, def.Name, pkg, dir)
			}
			found, err := testlist.FindGoPackages(pkg, workDir)
			if err != nil {
				return fmt.Errorf("%w: subset %s: %v", ErrMisconfigured, def.Name, err)
			}
			if len(found) == 0 {
				return fmt.Errorf("%w: subset %s: package %s matched no Go packages", ErrMisconfigured, def.Name, pkg)
			}
		}
	case types.SubsetKindCommand:
		if len(def.Commands) == 0 {
			return fmt.Errorf("%w: subset %s has no commands", ErrMisconfigured, def.Name)
		}
		for i, cmd := range def.Commands {
			if len(cmd.Args) == 0 {
				return fmt.Errorf("%w: subset %s: command %d is empty", ErrMisconfigured, def.Name, i)
			}
		}
	default:
		return fmt.Errorf("%w: subset %s has unknown kind %q", ErrMisconfigured, def.Name, def.Kind)
	}
	return nil
}
