package types

import (
	"fmt"
	"time"
)

// SubsetName identifies one group of tests the runner can select
type SubsetName string

// Subset names, in the order the runner executes them
const (
	SubsetAPI         SubsetName = "api"
	SubsetDatabase    SubsetName = "database"
	SubsetUnit        SubsetName = "unit"
	SubsetIntegration SubsetName = "integration"
	SubsetSecurity    SubsetName = "security"
)

// SubsetOrder is the fixed execution order. Selections are always run in this order.
var SubsetOrder = []SubsetName{
	SubsetAPI,
	SubsetDatabase,
	SubsetUnit,
	SubsetIntegration,
	SubsetSecurity,
}

// String implements the Stringer interface for SubsetName
func (n SubsetName) String() string {
	return string(n)
}

// Index returns the position of the subset in SubsetOrder, or -1 if unknown
func (n SubsetName) Index() int {
	for i, name := range SubsetOrder {
		if name == n {
			return i
		}
	}
	return -1
}

// ParseSubsetName validates a subset name
func ParseSubsetName(s string) (SubsetName, error) {
	n := SubsetName(s)
	if n.Index() < 0 {
		return "", fmt.Errorf("unknown subset %q (valid: %v)", s, SubsetOrder)
	}
	return n, nil
}

// SubsetKind describes how a subset is executed
type SubsetKind string

const (
	// SubsetKindGoTest runs Go packages with `go test -json`
	SubsetKindGoTest SubsetKind = "gotest"
	// SubsetKindCommand runs external tools, e.g. static analysis scanners
	SubsetKindCommand SubsetKind = "command"
)

// CommandConfig is a single external command of a command subset
type CommandConfig struct {
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Args        []string `yaml:"args" json:"args"`
}

// String returns the command line as a single string
func (c CommandConfig) String() string {
	return fmt.Sprintf("%v", c.Args)
}

// SubsetDefinition describes what a subset runs
type SubsetDefinition struct {
	Name        SubsetName      `yaml:"-" json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        SubsetKind      `yaml:"kind,omitempty" json:"kind"`
	Packages    []string        `yaml:"packages,omitempty" json:"packages,omitempty"`
	Commands    []CommandConfig `yaml:"commands,omitempty" json:"commands,omitempty"`
	Coverage    bool            `yaml:"coverage,omitempty" json:"coverage,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SubsetOverride is one entry of the subsets override file. Unset fields keep the built-in value.
type SubsetOverride struct {
	Description string          `yaml:"description,omitempty"`
	Kind        SubsetKind      `yaml:"kind,omitempty"`
	Packages    []string        `yaml:"packages,omitempty"`
	Commands    []CommandConfig `yaml:"commands,omitempty"`
	Coverage    *bool           `yaml:"coverage,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty"`
}

// SubsetsConfig is the on-disk shape of the subsets override file
type SubsetsConfig struct {
	Subsets map[string]SubsetOverride `yaml:"subsets"`
}
