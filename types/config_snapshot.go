package types

import "time"

// EffectiveConfigSnapshot represents the effective runtime configuration recorded in the report.
type EffectiveConfigSnapshot struct {
	Selected    []SubsetName  `json:"selected"`
	WorkDir     string        `json:"workDir"`
	ReportDir   string        `json:"reportDir"`
	SubsetsFile string        `json:"subsetsFile,omitempty"`
	GoBinary    string        `json:"goBinary"`
	Timeout     time.Duration `json:"timeout"`
}

// PassthroughEnvVars are passed to child processes unchanged and recorded in the report verbatim.
// They are consumed by third-party tools, never interpreted here.
var PassthroughEnvVars = []string{
	"CI",
	"PLAYWRIGHT_BROWSERS_PATH",
}
