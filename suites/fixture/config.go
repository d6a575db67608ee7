package fixture

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment of the go test process
type Config struct {
	// APIBaseURL is the API exercised by the live black box tests
	APIBaseURL string `env:"QA_API_BASE_URL" envDefault:"https://jsonplaceholder.typicode.com"`
	// LiveAPI enables tests that reach APIBaseURL over the network
	LiveAPI bool `env:"QA_LIVE_API" envDefault:"false"`
	// DBPath is the SQLite database used by the store. Empty means a private in-memory database.
	DBPath string `env:"QA_DB_PATH"`
}

// LoadConfig parses Config from the environment
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
