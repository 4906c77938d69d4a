package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ExperimentPath string // hcl file or directory
	ConfigDir      string // temp destination for resolved config files

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	DryRun          bool
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ExperimentPath == "" {
		return nil, errors.New("ExperimentPath is a required configuration field and cannot be empty")
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = "./temp"
	}

	return &cfg, nil
}
