package commands

import (
	"github.com/cotinet/cotinode/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Node          config.Config `mapstructure:",squash"`
	LogFilePrefix string        `mapstructure:"log-file-prefix"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Node: *config.NewDefaultConfig(),
	}
}
