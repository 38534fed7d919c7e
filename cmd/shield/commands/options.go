package commands

import (
	"errors"
	"io/fs"

	"github.com/storyforge/shield/internal/config"
	"github.com/storyforge/shield/internal/logging"
)

// Options carries the global flags and logger shared by all commands.
type Options struct {
	ConfigFile string
	Debug      bool
	Logger     *logging.Logger
}

// LoadConfig reads the configuration file. A missing file at the
// default path is not an error: the service starts with defaults.
func (o *Options) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigFile)
	if err != nil && errors.Is(err, fs.ErrNotExist) && o.ConfigFile == "shield.yaml" {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if o.Debug {
		cfg.Debug = true
	}
	return cfg, nil
}
