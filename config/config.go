package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

const (
	// DefaultHost is the control-channel host used when none is configured.
	DefaultHost = "localhost"
	// DefaultPort is the control-channel port used when none is configured.
	DefaultPort = 9119
)

// The global, read-only config variable.
var (
	cfg  *Config
	once sync.Once
)

// LoadConfig reads the config file, parses it, and initializes the global cfg variable.
// An empty configFile loads defaults only. It ensures that the configuration is set
// only once.
func LoadConfig(configFile string) (*Config, error) {
	var err error
	once.Do(func() {
		viper.SetDefault("host", DefaultHost)
		viper.SetDefault("port", DefaultPort)
		viper.SetDefault("debug", false)

		if configFile != "" {
			viper.SetConfigFile(configFile)
			viper.SetConfigType("yaml")

			// Read in the config file
			if err = viper.ReadInConfig(); err != nil {
				err = fmt.Errorf("error reading config file: %w", err)
				return
			}
		}

		// Unmarshal the config into the Config struct
		var configuration Config
		if err = viper.Unmarshal(&configuration); err != nil {
			err = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}

		// Validation
		if configuration.Port <= 0 || configuration.Port > 65535 {
			err = fmt.Errorf("port %d is out of range", configuration.Port)
			return
		}
		if configuration.Host == "" {
			configuration.Host = DefaultHost
		}

		cfg = &configuration
	})

	if err != nil {
		return nil, err
	}

	if cfg == nil {
		return nil, errors.New("configuration was not set")
	}

	return cfg, nil
}

// GetConfig returns the loaded configuration.
// It panics if the configuration has not been set.
func GetConfig() *Config {
	if cfg == nil {
		panic("Config has not been set! Call LoadConfig first.")
	}
	return cfg
}

// Default returns a Config populated with the documented defaults, without
// touching the global config. Library callers that do not use a config file
// can start from this.
func Default() Config {
	return Config{
		Host:  DefaultHost,
		Port:  DefaultPort,
		Debug: false,
	}
}
