// Package config holds the build configuration of a binding generation run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config describes one generation run. Paths are used as given.
type Config struct {
	// OutDir receives bindgen-input.h, bindings.go and mod_bindings.go.
	OutDir string `yaml:"out_dir"`

	// MbedTLSSrc is the root of the mbed TLS source tree.
	MbedTLSSrc string `yaml:"mbedtls_src"`

	// ConfigH is the active configuration header, defined as
	// MBEDTLS_CONFIG_FILE while parsing.
	ConfigH string `yaml:"config_h"`

	// Package is the package clause of the generated files.
	Package string `yaml:"package"`

	// Backend selects the declaration parser: "clang" (the default) or
	// "regexp", which fails on declarations whose layout it cannot know.
	Backend string `yaml:"backend"`

	// Libraries are opened by the generated Load function.
	Libraries []string `yaml:"libraries"`

	// Headers are the enabled headers under include/mbedtls, in order.
	Headers []string `yaml:"headers"`
}

const (
	BackendRegexp = "regexp"
	BackendClang  = "clang"
)

// LoadFile loads and parses a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML data into a Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills in the optional fields. It is safe to call again
// after flags changed the configuration.
func (c *Config) ApplyDefaults() {
	if c.Package == "" {
		c.Package = "mbedtls"
	}
	if c.Backend == "" {
		c.Backend = BackendClang
	}
	if len(c.Libraries) == 0 {
		c.Libraries = []string{"mbedcrypto", "mbedx509", "mbedtls"}
	}
	if c.ConfigH == "" && c.MbedTLSSrc != "" {
		c.ConfigH = c.DefaultConfigH()
	}
}

// DefaultConfigH is the configuration header shipped with the source tree.
func (c *Config) DefaultConfigH() string {
	return filepath.Join(c.IncludeDir(), "mbedtls", "mbedtls_config.h")
}

// IncludeDir is the public header directory of the source tree.
func (c *Config) IncludeDir() string {
	return filepath.Join(c.MbedTLSSrc, "include")
}

func (c *Config) Validate() error {
	var errs []error

	if c.OutDir == "" {
		errs = append(errs, errors.New("out_dir is required"))
	}
	if c.MbedTLSSrc == "" {
		errs = append(errs, errors.New("mbedtls_src is required"))
	}
	if len(c.Headers) == 0 {
		errs = append(errs, errors.New("at least one header is required"))
	}
	switch c.Backend {
	case BackendRegexp, BackendClang:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	return errors.Join(errs...)
}
