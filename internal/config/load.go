package config

import (
	"bytes"
	"io"
	"os"

	"github.com/jmgilman/go/errors"
	"gopkg.in/yaml.v3"
)

// Load reads, validates and normalizes the configuration at path. An
// empty path yields the defaults, which use the simulated chip.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidConfig, "read config"),
			"path", path,
		)
	}

	return Parse(data)
}

// Parse decodes, validates and normalizes YAML. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "decode config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)

	return &cfg, nil
}
