package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the sections that cannot be defaulted.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, sc := range c.Sources {
		if sc.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" && (sc.ApiURL == nil || *sc.ApiURL == "") {
			return fmt.Errorf("sources[%d] (%s) needs a topic or an apiUrl", i, sc.ID)
		}
	}

	if c.Units != "" {
		if _, err := ParseUnit(c.Units); err != nil {
			return fmt.Errorf("units: %w", err)
		}
	}

	switch c.Storage.Driver {
	case "", "json", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be json or sqlite, got %q", c.Storage.Driver)
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}

	if _, err := DefaultStyle().WithOverrides(c.Style); err != nil {
		return err
	}
	return nil
}

// BuildStyle returns DefaultStyle with the config's overrides applied.
func (c *Config) BuildStyle() (Style, error) {
	return DefaultStyle().WithOverrides(c.Style)
}

// Unit returns the configured measurement unit, meters when unset.
func (c *Config) Unit() Unit {
	u, err := ParseUnit(c.Units)
	if err != nil {
		return UnitMeters
	}
	return u
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
