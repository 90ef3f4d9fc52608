package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"howett.net/plist"
)

// LoadFile applies settings from a YAML, JSON or plist file on top of c.
// Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	case ".plist":
		var settings map[string]interface{}
		if err := plist.NewDecoder(bytes.NewReader(data)).Decode(&settings); err != nil {
			return fmt.Errorf("failed to parse plist config %s: %w", path, err)
		}
		if err := c.applySettingsMap(settings); err != nil {
			return fmt.Errorf("invalid plist config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q (use .yaml, .yml, .json or .plist)", filepath.Ext(path))
	}
	return nil
}
