package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/AndreyAkinshin/gtm/internal/schema"
)

// Format is a configuration file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the format from the file extension. Unknown extensions
// are read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	jsonData, err := ToJSON(data, FormatForPath(path))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults reads a config file and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadAndValidate reads a config file, checks it against the embedded schema,
// applies defaults, validates, and returns warnings.
func LoadAndValidate(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, FormatForPath(path))
}

// Parse decodes configuration bytes in the given format, then validates them
// the same way LoadAndValidate does.
func Parse(data []byte, format Format) (*Config, []string, error) {
	jsonData, err := ToJSON(data, format)
	if err != nil {
		return nil, nil, err
	}

	if err := schema.ValidateConfig(jsonData); err != nil {
		return nil, nil, &ValidationError{Field: "config", Message: err.Error()}
	}

	cfg, unknownWarnings, err := LoadWithWarnings(jsonData)
	if err != nil {
		return nil, nil, err
	}

	applyDefaults(cfg)

	validationWarnings, err := Validate(cfg)

	allWarnings := make([]string, 0, len(unknownWarnings)+len(validationWarnings))
	allWarnings = append(allWarnings, unknownWarnings...)
	allWarnings = append(allWarnings, validationWarnings...)

	if err != nil {
		return nil, allWarnings, err
	}

	return cfg, allWarnings, nil
}

// ToJSON normalises a YAML or TOML document to JSON so that schema checks and
// unknown-field detection only deal with one encoding.
func ToJSON(data []byte, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML config: %w", err)
		}
		return out, nil
	case FormatTOML:
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert TOML config: %w", err)
		}
		return out, nil
	default:
		return bytes.TrimSpace(data), nil
	}
}

// ResolvePaths makes relative project paths and the evidence root absolute
// against baseDir. Empty paths are left empty.
func ResolvePaths(cfg *Config, baseDir string) {
	for i := range cfg.Projects {
		p := cfg.Projects[i].Path
		if p != "" && !isAbs(p) {
			cfg.Projects[i].Path = filepath.Join(baseDir, p)
		}
	}
	if root := cfg.EvidenceDestinationRoot; root != "" && !isAbs(root) {
		cfg.EvidenceDestinationRoot = filepath.Join(baseDir, root)
	}
}

// isAbs also accepts Windows drive paths when running elsewhere, since configs
// are often shared between machines.
func isAbs(p string) bool {
	if filepath.IsAbs(p) {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}
