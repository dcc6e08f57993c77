package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// LoadWithWarnings decodes JSON config data and returns any unknown field warnings.
func LoadWithWarnings(data []byte) (*Config, []string, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	warnings := detectUnknownFields(data)

	return &cfg, warnings, nil
}

// detectUnknownFields compares raw JSON with known struct fields at the root,
// project and runner levels.
func detectUnknownFields(data []byte) []string {
	var warnings []string

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return []string{"internal: failed to re-parse config for unknown field detection"}
	}

	knownTopLevel := getJSONFields(reflect.TypeOf(Config{}))
	for _, key := range sortedKeys(raw) {
		if key == "$schema" {
			continue // $schema is explicitly allowed and ignored
		}
		if !knownTopLevel[key] {
			warnings = append(warnings, fmt.Sprintf("unknown field %q at root level (ignored)", key))
		}
	}

	if projectsRaw, ok := raw["projects"]; ok {
		warnings = append(warnings, checkProjectsUnknownFields(projectsRaw)...)
	}

	return warnings
}

func checkProjectsUnknownFields(data json.RawMessage) []string {
	var warnings []string

	var projects []map[string]json.RawMessage
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil
	}

	knownProjectFields := getJSONFields(reflect.TypeOf(ProjectConfig{}))
	knownRunnerFields := getJSONFields(reflect.TypeOf(RunnerSpec{}))

	for i, project := range projects {
		for _, key := range sortedKeys(project) {
			if !knownProjectFields[key] {
				warnings = append(warnings, fmt.Sprintf("unknown field %q in projects[%d] (ignored)", key, i))
			}
		}

		runnersRaw, ok := project["runners"]
		if !ok {
			continue
		}
		var runners []map[string]json.RawMessage
		if err := json.Unmarshal(runnersRaw, &runners); err != nil {
			continue
		}
		for j, runner := range runners {
			for _, key := range sortedKeys(runner) {
				if !knownRunnerFields[key] {
					warnings = append(warnings, fmt.Sprintf("unknown field %q in projects[%d].runners[%d] (ignored)", key, i, j))
				}
			}
		}
	}

	return warnings
}

// getJSONFields returns a map of known JSON field names for a struct type.
func getJSONFields(t reflect.Type) map[string]bool {
	fields := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			fields[name] = true
		}
	}
	return fields
}

// sortedKeys keeps warning order stable across runs.
func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
