package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a configuration for errors and returns warnings for non-fatal issues.
// An empty project path or executable path is only a warning: the tree still
// shows the project and the problem surfaces when a leaf is run.
func Validate(cfg *Config) (warnings []string, err error) {
	seenPaths := make(map[string]int, len(cfg.Projects))

	for i, p := range cfg.Projects {
		field := fmt.Sprintf("projects[%d]", i)

		if p.Path == "" {
			warnings = append(warnings, fmt.Sprintf("%s.path is empty; its tests cannot be run", field))
		} else {
			if err := checkSegment(field+".path", p.Path); err != nil {
				return warnings, err
			}
			if prev, dup := seenPaths[p.Path]; dup {
				return warnings, &ValidationError{
					Field:   field + ".path",
					Message: fmt.Sprintf("duplicates projects[%d].path %q", prev, p.Path),
				}
			}
			seenPaths[p.Path] = i
		}

		runnerWarnings, err := validateRunners(field, p.Runners)
		warnings = append(warnings, runnerWarnings...)
		if err != nil {
			return warnings, err
		}

		for j, c := range p.EvidenceCollectors {
			if strings.TrimSpace(c) == "" {
				return warnings, &ValidationError{
					Field:   fmt.Sprintf("%s.evidence_collectors[%d]", field, j),
					Message: "must not be empty",
				}
			}
		}
	}

	return warnings, nil
}

// ValidateResolved rejects projects whose paths differ as written but name
// the same directory once ResolvePaths has made them absolute, such as "a"
// and "./a". Their leaf ids would collide.
func ValidateResolved(cfg *Config) error {
	seen := make(map[string]int, len(cfg.Projects))
	for i, p := range cfg.Projects {
		if p.Path == "" {
			continue
		}
		key := filepath.Clean(p.Path)
		if prev, dup := seen[key]; dup {
			return &ValidationError{
				Field:   fmt.Sprintf("projects[%d].path", i),
				Message: fmt.Sprintf("resolves to the same directory as projects[%d].path (%s)", prev, key),
			}
		}
		seen[key] = i
	}
	return nil
}

func validateRunners(field string, runners []RunnerSpec) ([]string, error) {
	var warnings []string
	seenKinds := make(map[RunnerKind]int, len(runners))

	for j, r := range runners {
		rf := fmt.Sprintf("%s.runners[%d]", field, j)

		if r.Kind == "" {
			return warnings, &ValidationError{Field: rf + ".type", Message: "is required"}
		}
		if !r.Kind.Valid() {
			return warnings, &ValidationError{
				Field:   rf + ".type",
				Message: fmt.Sprintf("unknown runner kind %q (valid: %s)", r.Kind, strings.Join(kindNames(), ", ")),
			}
		}
		if prev, dup := seenKinds[r.Kind]; dup {
			return warnings, &ValidationError{
				Field:   rf + ".type",
				Message: fmt.Sprintf("runner kind %q already declared by %s.runners[%d]", r.Kind, field, prev),
			}
		}
		seenKinds[r.Kind] = j

		if r.ExecutablePath == "" {
			warnings = append(warnings, fmt.Sprintf("%s.executable_path is empty; its tests cannot be run", rf))
		}

		for k, f := range r.TestFiles {
			ff := fmt.Sprintf("%s.test_files[%d]", rf, k)
			if strings.TrimSpace(f) == "" {
				return warnings, &ValidationError{Field: ff, Message: "must not be empty"}
			}
			if err := checkSegment(ff, f); err != nil {
				return warnings, err
			}
		}

		if r.SummaryScan && r.Kind != KindBehave {
			warnings = append(warnings, fmt.Sprintf("%s.summary_scan only applies to behave runners (ignored)", rf))
		}
	}

	return warnings, nil
}

// checkSegment rejects values that would break node id encoding.
func checkSegment(field, value string) error {
	if strings.Contains(value, ReservedSeparator) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must not contain the reserved separator %q", ReservedSeparator),
		}
	}
	return nil
}

func kindNames() []string {
	kinds := RunnerKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
