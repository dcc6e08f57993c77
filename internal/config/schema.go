// Package config provides configuration loading and validation for gtm projects.
package config

import (
	"strings"
)

// ReservedSeparator joins the segments of a tree node id. It must not appear
// inside project paths, runner kinds or test file identifiers.
const ReservedSeparator = "|"

// Config represents a complete gtm configuration file.
type Config struct {
	Projects                []ProjectConfig `json:"projects"`
	EvidenceDestinationRoot string          `json:"evidence_destination_root,omitempty"`
}

// ProjectConfig describes one monitored codebase.
type ProjectConfig struct {
	Name               string       `json:"name,omitempty"`
	Path               string       `json:"path"`
	Runners            []RunnerSpec `json:"runners,omitempty"`
	EvidenceCollectors []string     `json:"evidence_collectors,omitempty"`
}

// RunnerSpec is one test-execution strategy within a project.
type RunnerSpec struct {
	Kind                   RunnerKind        `json:"type"`
	ExecutablePath         string            `json:"executable_path,omitempty"`
	UseProjectRelativePath bool              `json:"use_project_relative_path,omitempty"`
	TestFiles              []string          `json:"test_files,omitempty"`
	Args                   []string          `json:"args,omitempty"`
	Env                    map[string]string `json:"env,omitempty"`
	SummaryScan            bool              `json:"summary_scan,omitempty"` // behave only
}

// RunnerKind identifies a runner family. The set is closed: each kind has
// exactly one output parser.
type RunnerKind string

const (
	// KindUnittest runs a python unittest-style file and reads the final stderr line.
	KindUnittest RunnerKind = "unittest"
	// KindBehave runs a behave feature and reads the feature count summary.
	KindBehave RunnerKind = "behave"
)

// kindAliases maps accepted configuration spellings to canonical kinds.
var kindAliases = map[string]RunnerKind{
	"unittest":        KindUnittest,
	"python":          KindUnittest,
	"py":              KindUnittest,
	"python-unittest": KindUnittest,
	"behave":          KindBehave,
}

// ParseRunnerKind returns the canonical kind for a configuration value.
func ParseRunnerKind(s string) (RunnerKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// RunnerKinds returns all canonical runner kinds in declaration order.
func RunnerKinds() []RunnerKind {
	return []RunnerKind{KindUnittest, KindBehave}
}

// Valid reports whether k is a canonical runner kind.
func (k RunnerKind) Valid() bool {
	return k == KindUnittest || k == KindBehave
}

func (k RunnerKind) String() string { return string(k) }

// FolderName returns the last element of the project path. Both slash styles
// are treated as separators so Windows paths behave the same on every host.
func (p ProjectConfig) FolderName() string {
	trimmed := strings.TrimRight(p.Path, `/\`)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Label returns the display name of the project.
func (p ProjectConfig) Label() string {
	if p.Name != "" {
		return p.Name
	}
	if name := p.FolderName(); name != "" {
		return name
	}
	return p.Path
}

// Runner returns the runner of the given kind.
func (p ProjectConfig) Runner(kind RunnerKind) (RunnerSpec, bool) {
	for _, r := range p.Runners {
		if r.Kind == kind {
			return r, true
		}
	}
	return RunnerSpec{}, false
}

// Clone returns a deep copy of the project.
func (p ProjectConfig) Clone() ProjectConfig {
	c := p
	c.EvidenceCollectors = cloneStrings(p.EvidenceCollectors)
	if p.Runners != nil {
		c.Runners = make([]RunnerSpec, len(p.Runners))
		for i, r := range p.Runners {
			c.Runners[i] = r.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of the runner spec.
func (r RunnerSpec) Clone() RunnerSpec {
	c := r
	c.TestFiles = cloneStrings(r.TestFiles)
	c.Args = cloneStrings(r.Args)
	if r.Env != nil {
		c.Env = make(map[string]string, len(r.Env))
		for k, v := range r.Env {
			c.Env[k] = v
		}
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
