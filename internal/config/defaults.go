package config

import "strings"

// Default configuration values.
const (
	// ZipsDirName is the directory under the evidence root that receives archives.
	ZipsDirName = "zips"
	// EvidenceRootEnvVar overrides evidence_destination_root when set.
	EvidenceRootEnvVar = "GTM_EVIDENCE_ROOT"
)

// applyDefaults fills in default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	for i := range cfg.Projects {
		applyProjectDefaults(&cfg.Projects[i])
	}
}

func applyProjectDefaults(p *ProjectConfig) {
	p.Path = strings.TrimSpace(p.Path)
	for i := range p.Runners {
		r := &p.Runners[i]
		// Aliases such as "python" collapse to the canonical kind. Unknown
		// values are kept so Validate can report them by name.
		if k, ok := ParseRunnerKind(string(r.Kind)); ok {
			r.Kind = k
		}
		r.ExecutablePath = strings.TrimSpace(r.ExecutablePath)
	}
}
