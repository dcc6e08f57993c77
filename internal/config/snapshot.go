package config

// Snapshot is an immutable copy of the configuration taken once per batch.
// Later changes to the Config it was taken from are not visible through it.
type Snapshot struct {
	projects     []ProjectConfig
	evidenceRoot string
}

// NewSnapshot deep-copies cfg. A nil cfg yields an empty snapshot.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	if cfg == nil {
		return s
	}
	s.evidenceRoot = cfg.EvidenceDestinationRoot
	s.projects = make([]ProjectConfig, len(cfg.Projects))
	for i, p := range cfg.Projects {
		s.projects[i] = p.Clone()
	}
	return s
}

// Projects returns a copy of the projects in configuration order.
func (s *Snapshot) Projects() []ProjectConfig {
	out := make([]ProjectConfig, len(s.projects))
	for i, p := range s.projects {
		out[i] = p.Clone()
	}
	return out
}

// Project returns the first project whose path equals path.
func (s *Snapshot) Project(path string) (ProjectConfig, bool) {
	for _, p := range s.projects {
		if p.Path == path {
			return p.Clone(), true
		}
	}
	return ProjectConfig{}, false
}

// EvidenceDestinationRoot returns the archive root; "" means archiving is off.
func (s *Snapshot) EvidenceDestinationRoot() string {
	return s.evidenceRoot
}
