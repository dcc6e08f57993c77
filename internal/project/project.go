package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AndreyAkinshin/gtm/internal/config"
)

// Project represents a loaded gtm workspace.
type Project struct {
	Root       string
	ConfigPath string
	Config     *config.Config
	Warnings   []string
}

// LoadProject finds and loads a workspace from the current directory.
func LoadProject() (*Project, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadProjectFrom(root)
}

// LoadProjectFrom loads the workspace rooted at root.
func LoadProjectFrom(root string) (*Project, error) {
	path, ok := ConfigFileIn(root)
	if !ok {
		return nil, ErrNoProjectRoot
	}
	return load(root, path)
}

// LoadFile loads an explicit config file. A file inside a .gtm directory is
// rooted at that directory's parent; any other file at its own directory.
func LoadFile(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	root := filepath.Dir(abs)
	if filepath.Base(root) == ConfigDirName {
		root = filepath.Dir(root)
	}
	return load(root, abs)
}

func load(root, path string) (*Project, error) {
	cfg, warnings, err := config.LoadAndValidate(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if env := os.Getenv(config.EvidenceRootEnvVar); env != "" {
		cfg.EvidenceDestinationRoot = env
	}
	config.ResolvePaths(cfg, root)
	if err := config.ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Missing directories are reported but kept, so the tree still shows them.
	for i, p := range cfg.Projects {
		if p.Path == "" {
			continue
		}
		if info, err := os.Stat(p.Path); err != nil || !info.IsDir() {
			warnings = append(warnings, fmt.Sprintf("projects[%d].path %q is not a directory", i, p.Path))
		}
	}

	return &Project{
		Root:       root,
		ConfigPath: path,
		Config:     cfg,
		Warnings:   warnings,
	}, nil
}
