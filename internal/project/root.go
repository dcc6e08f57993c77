// Package project finds and loads the gtm configuration of a workspace.
package project

import (
	"errors"
	"os"
	"path/filepath"
)

// ConfigDirName is the name of the gtm configuration directory.
const ConfigDirName = ".gtm"

// ConfigFileNames lists the accepted configuration files in lookup order.
var ConfigFileNames = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// ErrNoProjectRoot is returned when no .gtm/config.* file is found.
var ErrNoProjectRoot = errors.New(".gtm/config.{json,yaml,yml,toml} not found: not a gtm workspace (or any parent up to the root)")

// FindRoot walks up from the current working directory until it finds a config file.
func FindRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindRootFrom(cwd)
}

// FindRootFrom walks up from the given directory until it finds a config file.
func FindRootFrom(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if _, ok := ConfigFileIn(dir); ok {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", ErrNoProjectRoot
		}
		dir = parent
	}
}

// ConfigFileIn returns the first config file present under dir/.gtm.
func ConfigFileIn(dir string) (string, bool) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, ConfigDirName, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}
