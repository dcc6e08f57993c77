// Package evidence copies evidence directories produced by a test run into a
// destination root and packs each capture into a timestamped zip archive.
package evidence

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AndreyAkinshin/gtm/internal/config"
	gtmerrors "github.com/AndreyAkinshin/gtm/internal/errors"
	"github.com/AndreyAkinshin/gtm/internal/output"
)

// Distinct causes of an archiving failure. Both are reachable with errors.Is.
var (
	ErrCopy = errors.New("copy failed")
	ErrZip  = errors.New("zip failed")
)

// Archiver copies and zips project evidence. It is safe for concurrent use;
// archives for projects sharing a folder name are serialised.
type Archiver struct {
	root     string
	fs       FileSystem
	zipper   Zipper
	notifier output.Notifier
	now      func() time.Time

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	issued map[string]bool
}

// NewArchiver creates an archiver writing below root. An empty root disables it.
func NewArchiver(root string, notifier output.Notifier) *Archiver {
	return &Archiver{
		root:     root,
		fs:       OSFileSystem{},
		zipper:   DeflateZipper{},
		notifier: notifier,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		issued:   make(map[string]bool),
	}
}

// SetFileSystem replaces the filesystem boundary.
func (a *Archiver) SetFileSystem(fs FileSystem) {
	a.fs = fs
}

// SetZipper replaces the archive boundary.
func (a *Archiver) SetZipper(z Zipper) {
	a.zipper = z
}

// SetClock replaces the timestamp source used in archive names.
func (a *Archiver) SetClock(now func() time.Time) {
	a.now = now
}

// Enabled reports whether a destination root is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.root != ""
}

// Archive captures every evidence collector of project. A missing source is a
// warning and that collector is skipped. The first copy or zip failure aborts
// the remaining collectors and is returned after being reported.
func (a *Archiver) Archive(project config.ProjectConfig) error {
	if !a.Enabled() || len(project.EvidenceCollectors) == 0 {
		return nil
	}

	folder := project.FolderName()
	lock := a.lockFor(folder)
	lock.Lock()
	defer lock.Unlock()

	dest := filepath.Join(a.root, folder)
	for _, collector := range project.EvidenceCollectors {
		src := collector
		if !filepath.IsAbs(src) {
			src = filepath.Join(project.Path, collector)
		}

		if !a.fs.Exists(src) {
			a.warn("Evidence source not found: %s", src)
			continue
		}

		if err := a.replace(src, dest); err != nil {
			e := gtmerrors.Archive(fmt.Sprintf("Failed to copy evidence files: %v", err), fmt.Errorf("%w: %w", ErrCopy, err))
			a.fail("%s", e.Message)
			return e
		}

		zipPath := a.zipPath(folder)
		if err := a.zip(dest, zipPath); err != nil {
			e := gtmerrors.Archive(fmt.Sprintf("Failed to zip folder %s: %v", dest, err), fmt.Errorf("%w: %w", ErrZip, err))
			a.fail("%s", e.Message)
			return e
		}
		a.info("Evidence zipped: %s", zipPath)
	}
	return nil
}

// ZipName returns "<folder>_<timestamp>.zip" with ':' and '.' in the ISO 8601
// UTC timestamp replaced by '-'.
func ZipName(folder string, t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return folder + "_" + ts + ".zip"
}

// zipPath returns a zip path no earlier capture of this archiver, or any file
// already on disk, uses. Captures within the same millisecond get a numeric
// suffix: app_<ts>_1.zip, app_<ts>_2.zip.
func (a *Archiver) zipPath(folder string) string {
	name := ZipName(folder, a.now())
	base := strings.TrimSuffix(name, ".zip")

	a.mu.Lock()
	defer a.mu.Unlock()
	p := filepath.Join(a.root, config.ZipsDirName, name)
	for n := 1; a.issued[p] || a.fs.Exists(p); n++ {
		p = filepath.Join(a.root, config.ZipsDirName, fmt.Sprintf("%s_%d.zip", base, n))
	}
	a.issued[p] = true
	return p
}

// replace fully removes dest, recreates it and copies src into it.
func (a *Archiver) replace(src, dest string) error {
	if src == "" || dest == "" {
		return errors.New("both source and destination are required")
	}
	if a.fs.Exists(dest) {
		if err := a.fs.RemoveAll(dest); err != nil {
			return err
		}
	}
	if err := a.fs.MkdirAll(dest); err != nil {
		return err
	}
	return a.copyTree(src, dest)
}

func (a *Archiver) copyTree(src, dest string) error {
	entries, err := a.fs.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to copy contents from %s: %w", src, err)
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		destPath := filepath.Join(dest, entry.Name())
		if entry.IsDir() {
			if err := a.fs.MkdirAll(destPath); err != nil {
				return err
			}
			if err := a.copyTree(srcPath, destPath); err != nil {
				return err
			}
			continue
		}
		if err := a.fs.CopyFile(srcPath, destPath); err != nil {
			return fmt.Errorf("failed to copy contents from %s: %w", src, err)
		}
	}
	return nil
}

func (a *Archiver) zip(dest, zipPath string) error {
	if err := a.fs.MkdirAll(filepath.Dir(zipPath)); err != nil {
		return err
	}
	return a.zipper.Zip(dest, zipPath)
}

func (a *Archiver) lockFor(folder string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[folder]
	if !ok {
		l = &sync.Mutex{}
		a.locks[folder] = l
	}
	return l
}

func (a *Archiver) info(format string, args ...interface{}) {
	if a.notifier != nil {
		a.notifier.Info(format, args...)
	}
}

func (a *Archiver) warn(format string, args ...interface{}) {
	if a.notifier != nil {
		a.notifier.Warning(format, args...)
	}
}

func (a *Archiver) fail(format string, args ...interface{}) {
	if a.notifier != nil {
		a.notifier.Error(format, args...)
	}
}
