package mocks

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSystem is an in-memory filesystem that records every call.
// Paths are cleaned with forward slashes, so tests should build them with
// path.Join rather than filepath.Join.
type FileSystem struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]string
	calls []string

	// CopyErr, when set, is returned by CopyFile for any source path
	// containing the key.
	CopyErr map[string]error
}

// NewFileSystem creates an empty in-memory filesystem.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		dirs:    make(map[string]bool),
		files:   make(map[string]string),
		CopyErr: make(map[string]error),
	}
}

// WithFile adds a file and its parent directories.
func (m *FileSystem) WithFile(p, content string) *FileSystem {
	p = clean(p)
	m.files[p] = content
	for d := path.Dir(p); d != "." && d != "/" && !m.dirs[d]; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return m
}

// WithDir adds an empty directory and its parents.
func (m *FileSystem) WithDir(p string) *FileSystem {
	for d := clean(p); d != "." && d != "/"; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return m
}

// WithCopyError makes CopyFile fail for sources containing substr.
func (m *FileSystem) WithCopyError(substr string, err error) *FileSystem {
	m.CopyErr[substr] = err
	return m
}

func (m *FileSystem) record(format string, args ...interface{}) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *FileSystem) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.record("Exists %s", p)
	_, isFile := m.files[p]
	return isFile || m.dirs[p]
}

func (m *FileSystem) RemoveAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.record("RemoveAll %s", p)
	for k := range m.files {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.files, k)
		}
	}
	for k := range m.dirs {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.dirs, k)
		}
	}
	return nil
}

func (m *FileSystem) MkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.record("MkdirAll %s", p)
	for d := p; d != "." && d != "/"; d = path.Dir(d) {
		m.dirs[d] = true
	}
	return nil
}

func (m *FileSystem) ReadDir(p string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	m.record("ReadDir %s", p)
	if !m.dirs[p] {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	return m.children(p), nil
}

func (m *FileSystem) CopyFile(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst = clean(src), clean(dst)
	m.record("CopyFile %s %s", src, dst)
	for substr, err := range m.CopyErr {
		if strings.Contains(src, substr) {
			return err
		}
	}
	content, ok := m.files[src]
	if !ok {
		return &fs.PathError{Op: "open", Path: src, Err: fs.ErrNotExist}
	}
	if !m.dirs[path.Dir(dst)] {
		return &fs.PathError{Op: "open", Path: dst, Err: fs.ErrNotExist}
	}
	m.files[dst] = content
	return nil
}

// Test inspection methods

// Calls returns the recorded operations in order, e.g. "MkdirAll /root/app".
func (m *FileSystem) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.calls))
	copy(result, m.calls)
	return result
}

// Files returns the sorted file paths below dir.
func (m *FileSystem) Files(dir string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = clean(dir)
	var out []string
	for k := range m.files {
		if strings.HasPrefix(k, dir+"/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Content returns a file's content.
func (m *FileSystem) Content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[clean(p)]
	return c, ok
}

func (m *FileSystem) children(dir string) []fs.DirEntry {
	seen := make(map[string]bool)
	var entries []fs.DirEntry
	add := func(name string, isDir bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		entries = append(entries, dirEntry{name: name, dir: isDir})
	}
	for k := range m.dirs {
		if path.Dir(k) == dir {
			add(path.Base(k), true)
		}
	}
	for k := range m.files {
		if path.Dir(k) == dir {
			add(path.Base(k), false)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries
}

func clean(p string) string {
	return path.Clean(strings.ReplaceAll(p, `\`, "/"))
}

type dirEntry struct {
	name string
	dir  bool
}

func (e dirEntry) Name() string { return e.name }
func (e dirEntry) IsDir() bool  { return e.dir }

func (e dirEntry) Type() fs.FileMode {
	if e.dir {
		return fs.ModeDir
	}
	return 0
}

func (e dirEntry) Info() (fs.FileInfo, error) {
	return fileInfo(e), nil
}

type fileInfo dirEntry

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return 0 }
func (i fileInfo) Mode() fs.FileMode  { return dirEntry(i).Type() }
func (i fileInfo) ModTime() time.Time { return time.Time{} }
func (i fileInfo) IsDir() bool        { return i.dir }
func (i fileInfo) Sys() interface{}   { return nil }
