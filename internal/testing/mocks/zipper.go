package mocks

import (
	"sync"
)

// Zip records one Zipper call.
type Zip struct {
	SrcDir  string
	ZipPath string
	// Files is the content of SrcDir at the time of the call, when the zipper
	// was created with a FileSystem to snapshot.
	Files []string
}

// Zipper records archive requests instead of writing them.
type Zipper struct {
	mu   sync.Mutex
	zips []Zip
	fs   *FileSystem
	err  error
}

// NewZipper creates a recording zipper. fs may be nil.
func NewZipper(fs *FileSystem) *Zipper {
	return &Zipper{fs: fs}
}

// WithError makes every Zip call fail.
func (m *Zipper) WithError(err error) *Zipper {
	m.err = err
	return m
}

func (m *Zipper) Zip(srcDir, zipPath string) error {
	z := Zip{SrcDir: srcDir, ZipPath: zipPath}
	if m.fs != nil {
		z.Files = m.fs.Files(srcDir)
	}
	m.mu.Lock()
	m.zips = append(m.zips, z)
	m.mu.Unlock()
	return m.err
}

// Zips returns the recorded calls in order.
func (m *Zipper) Zips() []Zip {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Zip, len(m.zips))
	copy(result, m.zips)
	return result
}
