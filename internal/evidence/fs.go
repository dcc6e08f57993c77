package evidence

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// FileSystem is the filesystem boundary the archiver works through.
type FileSystem interface {
	Exists(path string) bool
	RemoveAll(path string) error
	MkdirAll(path string) error
	ReadDir(path string) ([]fs.DirEntry, error)
	CopyFile(src, dst string) error
}

// OSFileSystem implements FileSystem on the local disk.
type OSFileSystem struct{}

// Exists reports whether path exists. Permission errors count as existing so
// the copy step reports them instead of a misleading "not found".
func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// RemoveAll removes path and everything below it.
func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// MkdirAll creates path and any missing parents.
func (OSFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

// ReadDir lists path sorted by name.
func (OSFileSystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

// CopyFile copies one regular file, keeping its permission bits.
func (OSFileSystem) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
