package evidence

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Zipper is the archive boundary: it packs a directory tree into one file.
type Zipper interface {
	Zip(srcDir, zipPath string) error
}

// DeflateZipper writes deflate-compressed zip archives.
type DeflateZipper struct{}

// Zip writes the contents of srcDir into a new archive at zipPath. Entry names
// are relative to srcDir and always use forward slashes.
func (DeflateZipper) Zip(srcDir, zipPath string) (err error) {
	if srcDir == "" || zipPath == "" {
		return fmt.Errorf("both source folder and zip path are required")
	}
	if _, statErr := os.Stat(srcDir); statErr != nil {
		return fmt.Errorf("source folder does not exist: %s", srcDir)
	}

	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(zipPath)
		}
	}()

	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return addEntry(zw, path, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	return zw.Close()
}

func addEntry(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	if d.IsDir() {
		header.Name += "/"
		_, err := zw.CreateHeader(header)
		return err
	}
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
