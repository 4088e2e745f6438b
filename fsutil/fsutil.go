// Package fsutil abstracts the file operations the disk cache performs, so
// tests can observe or fail them.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FS is the set of file operations the disk cache needs.
type FS interface {
	// OpenRead opens the file at path for reading.
	OpenRead(path string) (io.ReadCloser, error)
	// Delete removes the file at path.
	Delete(path string) error
	// WriteAtomic creates a fresh uniquely-named file in dir, runs write on
	// it, and closes it durably. The returned path is the file's permanent
	// address. On write failure the file is removed and not returned.
	WriteAtomic(dir string, write func(w io.Writer) error) (string, error)
	// DirFiles lists the regular files directly inside dir.
	DirFiles(dir string) ([]string, error)
	// DirCreate creates dir and any missing parents.
	DirCreate(dir string) error
	// DirRecreate removes dir with its contents and creates it empty.
	DirRecreate(dir string) error
}

// OS is the FS backed by the operating system.
type OS struct{}

var _ FS = OS{}

func (OS) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (OS) Delete(path string) error {
	return os.Remove(path)
}

func (OS) WriteAtomic(dir string, write func(w io.Writer) error) (string, error) {
	f, err := createUnique(dir)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err = write(f); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return "", fmt.Errorf("%w (cannot remove partial file: %s)", err, rmErr)
		}
		return "", err
	}
	return path, nil
}

// createUnique loops on random-name collisions until a fresh file is made.
func createUnique(dir string) (*os.File, error) {
	for {
		path := filepath.Join(dir, uuid.NewString())
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
	}
}

func (OS) DirFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if ent.Type().IsRegular() {
			files = append(files, filepath.Join(dir, ent.Name()))
		}
	}
	return files, nil
}

func (OS) DirCreate(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func (OS) DirRecreate(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
