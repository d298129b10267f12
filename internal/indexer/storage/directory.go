// Package storage provides the byte-stream directories that segments live
// in. The disk tier and the memory tier share one Directory interface; both
// are afero filesystems underneath.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/spf13/afero"

	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/errors"
)

// File is an open byte stream inside a Directory.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Seeker
	io.Closer
	Sync() error
	Name() string
}

// Directory is a flat namespace of named files.
type Directory interface {
	// Create truncates or creates name for writing.
	Create(name string) (File, error)
	Open(name string) (File, error)
	Exists(name string) (bool, error)
	Size(name string) (int64, error)
	Remove(name string) error
	// Rename atomically replaces newName with oldName.
	Rename(oldName, newName string) error
	List() ([]string, error)
	String() string
}

type aferoDirectory struct {
	fs    afero.Fs
	label string
}

// NewFSDirectory returns a Directory rooted at dir on the local filesystem,
// creating it when missing.
func NewFSDirectory(dir string) (Directory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &apperrors.StorageError{Op: "mkdir", Name: dir, Err: err}
	}
	return &aferoDirectory{
		fs:    afero.NewBasePathFs(afero.NewOsFs(), dir),
		label: "fs:" + dir,
	}, nil
}

// NewMemoryDirectory returns an empty in-memory Directory.
func NewMemoryDirectory() Directory {
	return &aferoDirectory{fs: afero.NewMemMapFs(), label: "memory"}
}

// NewDirectory wraps an arbitrary afero filesystem, rooted at "/".
func NewDirectory(fsys afero.Fs, label string) Directory {
	return &aferoDirectory{fs: fsys, label: label}
}

func (d *aferoDirectory) path(name string) string {
	return path.Join("/", name)
}

func (d *aferoDirectory) Create(name string) (File, error) {
	f, err := d.fs.OpenFile(d.path(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &apperrors.StorageError{Op: "create", Name: name, Err: err}
	}
	return f, nil
}

func (d *aferoDirectory) Open(name string) (File, error) {
	f, err := d.fs.Open(d.path(name))
	if err != nil {
		return nil, &apperrors.StorageError{Op: "open", Name: name, Err: err}
	}
	return f, nil
}

func (d *aferoDirectory) Exists(name string) (bool, error) {
	ok, err := afero.Exists(d.fs, d.path(name))
	if err != nil {
		return false, &apperrors.StorageError{Op: "stat", Name: name, Err: err}
	}
	return ok, nil
}

func (d *aferoDirectory) Size(name string) (int64, error) {
	info, err := d.fs.Stat(d.path(name))
	if err != nil {
		return 0, &apperrors.StorageError{Op: "stat", Name: name, Err: err}
	}
	return info.Size(), nil
}

func (d *aferoDirectory) Remove(name string) error {
	if err := d.fs.Remove(d.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &apperrors.StorageError{Op: "remove", Name: name, Err: err}
	}
	return nil
}

func (d *aferoDirectory) Rename(oldName, newName string) error {
	if err := d.fs.Rename(d.path(oldName), d.path(newName)); err != nil {
		return &apperrors.StorageError{Op: "rename", Name: oldName, Err: err}
	}
	return nil
}

func (d *aferoDirectory) List() ([]string, error) {
	infos, err := afero.ReadDir(d.fs, "/")
	if err != nil {
		return nil, &apperrors.StorageError{Op: "list", Name: d.label, Err: err}
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *aferoDirectory) String() string { return d.label }

// WriteFile writes data to name through a temporary file that is synced and
// then renamed over name, so readers see either the old or the new content.
func WriteFile(dir Directory, name string, data []byte) error {
	tmp := name + ".tmp"
	f, err := dir.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = dir.Remove(tmp)
		return &apperrors.StorageError{Op: "write", Name: tmp, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = dir.Remove(tmp)
		return &apperrors.StorageError{Op: "sync", Name: tmp, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = dir.Remove(tmp)
		return &apperrors.StorageError{Op: "close", Name: tmp, Err: err}
	}
	if err := dir.Rename(tmp, name); err != nil {
		_ = dir.Remove(tmp)
		return err
	}
	return nil
}

// ReadFile returns the whole content of name.
func ReadFile(dir Directory, name string) ([]byte, error) {
	f, err := dir.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &apperrors.StorageError{Op: "read", Name: name, Err: err}
	}
	return data, nil
}

// Copy copies name from src into dst, replacing any existing file
// atomically.
func Copy(src, dst Directory, name string) error {
	in, err := src.Open(name)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := name + ".tmp"
	out, err := dst.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = dst.Remove(tmp)
		return &apperrors.StorageError{Op: "copy", Name: name, Err: err}
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = dst.Remove(tmp)
		return &apperrors.StorageError{Op: "sync", Name: tmp, Err: err}
	}
	if err := out.Close(); err != nil {
		_ = dst.Remove(tmp)
		return &apperrors.StorageError{Op: "close", Name: tmp, Err: err}
	}
	if err := dst.Rename(tmp, name); err != nil {
		_ = dst.Remove(tmp)
		return fmt.Errorf("publishing %s in %s: %w", name, dst, err)
	}
	return nil
}
