package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultName is used when an upload carries no usable filename.
const DefaultName = "temp.jpg"

// Area is a scratch directory holding per-request working files.
type Area struct {
	dir string
}

// NewArea prepares dir for staging, creating it when missing.
func NewArea(dir string) (*Area, error) {
	if dir == "" {
		return nil, errors.New("staging directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &Area{dir: dir}, nil
}

// Dir returns the scratch directory.
func (a *Area) Dir() string {
	return a.dir
}

// File is one staged copy of an uploaded image.
type File struct {
	Path string
	Size int64
}

// Stage copies src into a new working file named after token and the
// original filename. The file is removed again if the copy fails.
func (a *Area) Stage(token, originalName string, src io.Reader) (*File, error) {
	path := filepath.Join(a.dir, token+"-"+SafeName(originalName))

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	n, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("copy upload to %s: %w", filepath.Base(path), err)
	}
	return &File{Path: path, Size: n}, nil
}

// Remove deletes the working file. Removing a file that is already gone
// is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// SafeName reduces an untrusted upload filename to a plain base name,
// falling back to DefaultName.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	switch name {
	case "", ".", "..", "/":
		return DefaultName
	}
	return name
}
