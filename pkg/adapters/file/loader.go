// Package file implements ports.SheetLoader over a directory tree.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aretw0/xrlt/pkg/domain"
)

// Extension is the file extension of requestsheets.
const Extension = ".xrl"

// Loader reads requestsheets below a base directory. Names are slash
// separated paths relative to that directory and cannot escape it.
type Loader struct {
	BasePath string
	fsys     fs.FS
}

// New creates a Loader rooted at basePath.
func New(basePath string) (*Loader, error) {
	if basePath == "" {
		basePath = "."
	}
	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet directory: %w", err)
	}
	return &Loader{BasePath: basePath, fsys: root.FS()}, nil
}

// FS exposes the directory, e.g. for serving static files next to the sheets.
func (l *Loader) FS() fs.FS {
	return l.fsys
}

// GetSheet reads the sheet stored under name.
func (l *Loader) GetSheet(name string) ([]byte, error) {
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	if !fs.ValidPath(clean) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSheetNotFound, name)
	}
	data, err := fs.ReadFile(l.fsys, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSheetNotFound, name)
		}
		return nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
	}
	return data, nil
}

// ListSheets returns every *.xrl file below the base directory.
func (l *Loader) ListSheets() ([]string, error) {
	var names []string
	err := fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, Extension) {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	sort.Strings(names)
	return names, nil
}
