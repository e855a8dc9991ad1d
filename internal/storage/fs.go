package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/artselect/internal/checksum"
	"github.com/starford/artselect/internal/models"
)

const (
	bitmapPrefix = "Canvas-"
	bitmapExt    = ".jpg"
	tempPattern  = ".artselect-tmp-*"
)

// BitmapName returns the file name for identifier id.
func BitmapName(id int64) string {
	return bitmapPrefix + strconv.FormatInt(id, 10) + bitmapExt
}

// ParseBitmapName extracts the identifier from a file name produced by
// BitmapName. Any directory part is ignored.
func ParseBitmapName(name string) (int64, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, bitmapPrefix) || !strings.HasSuffix(base, bitmapExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, bitmapPrefix), bitmapExt)
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != digits {
		return 0, false
	}
	return id, true
}

// FS implements Provider backed by a single flat directory.
type FS struct {
	root string // absolute path to the bitmap directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute bitmap directory.
func (f *FS) Root() string {
	return f.root
}

// pathFor resolves the file for id and rejects anything that would land
// outside the root.
func (f *FS) pathFor(id int64) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("storage: invalid bitmap id %d", id)
	}
	abs := filepath.Join(f.root, BitmapName(id))
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", abs)
	}
	return abs, nil
}

// List returns metadata for every bitmap file in the root directory.
func (f *FS) List() ([]models.BitmapMetadata, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.BitmapMetadata
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ParseBitmapName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", e.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", e.Name(), err)
		}
		out = append(out, models.BitmapMetadata{
			ID:        id,
			Name:      e.Name(),
			Checksum:  checksum.Sum(data),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Load returns the raw bytes of a bitmap file.
func (f *FS) Load(id int64) ([]byte, error) {
	abs, err := f.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: load %s: %w", BitmapName(id), err)
	}
	return data, nil
}

// Save atomically writes data: tmp file → fsync → rename.
func (f *FS) Save(id int64, data []byte) error {
	abs, err := f.pathFor(id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, tempPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a bitmap file.
func (f *FS) Delete(id int64) error {
	abs, err := f.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", BitmapName(id), err)
	}
	return nil
}

// Exists reports whether the bitmap file for id is present.
func (f *FS) Exists(id int64) bool {
	abs, err := f.pathFor(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}
