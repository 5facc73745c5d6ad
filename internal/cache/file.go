package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const fileSuffix = ".cache"

// FileTier persists one record per key in a directory. File names are the
// key fingerprint, so arbitrary keys never escape the directory.
type FileTier struct {
	dir string
}

// NewFileTier creates a file tier rooted at dir, creating the directory if
// it does not exist yet.
func NewFileTier(dir string) (*FileTier, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewCacheError("failed to create cache directory", false).WithError(err)
	}
	return &FileTier{dir: dir}, nil
}

// Dir returns the directory holding the records
func (f *FileTier) Dir() string {
	return f.dir
}

func (f *FileTier) path(key string) string {
	return filepath.Join(f.dir, Fingerprint(key)+fileSuffix)
}

// Get reads and decodes the record for key
func (f *FileTier) Get(_ context.Context, key string) (*Entry, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, NewCacheError("failed to read cache file", true).WithError(err)
	}

	entry, err := decodeEntry(key, data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set writes the record to a temporary file and renames it into place so
// readers never observe a partial record.
func (f *FileTier) Set(_ context.Context, entry *Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return NewCacheError("failed to encode cache entry", false).WithError(err)
	}

	// The directory may have been removed underneath us
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return NewCacheError("failed to create cache directory", false).WithError(err)
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return NewCacheError("failed to create cache file", true).WithError(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return NewCacheError("failed to write cache file", true).WithError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return NewCacheError("failed to write cache file", true).WithError(err)
	}
	if err := os.Rename(tmpName, f.path(entry.Key)); err != nil {
		os.Remove(tmpName)
		return NewCacheError("failed to write cache file", true).WithError(err)
	}
	return nil
}

// Delete removes the record for key
func (f *FileTier) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewCacheError("failed to delete cache file", true).WithError(err)
	}
	return nil
}

// Clear removes every record in the directory. A missing directory is
// treated as already empty.
func (f *FileTier) Clear(_ context.Context) error {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*"+fileSuffix))
	if err != nil {
		return NewCacheError("failed to list cache files", false).WithError(err)
	}

	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return NewCacheError("failed to clear cache files", true).WithError(errors.Join(errs...))
	}
	return nil
}

// Prune removes records created at or before cutoff. Unreadable records are
// removed too since no lookup could ever use them.
func (f *FileTier) Prune(_ context.Context, cutoff time.Time) (int, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*"+fileSuffix))
	if err != nil {
		return 0, NewCacheError("failed to list cache files", false).WithError(err)
	}

	removed := 0
	var errs []error
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		created, err := recordCreatedAt(data)
		if err == nil && created.After(cutoff) {
			continue
		}
		if err := os.Remove(m); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, NewCacheError("failed to prune cache files", true).WithError(errors.Join(errs...))
	}
	return removed, nil
}

// Close is a no-op for the file tier
func (f *FileTier) Close() error {
	return nil
}
