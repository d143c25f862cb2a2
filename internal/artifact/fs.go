package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/spf13/afero"
)

// FileStore keeps the artifact at a fixed path on a filesystem. Each Write
// replaces the previous artifact atomically: the records are written to a
// temporary file in the same directory and renamed over the target.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore stores artifacts at path on the OS filesystem.
func NewFileStore(path string) *FileStore {
	return NewFileStoreFs(afero.NewOsFs(), path)
}

// NewFileStoreFs stores artifacts at path on the given filesystem.
func NewFileStoreFs(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Write replaces the artifact with records and returns its path. The run ID
// is not part of the location.
func (s *FileStore) Write(_ context.Context, _ string, records []domain.FlatRecord) (string, error) {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if err := Encode(tmp, records); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp artifact: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		return "", fmt.Errorf("rename artifact into place: %w", err)
	}
	committed = true
	return s.path, nil
}

// Read loads the artifact at location. Any path is accepted, not only the
// store's own.
func (s *FileStore) Read(_ context.Context, location string) ([]domain.FlatRecord, error) {
	if strings.TrimSpace(location) == "" {
		return nil, domain.ErrInvalidArtifact
	}
	f, err := s.fs.Open(location)
	if err != nil {
		return nil, fmt.Errorf("%w: open artifact %s: %w", domain.ErrSourceUnavailable, location, err)
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, location, err)
	}
	return records, nil
}

// Remove deletes the artifact at location. A missing file is not an error.
func (s *FileStore) Remove(_ context.Context, location string) error {
	if err := s.fs.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", location, err)
	}
	return nil
}
