// Package store persists stencil rasters as PNG files.
package store

import (
	"fmt"
	"image"
	"image/png"
	"path/filepath"

	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	"github.com/spf13/afero"
)

// Store writes one PNG per name into a directory. Writes go to a temporary
// file first and are renamed into place, so readers never see a partial
// image and concurrent writers of distinct names do not interfere.
type Store struct {
	fs  afero.Fs
	dir string
	enc png.Encoder
}

// New returns a Store rooted at dir on fs. The directory is created on the
// first write.
func New(fs afero.Fs, dir string) *Store {
	return &Store{
		fs:  fs,
		dir: dir,
		enc: png.Encoder{CompressionLevel: png.BestCompression},
	}
}

// NewOS returns a Store on the local filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// Dir is the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// Path returns where name would be written.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".png")
}

// Save encodes img to {dir}/{name}.png, replacing any previous file.
// Failures are returned as *domain.PersistenceError.
func (s *Store) Save(name string, img image.Image) (string, error) {
	path := s.Path(name)
	if err := s.write(path, img); err != nil {
		return "", &domain.PersistenceError{Path: path, Err: err}
	}
	return path, nil
}

func (s *Store) write(path string, img image.Image) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, ".stencil-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := s.enc.Encode(tmp, img); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		s.fs.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
