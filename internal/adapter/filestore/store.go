package filestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// Store writes converted attachments to the output directories and keeps
// intermediate weather files in a staging directory.
type Store struct {
	dirs    map[domain.Destination]string
	staging string
}

// New creates a Store, creating every directory that does not exist yet.
func New(energyHistoryDir, weatherDir, stagingDir string) (*Store, error) {
	s := &Store{
		dirs: map[domain.Destination]string{
			domain.DestinationEnergyHistory: energyHistoryDir,
			domain.DestinationWeather:       weatherDir,
		},
		staging: stagingDir,
	}
	for _, dir := range []string{energyHistoryDir, weatherDir, stagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &domain.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return s, nil
}

// Save writes data under name in the destination directory, replacing any
// existing file, and returns the written path.
func (s *Store) Save(dest domain.Destination, name string, data []byte) (string, error) {
	dir, err := s.dir(dest)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Stage writes data under name in the staging directory.
func (s *Store) Stage(name string, data []byte) error {
	return writeFile(s.stagingPath(name), data)
}

// Promote moves a staged file into the destination directory and returns its
// new path.
func (s *Store) Promote(name string, dest domain.Destination) (string, error) {
	dir, err := s.dir(dest)
	if err != nil {
		return "", err
	}
	src := s.stagingPath(name)
	dst := filepath.Join(dir, filepath.Base(name))

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", &domain.IOError{Op: "remove", Path: src, Err: err}
	}
	return dst, nil
}

// Discard removes a staged file. A missing file is not an error.
func (s *Store) Discard(name string) error {
	path := s.stagingPath(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &domain.IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// StagingDir returns the staging directory.
func (s *Store) StagingDir() string { return s.staging }

func (s *Store) dir(dest domain.Destination) (string, error) {
	dir, ok := s.dirs[dest]
	if !ok {
		return "", fmt.Errorf("unknown destination %s", dest)
	}
	return dir, nil
}

func (s *Store) stagingPath(name string) string {
	return filepath.Join(s.staging, filepath.Base(name))
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &domain.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &domain.IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &domain.IOError{Op: "create", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &domain.IOError{Op: "copy", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &domain.IOError{Op: "close", Path: dst, Err: err}
	}
	return nil
}
