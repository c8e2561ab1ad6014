// Package fs implements core.Source over a local directory. It serves
// development setups and tests, and endpoints mounted into the host.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/labimport/internal/core"
)

// Source reads result files from one directory. Subdirectories are ignored.
type Source struct {
	dir string
}

// New returns a source for dir. The directory must exist.
func New(dir string) (*Source, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("source connect: empty directory")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source connect: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source connect: %s is not a directory", dir)
	}
	return &Source{dir: dir}, nil
}

func (s *Source) Driver() core.Driver { return core.DriverFS }

// List returns the regular files of the directory sorted by name. Hidden
// files are skipped; uploads in progress commonly use a dot prefix.
func (s *Source) List(ctx context.Context) ([]core.RemoteFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("source list: %w", err)
	}

	var files []core.RemoteFile
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, core.RemoteFile{
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, ctx.Err()
}

func (s *Source) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if err := s.contains(path); err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *Source) Delete(_ context.Context, path string) error {
	if err := s.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("source delete %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Source) Close() error { return nil }

// contains rejects paths outside the source directory.
func (s *Source) contains(path string) error {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.dir) {
		return fmt.Errorf("path %q is outside %s", path, s.dir)
	}
	return nil
}
