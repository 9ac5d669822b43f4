// Package assets stores the uploaded project PDFs on disk, keyed by the
// file name recorded on the catalog row.
package assets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("asset not found")

type Store struct {
	Dir string
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) Path(fileName string) string {
	return filepath.Join(s.Dir, filepath.Base(fileName))
}

// Save writes the uploaded file, replacing any previous content.
func (s *Store) Save(fileName string, r io.Reader) error {
	f, err := os.Create(s.Path(fileName))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	return f.Close()
}

// Open returns the asset bytes for delivery. A missing file maps to
// ErrNotFound so fulfillment can surface a retryable asset error.
func (s *Store) Open(fileName string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) Remove(fileName string) error {
	err := os.Remove(s.Path(fileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
