package card

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage is the blob store holding normalized card images.
type Storage interface {
	// Save writes an image blob and returns the name it is stored under.
	Save(filename string, data []byte) (string, error)

	// Get reads an image blob by name.
	Get(path string) ([]byte, error)

	// Delete removes an image blob.
	Delete(path string) error
}

// LocalStorage implements Storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the storage directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes an image blob under the base directory.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	// Uploaded names never reach here raw, but keep the blob inside the base
	// directory regardless.
	filename = filepath.Base(filename)
	if err := os.WriteFile(filepath.Join(l.basePath, filename), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get reads an image blob.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, filepath.Base(path)))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes an image blob.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, filepath.Base(path))); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
