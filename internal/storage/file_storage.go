package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStorage manages the durable library directory that finished
// imports are placed into.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a FileStorage over the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Dir returns the library directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

// Place moves a finished temp file into the library under filename and
// returns the final path. A plain rename is tried first; when the temp
// dir lives on a different filesystem the file is copied alongside the
// destination and renamed into place, so a partially written artifact
// is never visible under its final name.
func (s *FileStorage) Place(srcPath, filename string) (string, error) {
	dstPath := filepath.Join(s.dir, filename)

	if err := os.Rename(srcPath, dstPath); err == nil {
		return dstPath, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".placing-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("open source file: %w", err)
	}

	_, copyErr := io.Copy(tmp, src)
	src.Close()
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("copy into library: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("flush staging file: %w", closeErr)
	}

	if err := os.Rename(tmp.Name(), dstPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename into library: %w", err)
	}

	os.Remove(srcPath)
	return dstPath, nil
}

// GetFileSize returns the size of a library file in bytes.
func (s *FileStorage) GetFileSize(filename string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.dir, filename))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
