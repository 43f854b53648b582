package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// UploadedFile describes one recording in the upload directory
type UploadedFile struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
}

// UploadStore keeps uploaded recordings on the local filesystem
type UploadStore struct {
	dir string
}

// NewUploadStore creates the upload directory if needed
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Remove deletes a stored file by name. A missing file is not an error.
func (s *UploadStore) Remove(filename string) error {
	name := SanitizeFilename(filename)
	if name == "" {
		return fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}

// Save writes r to the upload directory under the client's filename and
// returns the stored path and byte count. An existing file with the same
// name is replaced.
func (s *UploadStore) Save(filename string, r io.Reader) (string, int64, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return "", 0, fmt.Errorf("invalid filename %q", filename)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to write upload: %w", err)
	}

	dst := filepath.Join(s.dir, name)
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to store upload: %w", err)
	}
	return dst, size, nil
}

// List returns the stored files matching ext, newest first
func (s *UploadStore) List(ext string) ([]UploadedFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	files := make([]UploadedFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, UploadedFile{
			Filename: e.Name(),
			Size:     info.Size(),
			Created:  info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Created.After(files[j].Created)
	})
	return files, nil
}

// SanitizeFilename strips directories and characters that are unsafe in a
// stored filename
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	if len(name) > 200 {
		ext := filepath.Ext(name)
		name = name[:200-len(ext)] + ext
	}
	return name
}
