package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore copies objects into a local directory, typically one served by a
// static file server or synced elsewhere. It is also the backend used for
// staging runs.
type FileStore struct {
	root    string
	baseURL string
}

func NewFileStore(root, baseURL string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("file store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("file store root: %w", err)
	}
	return &FileStore{root: abs, baseURL: strings.TrimSpace(baseURL)}, nil
}

func (s *FileStore) Put(_ context.Context, name string, content []byte) (string, error) {
	path, err := s.pathFor(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	key, _ := validName(name)
	if s.baseURL == "" {
		return fileURL(path), nil
	}
	return JoinURL(s.baseURL, key), nil
}

func (s *FileStore) pathFor(name string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("file store is not configured")
	}
	key, err := validName(name)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid object name: %s", name)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func fileURL(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}
