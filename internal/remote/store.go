// Package remote implements the "store object" protocol against the
// supported content stores.
package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
)

// Store uploads one object and returns its public location. Implementations
// must treat repeated uploads of the same name as safe overwrites.
type Store interface {
	Put(ctx context.Context, name string, content []byte) (string, error)
}

// ErrEmptyLocation is returned when a store accepted an object but did not
// report where it lives.
var ErrEmptyLocation = errors.New("remote store returned no location")

// StatusError is a non-success response from an HTTP-based store.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("upload failed: %s", e.Status)
	}
	return fmt.Sprintf("upload failed: status %d", e.Code)
}

// JoinURL appends an object name to a base URL.
func JoinURL(base, name string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	name = strings.TrimLeft(name, "/")
	if base == "" {
		return name
	}
	return base + "/" + name
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func validName(name string) (string, error) {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if name == "" {
		return "", fmt.Errorf("object name is required")
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid object name: %s", name)
		}
	}
	return name, nil
}
