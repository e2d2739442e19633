package remote

import (
	"fmt"
	"strings"
)

const (
	KindHTTP = "http"
	KindS3   = "s3"
	KindFile = "file"
)

// Options selects and configures one backend.
type Options struct {
	Kind string
	HTTP HTTPConfig
	S3   S3Config
	File FileOptions
}

type FileOptions struct {
	Root    string
	BaseURL string
}

// New builds the backend named by opts.Kind.
func New(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case KindHTTP, "":
		return NewHTTPStore(opts.HTTP)
	case KindS3:
		return NewS3Store(opts.S3)
	case KindFile:
		return NewFileStore(opts.File.Root, opts.File.BaseURL)
	default:
		return nil, fmt.Errorf("unknown remote kind %q", opts.Kind)
	}
}
