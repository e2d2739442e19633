// Package config loads and validates cdnsync settings.
//
// Values are layered: Default, then the YAML file, then .env and process
// environment, then command-line flags applied by the caller. Validate runs
// once after all layers are applied.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cdnsync/internal/cache"
	"cdnsync/internal/remote"
	"cdnsync/internal/upload"
)

// DefaultFile is looked up in the project root when no --config is given.
const DefaultFile = "cdnsync.yaml"

type Config struct {
	// Env selects the remote path prefix; development environments skip sync.
	Env string `yaml:"env"`
	// Root is the project root; relative paths below resolve against it.
	Root string `yaml:"root"`
	// BuildDir holds the emitted build outputs.
	BuildDir string `yaml:"build_dir"`
	// Concurrency bounds parallel fingerprint and upload work.
	Concurrency int `yaml:"concurrency"`

	// EnvPaths maps an environment name to the remote path prefix.
	EnvPaths map[string]string `yaml:"env_paths"`

	Remote  RemoteConfig  `yaml:"remote"`
	Upload  UploadConfig  `yaml:"upload"`
	Cache   CacheConfig   `yaml:"cache"`
	Rewrite RewriteConfig `yaml:"rewrite"`
}

type RemoteConfig struct {
	Kind string `yaml:"kind"`
	// PublicBaseURL is the CDN domain objects are served from.
	PublicBaseURL string `yaml:"public_base_url"`

	HTTP HTTPConfig `yaml:"http"`
	S3   S3Config   `yaml:"s3"`
	File FileConfig `yaml:"file"`
}

type HTTPConfig struct {
	UploadURL string `yaml:"upload_url"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
	CacheControl string `yaml:"cache_control"`
}

type FileConfig struct {
	Root string `yaml:"root"`
}

type UploadConfig struct {
	MaxAttempts    int   `yaml:"max_attempts"`
	RetryDelayMs   int64 `yaml:"retry_delay_ms"`
	MaxObjectBytes int64 `yaml:"max_object_bytes"`
	TimeoutMs      int64 `yaml:"timeout_ms"`
}

type CacheConfig struct {
	// File is relative to Root unless absolute.
	File              string `yaml:"file"`
	RetentionWindowMs int64  `yaml:"retention_window_ms"`
}

type RewriteConfig struct {
	// Cached also rewrites references to unchanged assets using their cached
	// location. Use it when the build directory is regenerated between runs.
	Cached bool `yaml:"cached"`
	// WriteBack persists rewritten textual outputs into BuildDir.
	WriteBack bool `yaml:"write_back"`
}

const (
	week = 7 * 24 * time.Hour
)

func Default() *Config {
	return &Config{
		Env:         "dev",
		Root:        ".",
		BuildDir:    "dist",
		Concurrency: 4,
		EnvPaths: map[string]string{
			"production": "production/assets",
			"test":       "testing/assets",
			"dev":        "development/assets",
		},
		Remote: RemoteConfig{
			Kind: remote.KindHTTP,
			S3: S3Config{
				Region:       "us-east-1",
				UseSSL:       true,
				CacheControl: "public, max-age=31536000, immutable",
			},
		},
		Upload: UploadConfig{
			MaxAttempts:    3,
			RetryDelayMs:   1000,
			MaxObjectBytes: 10 * 1024 * 1024,
			TimeoutMs:      30000,
		},
		Cache: CacheConfig{
			File:              cache.DefaultFile,
			RetentionWindowMs: week.Milliseconds(),
		},
		Rewrite: RewriteConfig{
			WriteBack: true,
		},
	}
}

// LoadFile merges a YAML document over the current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// IsDev reports whether the environment skips synchronization.
func (c *Config) IsDev() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "dev", "development":
		return true
	}
	return false
}

// EnvPrefix is the remote path prefix for the current environment.
func (c *Config) EnvPrefix() string {
	return strings.Trim(strings.TrimSpace(c.EnvPaths[strings.TrimSpace(c.Env)]), "/")
}

func (c *Config) BuildPath() string {
	return c.resolve(c.BuildDir)
}

func (c *Config) CachePath() string {
	return c.resolve(c.Cache.File)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Upload.RetryDelayMs) * time.Millisecond
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Upload.TimeoutMs) * time.Millisecond
}

func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Cache.RetentionWindowMs) * time.Millisecond
}

// UploadOptions converts the upload section for the executor.
func (c *Config) UploadOptions() upload.Options {
	return upload.Options{
		MaxAttempts:    c.Upload.MaxAttempts,
		RetryDelay:     c.RetryDelay(),
		MaxObjectBytes: c.Upload.MaxObjectBytes,
		Timeout:        c.Timeout(),
	}
}

// RemoteOptions converts the remote section for remote.New.
func (c *Config) RemoteOptions() remote.Options {
	fileRoot := c.Remote.File.Root
	if fileRoot != "" {
		fileRoot = c.resolve(fileRoot)
	}
	return remote.Options{
		Kind: c.Remote.Kind,
		HTTP: remote.HTTPConfig{
			UploadURL: c.Remote.HTTP.UploadURL,
			AccessKey: c.Remote.HTTP.AccessKey,
			SecretKey: c.Remote.HTTP.SecretKey,
			Timeout:   c.Timeout(),
		},
		S3: remote.S3Config{
			Endpoint:      c.Remote.S3.Endpoint,
			Region:        c.Remote.S3.Region,
			AccessKey:     c.Remote.S3.AccessKey,
			SecretKey:     c.Remote.S3.SecretKey,
			Bucket:        c.Remote.S3.Bucket,
			UseSSL:        c.Remote.S3.UseSSL,
			PublicBaseURL: c.Remote.PublicBaseURL,
			CacheControl:  c.Remote.S3.CacheControl,
		},
		File: remote.FileOptions{
			Root:    fileRoot,
			BaseURL: c.Remote.PublicBaseURL,
		},
	}
}

// ValidationError lists every invalid setting found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks ranges and the settings required by the chosen backend.
// Backend settings are not required in development environments, which
// never upload.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Root) == "" {
		add("root is required")
	}
	if strings.TrimSpace(c.BuildDir) == "" {
		add("build_dir is required")
	}
	if strings.TrimSpace(c.Cache.File) == "" {
		add("cache.file is required")
	}
	if c.Concurrency < 1 {
		add("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Upload.MaxAttempts < 1 {
		add("upload.max_attempts must be at least 1, got %d", c.Upload.MaxAttempts)
	}
	if c.Upload.RetryDelayMs < 0 {
		add("upload.retry_delay_ms must not be negative, got %d", c.Upload.RetryDelayMs)
	}
	if c.Upload.MaxObjectBytes <= 0 {
		add("upload.max_object_bytes must be positive, got %d", c.Upload.MaxObjectBytes)
	}
	if c.Upload.TimeoutMs <= 0 {
		add("upload.timeout_ms must be positive, got %d", c.Upload.TimeoutMs)
	}
	if c.Cache.RetentionWindowMs <= 0 {
		add("cache.retention_window_ms must be positive, got %d", c.Cache.RetentionWindowMs)
	}

	if !c.IsDev() {
		switch strings.ToLower(strings.TrimSpace(c.Remote.Kind)) {
		case remote.KindHTTP, "":
			if strings.TrimSpace(c.Remote.HTTP.UploadURL) == "" {
				add("remote.http.upload_url is required")
			}
		case remote.KindS3:
			if strings.TrimSpace(c.Remote.S3.Endpoint) == "" {
				add("remote.s3.endpoint is required")
			}
			if strings.TrimSpace(c.Remote.S3.Bucket) == "" {
				add("remote.s3.bucket is required")
			}
		case remote.KindFile:
			if strings.TrimSpace(c.Remote.File.Root) == "" {
				add("remote.file.root is required")
			}
		default:
			add("remote.kind %q is not one of http, s3, file", c.Remote.Kind)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IsValidation reports whether err came from Validate.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
