package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load builds the configuration from defaults, the YAML file at path (or
// DefaultFile under root when path is empty and that file exists), .env and
// the process environment. It does not validate.
func Load(root, path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(root) != "" {
		cfg.Root = root
	}

	if path == "" {
		candidate := filepath.Join(cfg.Root, DefaultFile)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
		if strings.TrimSpace(root) != "" {
			cfg.Root = root
		}
	}

	_ = godotenv.Load(filepath.Join(cfg.Root, ".env"))
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Env = firstNonEmpty(env("CDNSYNC_ENV"), env("NODE_ENV"), c.Env)
	c.BuildDir = firstNonEmpty(env("CDNSYNC_BUILD_DIR"), c.BuildDir)
	c.Remote.Kind = firstNonEmpty(env("CDNSYNC_REMOTE"), c.Remote.Kind)
	c.Remote.PublicBaseURL = firstNonEmpty(env("CDN_DOMAIN"), c.Remote.PublicBaseURL)

	c.Remote.HTTP.UploadURL = firstNonEmpty(env("CDN_UPLOAD_URL"), c.Remote.HTTP.UploadURL)
	c.Remote.HTTP.AccessKey = firstNonEmpty(env("CDN_ACCESS_KEY"), c.Remote.HTTP.AccessKey)
	c.Remote.HTTP.SecretKey = firstNonEmpty(env("CDN_SECRET_KEY"), c.Remote.HTTP.SecretKey)

	c.Remote.S3.Endpoint = firstNonEmpty(env("CDN_S3_ENDPOINT"), c.Remote.S3.Endpoint)
	c.Remote.S3.Region = firstNonEmpty(env("CDN_S3_REGION"), c.Remote.S3.Region)
	c.Remote.S3.AccessKey = firstNonEmpty(env("CDN_S3_ACCESS_KEY"), env("CDN_ACCESS_KEY"), c.Remote.S3.AccessKey)
	c.Remote.S3.SecretKey = firstNonEmpty(env("CDN_S3_SECRET_KEY"), env("CDN_SECRET_KEY"), c.Remote.S3.SecretKey)
	c.Remote.S3.Bucket = firstNonEmpty(env("CDN_S3_BUCKET"), c.Remote.S3.Bucket)
	if raw := env("CDN_S3_USE_SSL"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			c.Remote.S3.UseSSL = v
		}
	}

	c.Remote.File.Root = firstNonEmpty(env("CDN_FILE_ROOT"), c.Remote.File.Root)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
