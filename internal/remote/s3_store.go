package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the CDN domain fronting the bucket. When empty the
	// location is built from the endpoint URL and bucket name.
	PublicBaseURL string
	// CacheControl is set on every object.
	CacheControl string
}

func (c S3Config) normalized() (S3Config, error) {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.AccessKey = strings.TrimSpace(c.AccessKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.PublicBaseURL = strings.TrimSpace(c.PublicBaseURL)
	c.CacheControl = strings.TrimSpace(c.CacheControl)
	c.Region = strings.TrimSpace(c.Region)
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		missing = append(missing, "credentials")
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("s3 store: missing %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// S3Store uploads objects to any S3-compatible bucket. Object names are
// content addressed, so an existing object of the same size is reused.
type S3Store struct {
	cfg    S3Config
	client *minio.Client

	bucketMu    sync.Mutex
	bucketReady bool
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 store: %w", err)
	}
	return &S3Store{cfg: cfg, client: client}, nil
}

// ensureBucket creates the bucket on first use. Only success is
// remembered; a failed check is repeated by the next Put.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if !ok {
		err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return err
		}
	}
	s.bucketReady = true
	return nil
}

func (s *S3Store) Put(ctx context.Context, name string, content []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 store is not configured")
	}
	key, err := validName(name)
	if err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", s.cfg.Bucket, err)
	}

	present, err := s.present(ctx, key, int64(len(content)))
	if err != nil {
		return "", err
	}
	if !present {
		opts := minio.PutObjectOptions{ContentType: contentType(key), CacheControl: s.cfg.CacheControl}
		if _, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(content), int64(len(content)), opts); err != nil {
			return "", fmt.Errorf("put %s: %w", key, err)
		}
	}
	return s.location(key), nil
}

// present reports whether key already holds an object of the given size.
func (s *S3Store) present(ctx context.Context, key string, size int64) (bool, error) {
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return info.Size == size, nil
	}
	if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func (s *S3Store) location(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return JoinURL(s.cfg.PublicBaseURL, key)
	}
	return JoinURL(JoinURL(s.client.EndpointURL().String(), s.cfg.Bucket), key)
}
