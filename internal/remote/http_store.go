package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig configures the multipart CDN upload endpoint.
type HTTPConfig struct {
	UploadURL string
	AccessKey string
	SecretKey string
	Timeout   time.Duration
	// Client overrides the default client, mostly for tests.
	Client *http.Client
}

// HTTPStore posts objects as multipart forms: a "file" part holding the
// bytes and an "auth" part holding the credentials as JSON. The endpoint
// answers with {"url": "..."}.
type HTTPStore struct {
	uploadURL string
	auth      []byte
	client    *http.Client
}

type httpAuth struct {
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
}

type httpResponse struct {
	URL string `json:"url"`
}

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	uploadURL := strings.TrimSpace(cfg.UploadURL)
	if uploadURL == "" {
		return nil, fmt.Errorf("cdn upload url is required")
	}
	auth, err := json.Marshal(httpAuth{AccessKey: cfg.AccessKey, SecretKey: cfg.SecretKey})
	if err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPStore{uploadURL: uploadURL, auth: auth, client: client}, nil
}

func (s *HTTPStore) Put(ctx context.Context, name string, content []byte) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	name, err := validName(name)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := form.WriteField("auth", string(s.auth)); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	var out httpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", ErrEmptyLocation
	}
	return out.URL, nil
}
