// Package objectstore uploads generated media to Google Cloud Storage and returns public URLs.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/opengaia-backend/internal/platform/logger"
)

// Store is the upload capability the portrait service depends on.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

type Config struct {
	Bucket string
	// PublicBaseURL overrides https://storage.googleapis.com; a CDN or emulator host.
	PublicBaseURL string
	// EmulatorHost switches the client to an unauthenticated emulator (fake-gcs-server).
	EmulatorHost string
	// Credentials is a service-account JSON document or a path to one. Empty uses ADC.
	Credentials   string
	UploadTimeout time.Duration
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

type GCS struct {
	log     *logger.Logger
	client  *storage.Client
	bucket  string
	baseURL string
	timeout time.Duration
}

func NewGCS(ctx context.Context, cfg Config, log *logger.Logger) (*GCS, error) {
	if !cfg.Enabled() {
		return nil, errors.New("objectstore: bucket required")
	}
	if log == nil {
		log = logger.Nop()
	}
	baseURL, err := publicBaseURL(cfg)
	if err != nil {
		return nil, err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("objectstore: create storage client: %w", err)
	}
	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	s := &GCS{
		log:     log.With("service", "ObjectStore"),
		client:  client,
		bucket:  strings.TrimSpace(cfg.Bucket),
		baseURL: baseURL,
		timeout: timeout,
	}
	s.log.Info("Object storage initialized", "bucket", s.bucket, "public_base_url", baseURL, "emulator", cfg.EmulatorHost != "")
	return s, nil
}

func newClient(ctx context.Context, cfg Config) (*storage.Client, error) {
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := clientOptions(cfg.Credentials)
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func clientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func publicBaseURL(cfg Config) (string, error) {
	raw := strings.TrimSpace(cfg.PublicBaseURL)
	if raw == "" {
		raw = strings.TrimSpace(cfg.EmulatorHost)
	}
	if raw == "" {
		return "https://storage.googleapis.com", nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("objectstore: invalid public base url %q; expected absolute URL like http://localhost:4443", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// Put writes data under key and returns its public URL.
func (s *GCS) Put(ctx context.Context, key string, data []byte) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("objectstore: empty key")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := ContentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objectstore: close %s: %w", key, err)
	}
	return PublicURL(s.baseURL, s.bucket, key), nil
}

func (s *GCS) Close() error { return s.client.Close() }

func PublicURL(baseURL, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(baseURL, "/"), bucket, strings.TrimLeft(key, "/"))
}

func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
