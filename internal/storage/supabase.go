package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"selefli/internal/config"

	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// SupabaseStore talks to the Supabase storage REST API.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewSupabaseStore(cfg config.StorageConfig, logger *zerolog.Logger) *SupabaseStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SupabaseStore{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (s *SupabaseStore) configured() bool {
	return s.baseURL != "" && s.serviceKey != ""
}

// Upload stores data under bucket/path, replacing any existing object, and
// returns its public URL.
func (s *SupabaseStore) Upload(ctx context.Context, bucket, path, contentType string, data []byte) (string, error) {
	if !s.configured() {
		return "", ErrNotConfigured
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	s.addHeaders(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	if err := s.do(req); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return s.PublicURL(bucket, path), nil
}

// Remove deletes objects. Without credentials it does nothing.
func (s *SupabaseStore) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if !s.configured() {
		s.logger.Debug().Strs("paths", paths).Msg("storage not configured, skipping removal")
		return nil
	}

	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.addHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	if err := s.do(req); err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	return nil
}

func (s *SupabaseStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, bucket, escapePath(path))
}

// PathFromURL recovers the object path from a public URL: the part after
// /object/public/{bucket}/, or failing that the part after the bucket name.
func (s *SupabaseStore) PathFromURL(bucket, rawURL string) (string, bool) {
	if rawURL == "" || bucket == "" {
		return "", false
	}
	var path string
	marker := "/object/public/" + bucket + "/"
	if i := strings.Index(rawURL, marker); i >= 0 {
		path = rawURL[i+len(marker):]
	} else if i := strings.Index(rawURL, bucket); i >= 0 {
		path = strings.TrimLeft(rawURL[i+len(bucket):], "/")
	} else {
		return "", false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	return path, path != ""
}

func (s *SupabaseStore) addHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
}

func (s *SupabaseStore) do(req *http.Request) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("storage returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
