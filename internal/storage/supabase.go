package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

// SupabaseStore talks to the Supabase Storage REST API with the service
// role credential. Bucket policies still apply; per-user scoping is done
// by the owner-prefixed object paths the gateway constructs.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

func NewSupabaseStore(baseURL, serviceKey, bucket string) *SupabaseStore {
	return &SupabaseStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *SupabaseStore) objectURL(path string) string {
	return s.baseURL + "/storage/v1/object/" + s.bucket + "/" + encodePath(path)
}

func encodePath(path string) string {
	segments := strings.Split(path, "/")
	encoded := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		encoded = append(encoded, url.PathEscape(segment))
	}
	return strings.Join(encoded, "/")
}

func (s *SupabaseStore) Upload(ctx context.Context, path, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create storage upload request: %w", err)
	}
	s.setAuth(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apierr.Upstream("storage upload failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.New(resp.StatusCode, s.errorDetail(resp, "Failed to upload object to storage"))
	}
	return nil
}

func (s *SupabaseStore) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create storage download request: %w", err)
	}
	s.setAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Upstream("storage download failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.New(resp.StatusCode, s.errorDetail(resp, "Failed to download object from storage"))
	}
	return io.ReadAll(resp.Body)
}

func (s *SupabaseStore) Delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(path), nil)
	if err != nil {
		return fmt.Errorf("create storage delete request: %w", err)
	}
	s.setAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apierr.Upstream("storage delete failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.New(resp.StatusCode, s.errorDetail(resp, "Failed to delete object from storage"))
	}
	return nil
}

func (s *SupabaseStore) setAuth(req *http.Request) {
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

// errorDetail extracts whichever message field the storage API chose to
// populate for this failure.
func (s *SupabaseStore) errorDetail(resp *http.Response, fallback string) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(raw) == 0 {
		return fallback
	}

	var parsed struct {
		Error            string `json:"error"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		for _, candidate := range []string{parsed.Message, parsed.ErrorDescription, parsed.Error} {
			if candidate != "" {
				return fallback + ": " + candidate
			}
		}
	}
	return fallback + ": " + string(raw)
}
