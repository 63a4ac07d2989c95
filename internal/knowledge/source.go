package knowledge

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/supabase-community/supabase-go"
)

// Source fetches one named knowledge document as raw text.
type Source interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// HTTPSource fetches documents from a base URL.
type HTTPSource struct {
	http    *resty.Client
	baseURL string
}

// NewHTTPSource returns a source reading <baseURL>/<name>. Connection
// failures are retried so the server can load its own static documents
// while it is still starting.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		http: resty.New().
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond),
		baseURL: strings.TrimRight(baseURL, "/") + "/",
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, name string) (string, error) {
	resp, err := s.http.R().SetContext(ctx).Get(s.baseURL + name)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", name, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("fetch %s: status %d", name, resp.StatusCode())
	}
	return resp.String(), nil
}

// SupabaseSource downloads documents from a Supabase Storage bucket.
type SupabaseSource struct {
	download func(bucket, filePath string) ([]byte, error)
	bucket   string
	prefix   string
}

// NewSupabaseSource connects to Supabase and reads <prefix>/<name> from bucket.
func NewSupabaseSource(url, serviceRoleKey, bucket, prefix string) (*SupabaseSource, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	download := func(bucket, filePath string) ([]byte, error) {
		return client.Storage.DownloadFile(bucket, filePath)
	}
	return &SupabaseSource{download: download, bucket: bucket, prefix: prefix}, nil
}

func (s *SupabaseSource) Fetch(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := s.download(s.bucket, path.Join(s.prefix, name))
	if err != nil {
		return "", fmt.Errorf("download %s from %s: %w", name, s.bucket, err)
	}
	return string(b), nil
}
