package knowledge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/supabase-community/supabase-go"
)

// Publisher uploads local knowledge documents to a Supabase Storage bucket,
// where a SupabaseSource reads them back.
type Publisher struct {
	upload func(bucket, filePath string, data io.Reader) error
	remove func(bucket, filePath string) error
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewPublisher connects to Supabase and writes to <prefix>/<name> in bucket.
func NewPublisher(url, serviceRoleKey, bucket, prefix string, log zerolog.Logger) (*Publisher, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Publisher{
		upload: func(bucket, filePath string, data io.Reader) error {
			_, err := client.Storage.UploadFile(bucket, filePath, data)
			return err
		},
		remove: func(bucket, filePath string) error {
			_, err := client.Storage.RemoveFile(bucket, []string{filePath})
			return err
		},
		bucket: bucket,
		prefix: prefix,
		log:    log,
	}, nil
}

// Publish replaces each document in the bucket with the file of the same
// name in dir. It keeps going past failures and returns how many were
// uploaded along with every error.
func (p *Publisher) Publish(ctx context.Context, dir string, documents []string) (int, error) {
	if documents == nil {
		documents = DefaultDocuments
	}
	var errs []error
	published := 0
	for _, name := range documents {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		key := path.Join(p.prefix, name)
		// uploads do not overwrite, so clear the previous version first
		if err := p.remove(p.bucket, key); err != nil {
			p.log.Debug().Err(err).Str("document", key).Msg("nothing to replace")
		}
		if err := p.upload(p.bucket, key, bytes.NewReader(body)); err != nil {
			errs = append(errs, fmt.Errorf("upload %s to %s: %w", key, p.bucket, err))
			continue
		}
		p.log.Info().Str("document", key).Int("bytes", len(body)).Msg("knowledge document published")
		published++
	}
	return published, errors.Join(errs...)
}
