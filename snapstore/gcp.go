package snapstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

type gcpStore struct {
	logger zerolog.Logger
	bucket string
	prefix string
	client *storage.Client
}

func NewGCPStore(logger zerolog.Logger, client *storage.Client, bucket, prefix string) *gcpStore {
	return &gcpStore{
		logger: logger,
		bucket: bucket,
		prefix: prefix,
		client: client,
	}
}

// NewGCPClient creates a storage client from the application default
// credentials.
func NewGCPClient(ctx context.Context) (*storage.Client, error) {
	creds, err := google.FindDefaultCredentials(ctx, storage.ScopeReadWrite)
	if err != nil {
		return nil, errors.Wrap(err, "error finding gcp credentials")
	}
	return storage.NewClient(ctx, option.WithCredentials(creds))
}

func (s *gcpStore) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *gcpStore) URL(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.key(name))
}

func (s *gcpStore) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.key(name)).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", s.URL(name))
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (s *gcpStore) Write(ctx context.Context, name string, data []byte) (bool, error) {
	logger := s.logger.With().Str("file", s.URL(name)).Logger()
	existing, err := s.Read(ctx, name)
	switch {
	case err == nil && bytes.Equal(existing, data):
		logger.Info().Msgf("up to date")
		return false, nil
	case err != nil && !errors.Is(err, storage.ErrObjectNotExist):
		return false, err
	}
	// Objects only become visible once the writer is closed.
	logger.Debug().Msgf("uploading file")
	wc := s.client.Bucket(s.bucket).Object(s.key(name)).NewWriter(ctx)
	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		_ = wc.Close()
		return false, errors.Wrapf(err, "error uploading %s", s.URL(name))
	}
	if err := wc.Close(); err != nil {
		return false, errors.Wrapf(err, "error uploading %s", s.URL(name))
	}
	logger.Info().Int("bytes", len(data)).Msgf("wrote file")
	return true, nil
}
