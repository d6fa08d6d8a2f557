package snapstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

type s3Store struct {
	logger  zerolog.Logger
	bucket  string
	prefix  string
	session *session.Session
}

func NewS3Store(logger zerolog.Logger, session *session.Session, bucket, prefix string) *s3Store {
	return &s3Store{
		logger:  logger,
		bucket:  bucket,
		prefix:  prefix,
		session: session,
	}
}

func (s *s3Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *s3Store) URL(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(name))
}

func (s *s3Store) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := s3.New(s.session).GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", s.URL(name))
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (s *s3Store) Write(ctx context.Context, name string, data []byte) (bool, error) {
	logger := s.logger.With().Str("file", s.URL(name)).Logger()
	existing, err := s.Read(ctx, name)
	switch {
	case err == nil && bytes.Equal(existing, data):
		logger.Info().Msgf("up to date")
		return false, nil
	case err != nil && !isS3NotFound(err):
		return false, err
	}
	// A single PUT replaces the object atomically.
	logger.Debug().Msgf("uploading file")
	if _, err := s3manager.NewUploader(s.session).UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return false, errors.Wrapf(err, "error uploading %s", s.URL(name))
	}
	logger.Info().Int("bytes", len(data)).Msgf("wrote file")
	return true, nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
