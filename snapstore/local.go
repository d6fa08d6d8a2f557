package snapstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

type localStore struct {
	logger   zerolog.Logger
	basePath string
}

// NewLocalStore stores documents on the local filesystem. Relative names
// resolve against basePath.
func NewLocalStore(logger zerolog.Logger, basePath string) *localStore {
	return &localStore{logger: logger, basePath: basePath}
}

func (l *localStore) path(name string) string {
	if l.basePath == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.basePath, name)
}

func (l *localStore) URL(name string) string {
	return l.path(name)
}

func (l *localStore) Read(ctx context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(l.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", l.path(name))
	}
	return b, nil
}

func (l *localStore) Write(ctx context.Context, name string, data []byte) (bool, error) {
	p := l.path(name)
	logger := l.logger.With().Str("path", p).Logger()
	if existing, err := os.ReadFile(p); err == nil && bytes.Equal(existing, data) {
		logger.Info().Msgf("up to date")
		return false, nil
	}
	if dir := filepath.Dir(p); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return false, err
		}
	}
	tmp := p + ".tmp"
	logger.Debug().Str("tmp_path", tmp).Msgf("creating file")
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return false, errors.Wrapf(err, "error writing %s", tmp)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return false, errors.Wrapf(err, "error replacing %s", p)
	}
	logger.Info().Int("bytes", len(data)).Msgf("wrote file")
	return true, nil
}

func writeSynced(p string, data []byte) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteFile writes a single local file with the same guarantees as a
// local store.
func WriteFile(logger zerolog.Logger, p string, data []byte) (bool, error) {
	return NewLocalStore(logger, "").Write(context.Background(), p, data)
}
