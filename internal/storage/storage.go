// Package storage uploads video and thumbnail assets to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/clipverse/backend/internal/config"
)

// ErrEmptyKey is returned for a blank object name.
var ErrEmptyKey = errors.New("storage: empty key")

// Store persists objects under a key and reports their public location.
// Saving an existing key overwrites it.
type Store interface {
	Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// New returns the store selected by cfg.StorageDriver.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverS3:
		s3, err := NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		return s3, nil
	case config.StorageDriverMinio:
		m, err := NewMinioStorage(cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx, cfg.ObjectStore.Region); err != nil {
			return nil, err
		}
		return m, nil
	case config.StorageDriverMemory:
		return NewMemory(cfg.ObjectStore.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func normaliseKey(name string) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(name), "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

func publicURL(baseURL, key string) string {
	if baseURL == "" {
		return key
	}
	return baseURL + "/" + key
}
