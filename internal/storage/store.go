// Package storage keeps exported profiles in a directory or a COS bucket
// under slash-separated keys such as "profiles/run-42.pb.gz".
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/callpath-core/pkg/config"
	apperrors "github.com/callpath-core/pkg/errors"
)

// Object describes a stored profile.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is an object store for exported profiles. Keys are cleaned with
// CleanKey; a missing key yields a CodeNotFound error.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Object, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Remove(ctx context.Context, key string) error
	// URL locates key for readers outside this process.
	URL(key string) string
}

const (
	TypeLocal = "local"
	TypeCOS   = "cos"
)

// New opens the store selected by cfg.Type; empty means local.
func New(cfg *config.StorageConfig) (Store, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if cfg.Type == TypeCOS {
		return NewCOS(COSOptions{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	}
	return NewDir(cfg.LocalPath)
}

// Validate checks that cfg names a usable backend.
func Validate(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}
	switch cfg.Type {
	case TypeCOS:
		switch {
		case cfg.Bucket == "":
			return apperrors.New(apperrors.CodeConfigError, "cos: bucket is required")
		case cfg.Region == "":
			return apperrors.New(apperrors.CodeConfigError, "cos: region is required")
		case cfg.SecretID == "" || cfg.SecretKey == "":
			return apperrors.New(apperrors.CodeConfigError, "cos: credentials are required")
		}
	case TypeLocal, "":
		if cfg.LocalPath == "" {
			return apperrors.New(apperrors.CodeConfigError, "local: path is required")
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type %q", cfg.Type)
	}
	return nil
}

// CleanKey normalizes key to slash form and rejects keys that are empty or
// leave the store root.
func CleanKey(key string) (string, error) {
	k := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") || path.IsAbs(k) {
		return "", apperrors.Newf(apperrors.CodeInvalidInput, "invalid storage key %q", key)
	}
	return k, nil
}

// cleanPrefix is CleanKey for List prefixes, where empty means everything.
func cleanPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", nil
	}
	k, err := CleanKey(prefix)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(prefix, "/") {
		k += "/"
	}
	return k, nil
}
