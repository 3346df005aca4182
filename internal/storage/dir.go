package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/callpath-core/pkg/errors"
)

// Dir is a Store rooted at a local directory. Writes land atomically
// through a temporary file in the destination directory.
type Dir struct {
	root string
}

const tmpPrefix = ".put-"

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "local: path is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeStorageError, "create %s", root)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory backing the store.
func (d *Dir) Root() string { return d.root }

func (d *Dir) Put(ctx context.Context, key string, r io.Reader) error {
	p, err := d.path(ctx, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeStorageError, "put %s", key)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeStorageError, "put %s", key)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), p)
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeStorageError, "put %s", key)
	}
	return nil
}

func (d *Dir) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, d.fsError(err, "get", key)
	}
	return f, nil
}

func (d *Dir) Stat(ctx context.Context, key string) (Object, error) {
	p, err := d.path(ctx, key)
	if err != nil {
		return Object{}, err
	}
	fi, err := os.Stat(p)
	if err == nil && fi.IsDir() {
		err = fs.ErrNotExist
	}
	if err != nil {
		return Object{}, d.fsError(err, "stat", key)
	}
	k, _ := CleanKey(key)
	return Object{Key: k, Size: fi.Size(), Modified: fi.ModTime()}, nil
}

// List walks the tree and returns objects whose key starts with prefix,
// sorted by key. In-flight temporary files are skipped.
func (d *Dir) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}

	var out []Object
	err = filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := e.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Key: key, Size: fi.Size(), Modified: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeStorageError, "list %q", prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Remove deletes key. Removing a missing key succeeds.
func (d *Dir) Remove(ctx context.Context, key string) error {
	p, err := d.path(ctx, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrapf(err, apperrors.CodeStorageError, "remove %s", key)
	}
	return nil
}

// URL returns the file path of key, or "" for an invalid key.
func (d *Dir) URL(key string) string {
	k, err := CleanKey(key)
	if err != nil {
		return ""
	}
	return filepath.Join(d.root, filepath.FromSlash(k))
}

func (d *Dir) path(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(k)), nil
}

func (d *Dir) fsError(err error, op, key string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.Newf(apperrors.CodeNotFound, "%s %s: no such object", op, key)
	}
	return apperrors.Wrapf(err, apperrors.CodeStorageError, "%s %s", op, key)
}
