package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/callpath-core/pkg/errors"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	return d
}

func TestNewDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	d, err := NewDir(root)
	require.NoError(t, err)
	assert.DirExists(t, root)
	assert.Equal(t, root, d.Root())

	_, err = NewDir("")
	assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
}

func TestDir_PutGetStat(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "profiles/run.pb.gz", strings.NewReader("v1")))
	require.NoError(t, d.Put(ctx, "profiles/run.pb.gz", strings.NewReader("version 2")))

	r, err := d.Get(ctx, "profiles/run.pb.gz")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "version 2", string(got))

	obj, err := d.Stat(ctx, "./profiles//run.pb.gz")
	require.NoError(t, err)
	assert.Equal(t, "profiles/run.pb.gz", obj.Key)
	assert.Equal(t, int64(9), obj.Size)
	assert.False(t, obj.Modified.IsZero())

	assert.Equal(t, filepath.Join(d.Root(), "profiles", "run.pb.gz"), d.URL("profiles/run.pb.gz"))
	assert.Empty(t, d.URL("../outside"))

	entries, err := os.ReadDir(filepath.Join(d.Root(), "profiles"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not survive a put")
}

func TestDir_NotFound(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	_, err := d.Get(ctx, "missing.pb")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))

	_, err = d.Stat(ctx, "missing.pb")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))

	require.NoError(t, d.Put(ctx, "profiles/a.pb", strings.NewReader("a")))
	_, err = d.Stat(ctx, "profiles")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err), "directories are not objects")

	assert.NoError(t, d.Remove(ctx, "missing.pb"))
}

func TestDir_List(t *testing.T) {
	d := newDir(t)
	ctx := context.Background()

	for _, k := range []string{"profiles/b.pb", "profiles/a.pb", "profiles/old/c.pb", "other/d.pb"} {
		require.NoError(t, d.Put(ctx, k, strings.NewReader(k)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(d.Root(), "profiles", tmpPrefix+"123"), nil, 0644))

	objs, err := d.List(ctx, "profiles/")
	require.NoError(t, err)
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	assert.Equal(t, []string{"profiles/a.pb", "profiles/b.pb", "profiles/old/c.pb"}, keys)
	assert.Equal(t, int64(len("profiles/a.pb")), objs[0].Size)

	all, err := d.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, d.Remove(ctx, "profiles/a.pb"))
	objs, err = d.List(ctx, "profiles/a")
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestDir_RejectsBadInput(t *testing.T) {
	d := newDir(t)

	err := d.Put(context.Background(), "../outside", strings.NewReader("x"))
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Put(ctx, "x.pb", strings.NewReader("x")), context.Canceled)
	_, err = d.Stat(ctx, "x.pb")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = d.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
