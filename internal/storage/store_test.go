package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpath-core/pkg/config"
	apperrors "github.com/callpath-core/pkg/errors"
)

func TestNew(t *testing.T) {
	s, err := New(&config.StorageConfig{
		Type: TypeCOS, Bucket: "profiles-1250000000", Region: "ap-guangzhou",
		SecretID: "id", SecretKey: "key",
	})
	require.NoError(t, err)
	assert.IsType(t, &COS{}, s)

	root := t.TempDir()
	s, err = New(&config.StorageConfig{LocalPath: root})
	require.NoError(t, err)
	require.IsType(t, &Dir{}, s)
	assert.Equal(t, root, s.(*Dir).Root())
}

func TestValidate(t *testing.T) {
	cos := func(mut func(*config.StorageConfig)) *config.StorageConfig {
		c := &config.StorageConfig{Type: TypeCOS, Bucket: "b", Region: "r", SecretID: "i", SecretKey: "k"}
		mut(c)
		return c
	}
	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr string
	}{
		{"nil", nil, "storage config is nil"},
		{"unknown type", &config.StorageConfig{Type: "s3"}, `unsupported storage type "s3"`},
		{"cos bucket", cos(func(c *config.StorageConfig) { c.Bucket = "" }), "bucket is required"},
		{"cos region", cos(func(c *config.StorageConfig) { c.Region = "" }), "region is required"},
		{"cos secret", cos(func(c *config.StorageConfig) { c.SecretKey = "" }), "credentials are required"},
		{"local path", &config.StorageConfig{Type: TypeLocal}, "path is required"},
		{"default type path", &config.StorageConfig{}, "path is required"},
		{"cos ok", cos(func(*config.StorageConfig) {}), ""},
		{"local ok", &config.StorageConfig{LocalPath: "/var/lib/callpath"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCleanKey(t *testing.T) {
	for in, want := range map[string]string{
		"profiles/a.pb.gz": "profiles/a.pb.gz",
		"./a//b":           "a/b",
		"a/../b":           "b",
		`dir\file`:         "dir/file",
	} {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", ".", "..", "../x", "a/../../x", "/etc/passwd"} {
		_, err := CleanKey(bad)
		assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetErrorCode(err), bad)
	}
}

func TestCleanPrefix(t *testing.T) {
	p, err := cleanPrefix("")
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = cleanPrefix("profiles/")
	require.NoError(t, err)
	assert.Equal(t, "profiles/", p)

	p, err = cleanPrefix("./profiles/run")
	require.NoError(t, err)
	assert.Equal(t, "profiles/run", p)

	_, err = cleanPrefix("../")
	assert.Error(t, err)
}
