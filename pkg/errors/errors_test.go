package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	assert.Equal(t, "[DATABASE_ERROR] connection failed",
		New(CodeDatabaseError, "connection failed").Error())
	assert.Equal(t, "[STORAGE_ERROR] upload failed: network timeout",
		Wrap(CodeStorageError, "upload failed", errors.New("network timeout")).Error())
	assert.Equal(t, "[PARSE_ERROR] line 7",
		Newf(CodeParseError, "line %d", 7).Error())
	assert.Equal(t, "[NOT_FOUND] open a.txt: gone",
		Wrapf(errors.New("gone"), CodeNotFound, "open %s", "a.txt").Error())
}

func TestError_IsMatchesCode(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("flush: %w", Wrap(CodeDatabaseError, "insert traces", cause))

	assert.True(t, errors.Is(err, ErrDatabaseError))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrStorageError))
	assert.False(t, errors.Is(New(CodeClosed, "x"), errors.New("[CLOSED] x")))
}

func TestHasCode(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"database", ErrDatabaseError, IsDatabaseError, true},
		{"database wrapped", fmt.Errorf("repo: %w", New(CodeDatabaseError, "q")), IsDatabaseError, true},
		{"storage", Wrap(CodeStorageError, "put", nil), IsStorageError, true},
		{"parse", Newf(CodeParseError, "bad"), IsParseError, true},
		{"empty input", ErrEmptyInput, IsEmptyInputError, true},
		{"other code", ErrTimeout, IsDatabaseError, false},
		{"plain error", errors.New("x"), IsStorageError, false},
		{"nil", nil, IsParseError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, CodeTimeout, GetErrorCode(ErrTimeout))
	assert.Equal(t, CodeConfigError, GetErrorCode(fmt.Errorf("load: %w", ErrConfigError)))
	assert.Equal(t, CodeUnknown, GetErrorCode(errors.New("plain")))
	assert.Equal(t, CodeUnknown, GetErrorCode(nil))

	// The outermost coded error wins.
	nested := Wrap(CodeExportError, "export", Wrap(CodeStorageError, "upload", nil))
	assert.Equal(t, CodeExportError, GetErrorCode(nested))
	assert.True(t, IsStorageError(nested))
}
