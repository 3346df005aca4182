// Package mock provides testify mocks of the profile store and the trace
// sink.
package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/callpath-core/internal/storage"
)

// Store is a testify mock of storage.Store. Put drains its reader and
// records the bytes as the call's third argument.
type Store struct {
	mock.Mock
}

var _ storage.Store = (*Store)(nil)

func (m *Store) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.Called(ctx, key, data).Error(0)
}

func (m *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *Store) Stat(ctx context.Context, key string) (storage.Object, error) {
	args := m.Called(ctx, key)
	obj, _ := args.Get(0).(storage.Object)
	return obj, args.Error(1)
}

func (m *Store) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	args := m.Called(ctx, prefix)
	objs, _ := args.Get(0).([]storage.Object)
	return objs, args.Error(1)
}

func (m *Store) Remove(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *Store) URL(key string) string {
	return m.Called(key).String(0)
}

// OnPut expects a Put of key; an empty key matches any.
func (m *Store) OnPut(key string, err error) *mock.Call {
	var k any = key
	if key == "" {
		k = mock.Anything
	}
	return m.On("Put", mock.Anything, k, mock.Anything).Return(err)
}

// OnURL expects URL(key) and answers url.
func (m *Store) OnURL(key, url string) *mock.Call {
	return m.On("URL", key).Return(url)
}

// Stored returns the bytes of the last Put of key, or nil.
func (m *Store) Stored(key string) []byte {
	var data []byte
	for _, c := range m.Calls {
		if c.Method == "Put" && c.Arguments.String(1) == key {
			data = c.Arguments.Get(2).([]byte)
		}
	}
	return data
}
