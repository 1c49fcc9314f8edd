package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestStore_PutGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "raw/nested/a.json", []byte(`{"id":"1"}`)))
	assert.FileExists(t, filepath.Join(s.Root(), "raw", "nested", "a.json"))

	data, err := s.Get(ctx, "raw/nested/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(data))

	require.NoError(t, s.Put(ctx, "raw/nested/a.json", []byte(`{"id":"2"}`)))
	data, _ = s.Get(ctx, "raw/nested/a.json")
	assert.Equal(t, `{"id":"2"}`, string(data))
}

func TestStore_Get_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "raw/missing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_CopyDeleteExists(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "raw/a.json", []byte("a")))

	require.NoError(t, s.Copy(ctx, "raw/a.json", "quarantine/a.json"))
	require.NoError(t, s.Delete(ctx, "raw/a.json"))

	ok, err := s.Exists(ctx, "raw/a.json")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Exists(ctx, "quarantine/a.json")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, s.Delete(ctx, "raw/a.json"))
	err = s.Copy(ctx, "raw/a.json", "staging/a.json")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	ok, _ = s.Exists(ctx, "staging/a.json")
	assert.False(t, ok, "failed copy must not create the destination")
}

func TestStore_ExistsOnDirectory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "raw/a.json", nil))

	ok, err := s.Exists(ctx, "raw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_List(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"raw/b.json", "raw/a.json", "raw/sub/c.csv", "rawish/d.json", "staging/e.json"} {
		require.NoError(t, s.Put(ctx, k, []byte("x")))
	}
	// A leftover temp file from an interrupted write.
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "raw", ".lakegate-tmp-123"), nil, 0o600))

	keys, err := s.List(ctx, "raw/")
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/a.json", "raw/b.json", "raw/sub/c.csv"}, keys)

	keys, err = s.List(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/a.json", "raw/b.json", "raw/sub/c.csv", "rawish/d.json"}, keys)

	keys, err = s.List(ctx, "curated/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, "../outside.json", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = s.Get(ctx, "raw/../../etc/passwd")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
