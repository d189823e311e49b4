package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebird-ink/windi/internal/cursor"
)

func openTestStore(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "checkpoint.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestLoad_Missing(t *testing.T) {
	s, _ := openTestStore(t)

	c, ok, err := s.Load(context.Background(), "default")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, cursor.Zero, c)
}

func TestSaveLoad(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "default", cursor.FromUint64(2)))
	c, ok, err := s.Load(ctx, "default")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cursor.FromUint64(2), c)

	require.NoError(t, s.Save(ctx, "default", cursor.FromParts(1, 0)))
	c, _, err = s.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, cursor.FromParts(1, 0), c)
}

func TestSave_NeverMovesBackwards(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "default", cursor.FromUint64(0x100)))
	require.NoError(t, s.Save(ctx, "default", cursor.FromUint64(0xff)))

	c, _, err := s.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, cursor.FromUint64(0x100), c)
}

func TestSave_NamesAreIndependent(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", cursor.FromUint64(5)))
	require.NoError(t, s.Save(ctx, "b", cursor.FromUint64(9)))

	a, _, err := s.Load(ctx, "a")
	require.NoError(t, err)
	b, _, err := s.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, cursor.FromUint64(5), a)
	assert.Equal(t, cursor.FromUint64(9), b)
}

func TestReopen(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.Save(context.Background(), "default", cursor.FromUint64(42)))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer reopened.Close()

	c, ok, err := reopened.Load(context.Background(), "default")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cursor.FromUint64(42), c)
}

func TestStoreInterface(t *testing.T) {
	var _ Store = (*SQLite)(nil)
}
