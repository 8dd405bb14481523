package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filetrack/internal/ports"
)

func exerciseKV(t *testing.T, store ports.KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "files")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "files", []byte(`[{"id":"file-1"}]`)))
	v, ok, err := store.Get(ctx, "files")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"id":"file-1"}]`, string(v))

	require.NoError(t, store.Set(ctx, "files", []byte(`[]`)))
	v, _, err = store.Get(ctx, "files")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(v))

	require.NoError(t, store.Delete(ctx, "files"))
	_, ok, err = store.Get(ctx, "files")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete(ctx, "never-set"))
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	in := []byte(`"abc"`)
	require.NoError(t, m.Set(ctx, "k", in))
	in[1] = 'z'

	v, _, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(v))
}

func TestFile(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	exerciseKV(t, f)
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	ctx := context.Background()

	f, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, "currentUser", []byte(`{"id":"user-1"}`)))

	reopened, err := NewFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "currentUser")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"user-1"}`, string(v))
}

func TestFile_RejectsInvalidJSON(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.Error(t, f.Set(context.Background(), "files", []byte("not json")))
}

func TestFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	_, err := NewFile(path)
	assert.Error(t, err)
}

func TestNewFile_EmptyPath(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis(mr.Addr(), "", 0, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Ping(context.Background()))
	exerciseKV(t, r)
}

func TestRedis_UsesPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis(mr.Addr(), "", 0, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	require.NoError(t, r.Set(context.Background(), "roles", []byte(`[]`)))
	got, err := mr.Get("filetrack:roles")
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

func TestNewRedis_RequiresAddr(t *testing.T) {
	_, err := NewRedis("  ", "", 0, "x")
	assert.Error(t, err)
}
