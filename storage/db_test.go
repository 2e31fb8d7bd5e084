package storage

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDB(t *testing.T) Storage {
	t.Helper()
	db, err := New(&Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetIfAbsent(t *testing.T) {
	db := mustDB(t)

	written, err := db.SetIfAbsent([]byte("k"), []byte("1"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = db.SetIfAbsent([]byte("k"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, written)

	v, err := db.GetKey([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
}

func TestPrefixOperations(t *testing.T) {
	db := mustDB(t)

	require.NoError(t, db.BatchWrite(map[string][]byte{
		"a:1": []byte("x"),
		"a:2": []byte("y"),
		"b:1": []byte("z"),
	}))

	count, err := db.CountKeysByPrefix([]byte("a:"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	items, err := db.GetByPrefix([]byte("a:"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a:1", string(items[0].Key))

	k, v, err := db.FirstKVHasPrefix([]byte("b:"))
	require.NoError(t, err)
	assert.Equal(t, "b:1", string(k))
	assert.Equal(t, "z", string(v))

	removed, err := db.DeleteByPrefix([]byte("a:"))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ok, err := db.Exist([]byte("a:1"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.DeleteByPrefix(nil)
	assert.Error(t, err)
}

func TestMove(t *testing.T) {
	db := mustDB(t)
	require.NoError(t, db.Set([]byte("src"), []byte("payload")))
	require.NoError(t, db.Move([]byte("src"), []byte("dst")))

	_, err := db.GetKey([]byte("src"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	v, err := db.GetKey([]byte("dst"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(v))
}

func TestCounter(t *testing.T) {
	db := mustDB(t)

	v, err := db.GetCounter([]byte("cnt"), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)

	v, err = db.IncCounter([]byte("cnt"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	v, err = db.IncCounter([]byte("cnt"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestBackupAndLoad(t *testing.T) {
	dir, err := os.MkdirTemp("", "piggy-storage")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src, err := NewWithPath(dir + "/src")
	require.NoError(t, err)
	require.NoError(t, src.Set([]byte("w:0xabc"), []byte("{}")))

	var buf bytes.Buffer
	_, err = src.Backup(context.Background(), &buf, 0)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	dst := mustDB(t)
	require.NoError(t, dst.Load(context.Background(), &buf))

	v, err := dst.GetKey([]byte("w:0xabc"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(v))
}

func TestVacuum(t *testing.T) {
	assert.NoError(t, mustDB(t).Vacuum())

	db, err := NewWithPath(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Delete([]byte("k")))
	assert.NoError(t, db.Vacuum())
}
