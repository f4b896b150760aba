package kv

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE kv (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k1", []byte{0x01, 0x02}))

	v, err := r.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, v)
}

func TestGet_MissingIsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSet_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestList_Prefix(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "identity:a@example.com", []byte{0xAA}))
	require.NoError(t, r.Set(ctx, "identity:b@example.com", []byte{0xBB}))
	require.NoError(t, r.Set(ctx, "identityXc", []byte{0xCC}))
	require.NoError(t, r.Set(ctx, "vault_salt", []byte{0x01}))

	m, err := r.List(ctx, "identity:")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"identity:a@example.com": {0xAA},
		"identity:b@example.com": {0xBB},
	}, m)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestList_PrefixIsLiteral(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a_b", []byte{1}))
	require.NoError(t, r.Set(ctx, "axb", []byte{2}))
	require.NoError(t, r.Set(ctx, "100%", []byte{3}))
	require.NoError(t, r.Set(ctx, "1000", []byte{4}))

	m, err := r.List(ctx, "a_")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a_b": {1}}, m)

	m, err = r.List(ctx, "100%")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"100%": {3}}, m)
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "x", []byte{0x01}))
	require.NoError(t, r.Delete(ctx, "x"))

	v, err := r.Get(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, r.Delete(ctx, "x"))
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte{1}))
	require.NoError(t, r.Set(ctx, "b", []byte{2}))
	require.NoError(t, r.Clear(ctx))

	m, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	assert.ErrorContains(t, err, "failed to get kv[k]")
	assert.ErrorContains(t, r.Set(ctx, "k", []byte("v")), "failed to set kv[k]")
	assert.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete kv[k]")
	assert.ErrorContains(t, r.Clear(ctx), "failed to clear kv")
	_, err = r.List(ctx, "")
	assert.ErrorContains(t, err, "failed to list kv")
}
