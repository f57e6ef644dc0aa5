package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournalRevertRestoresState(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))

	j := NewJournal(db)
	require.Error(t, j.Put([]byte("a"), []byte("x")), "writes outside a transaction must fail")

	require.NoError(t, j.Begin())
	require.Error(t, j.Begin(), "nested transactions are not supported")
	require.NoError(t, j.Put([]byte("a"), []byte("10")))
	require.NoError(t, j.Put([]byte("a"), []byte("11")))
	require.NoError(t, j.Delete([]byte("b")))
	require.NoError(t, j.Put([]byte("c"), []byte("3")))
	require.Equal(t, 4, j.Writes())

	got, err := j.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("11"), got)

	require.NoError(t, j.Revert())
	require.False(t, j.Active())

	got, err = db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
	got, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)
	_, err = db.Get([]byte("c"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJournalCommitKeepsWrites(t *testing.T) {
	db := NewMemDB()
	j := NewJournal(db)
	require.NoError(t, j.Begin())
	require.NoError(t, j.Put([]byte("k"), []byte("v")))
	require.NoError(t, j.Commit())
	require.Equal(t, 0, j.Writes())

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	require.NoError(t, j.Begin())
	require.NoError(t, j.Delete([]byte("k")))
	require.NoError(t, j.Commit())
	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, has)
}
