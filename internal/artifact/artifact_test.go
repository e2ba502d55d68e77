package artifact

import (
	"os"
	"path/filepath"
	"sheltercrawl/internal/components/chrono"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	at := time.Date(2016, 3, 15, 14, 41, 0, 0, time.UTC)
	store, err := NewStore(filepath.Join(t.TempDir(), "data"), chrono.Fixed{At: at})
	require.NoError(t, err)

	require.False(t, store.Exists("00000001"))
	_, err = store.Load("00000001")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write("00000001", []byte("<html>parvo</html>")))
	require.True(t, store.Exists("00000001"))
	require.FileExists(t, filepath.Join(store.Dir(), "A00000001.htm"))

	doc, err := store.Load("00000001")
	require.NoError(t, err)
	require.Equal(t, "00000001", doc.ID)
	require.Equal(t, "<html>parvo</html>", string(doc.Content))
	require.True(t, at.Equal(doc.FetchedAt))

	// no temporary files are left behind
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestList(t *testing.T) {
	store, err := NewStore(t.TempDir(), chrono.Fixed{At: time.Now()})
	require.NoError(t, err)

	for _, id := range []string{"00000003", "00000001", "00000002"} {
		require.NoError(t, store.Write(id, []byte(id)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "A00000004.htm"), 0755))

	ids, err := store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"00000001", "00000002", "00000003"}, ids)
	require.False(t, store.Exists("00000004"))
}
