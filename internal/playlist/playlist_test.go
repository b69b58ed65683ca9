package playlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackpipe/internal/model"
)

func TestStaticSourceReturnsItemsVerbatim(t *testing.T) {
	items := []model.SearchItem{model.NewSearchItem("T", "A", "X")}
	src := StaticSource{Items: items}

	got, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

func TestFileSourceParsesTriples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist.json")
	body := `[{"title":"Song A","album":"Album A","artist":"Artist A"},{"title":"Song B","album":"Album B","artist":"Artist B"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	src := FileSource{Path: path}
	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Song A", items[0].Title)
	assert.Equal(t, "Artist B", items[1].Artist)
}

func TestFileSourceReturnsErrorForMissingFile(t *testing.T) {
	src := FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}

func TestFileSourceReturnsErrorForMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	src := FileSource{Path: path}
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}
