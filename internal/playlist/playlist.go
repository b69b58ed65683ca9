// Package playlist declares the contract the pipeline needs from the
// upstream catalog that supplies (title, album, artist) triples. The real
// catalog integration is out of scope for this module; only the interface
// and a couple of trivial, self-contained sources are provided.
package playlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"trackpipe/internal/model"
)

// Source fetches the set of tracks to feed into the pipeline as the seed
// Query event.
type Source interface {
	Fetch(ctx context.Context) ([]model.SearchItem, error)
}

// StaticSource wraps a literal, pre-built slice of tracks. Used by tests and
// by callers who already have their track list in memory.
type StaticSource struct {
	Items []model.SearchItem
}

// Fetch returns the wrapped items verbatim.
func (s StaticSource) Fetch(context.Context) ([]model.SearchItem, error) {
	return s.Items, nil
}

// trackTriple is the JSON shape FileSource reads: a flat array of
// {title, album, artist} objects.
type trackTriple struct {
	Title  string `json:"title"`
	Album  string `json:"album"`
	Artist string `json:"artist"`
}

// FileSource reads a JSON array of {title, album, artist} triples from
// Path. This is the minimal concrete entrypoint needed to drive the binary
// end-to-end without a real catalog API integration.
type FileSource struct {
	Path string
}

// Fetch reads and parses the JSON file at Path.
func (s FileSource) Fetch(context.Context) ([]model.SearchItem, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading playlist file: %w", err)
	}

	var triples []trackTriple
	if err := json.Unmarshal(data, &triples); err != nil {
		return nil, fmt.Errorf("parsing playlist file: %w", err)
	}

	items := make([]model.SearchItem, 0, len(triples))
	for _, t := range triples {
		items = append(items, model.NewSearchItem(t.Title, t.Album, t.Artist))
	}
	return items, nil
}
