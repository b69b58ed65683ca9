// Package model defines the value types that flow through the pipeline:
// tracks, candidate files, judged submissions, and the event union that
// carries them between pipeline stages.
package model

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// SearchItem is the canonical logical track the pipeline is trying to find
// and download. It is immutable once created; ID is a deterministic hash of
// the lowercased (title, album, artist) tuple so the same track always maps
// to the same identity across runs.
type SearchItem struct {
	ID     uint64
	Title  string
	Album  string
	Artist string
}

// NewSearchItem builds a SearchItem with its ID derived from the triple.
func NewSearchItem(title, album, artist string) SearchItem {
	return SearchItem{
		ID:     HashTrack(title, album, artist),
		Title:  title,
		Album:  album,
		Artist: artist,
	}
}

// HashTrack computes the stable identity hash for a (title, album, artist)
// triple, ignoring case and leading/trailing whitespace of each field.
func HashTrack(title, album, artist string) uint64 {
	h := fnv.New64a()
	key := strings.ToLower(strings.TrimSpace(title)) + "\x1f" +
		strings.ToLower(strings.TrimSpace(album)) + "\x1f" +
		strings.ToLower(strings.TrimSpace(artist))
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// QueryString is the string handed to the peer-network search primitive.
func (s SearchItem) QueryString() string {
	return fmt.Sprintf("%s - %s", s.Title, s.Artist)
}

// RenderedName is the rendered form used by string-distance judging.
func (s SearchItem) RenderedName() string {
	return fmt.Sprintf("%s - %s - %s", s.Title, s.Artist, s.Album)
}

func (s SearchItem) String() string {
	return s.RenderedName()
}

// DownloadableFile is one concrete candidate owned by a peer on the
// network. Equality is by (Filename, Username).
type DownloadableFile struct {
	Filename string
	Username string
	Size     int64
}

// Key returns the deduplication key for this candidate.
func (f DownloadableFile) Key() string {
	return f.Filename + "\x00" + f.Username
}

// JudgeSubmission pairs a track with a candidate file; it is the unit that
// gets judged and, if accepted, downloaded.
type JudgeSubmission struct {
	Track SearchItem
	Query DownloadableFile
}

// SearchRequest is a SearchItem enriched with per-stage attempt counters and
// a dynamic search timeout. New values are produced by the With* methods;
// SearchRequest itself is never mutated in place.
type SearchRequest struct {
	Item             SearchItem
	SearchAttempts   uint64
	JudgeAttempts    uint64
	DownloadAttempts uint64
	TimeoutSecs      uint64
}

// NewSearchRequest creates the initial request for a freshly queried track.
func NewSearchRequest(item SearchItem, baseTimeoutSecs uint64) SearchRequest {
	return SearchRequest{Item: item, TimeoutSecs: baseTimeoutSecs}
}

// WithIncrementedSearch returns a copy with SearchAttempts incremented and
// TimeoutSecs set to the given value.
func (r SearchRequest) WithIncrementedSearch(timeoutSecs uint64) SearchRequest {
	next := r
	next.SearchAttempts++
	next.TimeoutSecs = timeoutSecs
	return next
}

// WithIncrementedJudge returns a copy with JudgeAttempts incremented and the
// search timeout reset to base.
func (r SearchRequest) WithIncrementedJudge(baseTimeoutSecs uint64) SearchRequest {
	next := r
	next.JudgeAttempts++
	next.TimeoutSecs = baseTimeoutSecs
	return next
}

// WithIncrementedDownload returns a copy with DownloadAttempts incremented
// and the search timeout reset to base.
func (r SearchRequest) WithIncrementedDownload(baseTimeoutSecs uint64) SearchRequest {
	next := r
	next.DownloadAttempts++
	next.TimeoutSecs = baseTimeoutSecs
	return next
}
