// Package peernet declares the contract the pipeline needs from the
// external peer-to-peer file-sharing network client. It is intentionally
// opaque: the real client (credentials, protocol handshake, transfer
// mechanics) is out of scope for this module, per the spec's external
// collaborator boundary.
package peernet

import (
	"context"
	"sync/atomic"
	"time"
)

// ResultBatch is one group of search hits returned by the network for a
// query, as surfaced by GetSearchResults.
type ResultBatch struct {
	Query string
	Files []ResultFile
}

// ResultFile is a single file a peer is offering in response to a search.
type ResultFile struct {
	Filename string
	Username string
	Size     int64
}

// DownloadStatus is one message in the stream a Download call returns.
type DownloadStatus struct {
	State          DownloadState
	BytesReceived  int64
	TotalBytes     int64
	SpeedBytesPerS float64
}

// DownloadState enumerates the lifecycle of a single file transfer.
type DownloadState int

const (
	DownloadQueued DownloadState = iota
	DownloadInProgress
	DownloadCompleted
	DownloadFailed
	DownloadTimedOut
)

// Client is the capability the pipeline needs from the peer network. It
// must be safe for concurrent use: the coordinator calls all three methods
// from multiple worker goroutines at once.
type Client interface {
	// SearchWithCancel blocks, issuing the query and accumulating results
	// into the client's internal buffer until duration elapses or cancel
	// is set to true by the caller. It must return promptly once cancel
	// flips, and must not be called concurrently for the same query.
	SearchWithCancel(ctx context.Context, query string, duration time.Duration, cancel *atomic.Bool) error

	// GetSearchResults is a non-blocking poll of whatever has accumulated
	// in the client's internal buffer for query since the last call.
	GetSearchResults(query string) []ResultBatch

	// Download starts a transfer and returns a channel of status updates.
	// The channel is closed once a terminal state (Completed/Failed/
	// TimedOut) has been sent.
	Download(filename, username string, size int64, dest string) (<-chan DownloadStatus, error)
}
