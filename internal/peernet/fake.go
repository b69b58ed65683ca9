package peernet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FakeClient is a deterministic, in-memory stand-in for Client. Batches and
// statuses are scripted per query/filename ahead of time; FakeClient never
// talks to a real network. It is the only Client implementation this module
// ships, since the real peer-network protocol is out of scope; tests script
// it directly, and cmd/trackpipe wires it as the runnable default.
type FakeClient struct {
	mu sync.Mutex

	// Batches scripted per query, delivered one per GetSearchResults call
	// in order.
	Batches map[string][]ResultBatch
	served  map[string]int

	// Statuses scripted per "filename\x00username" key, replayed in order
	// on the channel Download returns.
	Statuses map[string][]DownloadStatus

	SearchCalls   atomic.Int32
	CancelSeen    atomic.Bool
	SearchErr     error
	SearchLatency time.Duration
}

// NewFakeClient builds an empty FakeClient ready to be scripted.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Batches:  make(map[string][]ResultBatch),
		served:   make(map[string]int),
		Statuses: make(map[string][]DownloadStatus),
	}
}

// SearchWithCancel blocks until duration elapses or cancel flips, polling
// at a short interval so tests don't need to wait out the full duration.
func (f *FakeClient) SearchWithCancel(ctx context.Context, query string, duration time.Duration, cancel *atomic.Bool) error {
	f.SearchCalls.Add(1)
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cancel != nil && cancel.Load() {
			f.CancelSeen.Store(true)
			return f.SearchErr
		}
		if time.Now().After(deadline) {
			return f.SearchErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetSearchResults hands back the next unseen scripted batch for query, if
// any.
func (f *FakeClient) GetSearchResults(query string) []ResultBatch {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.Batches[query]
	idx := f.served[query]
	if idx >= len(all) {
		return nil
	}
	f.served[query] = idx + 1
	return []ResultBatch{all[idx]}
}

// Download replays the scripted status sequence for (filename, username) on
// a background goroutine, closing the channel once done. If nothing was
// scripted, it immediately reports Completed.
func (f *FakeClient) Download(filename, username string, size int64, dest string) (<-chan DownloadStatus, error) {
	key := filename + "\x00" + username
	f.mu.Lock()
	statuses := f.Statuses[key]
	f.mu.Unlock()

	if len(statuses) == 0 {
		statuses = []DownloadStatus{{State: DownloadCompleted, BytesReceived: size, TotalBytes: size}}
	}

	ch := make(chan DownloadStatus, len(statuses))
	go func() {
		defer close(ch)
		for _, s := range statuses {
			ch <- s
		}
	}()
	return ch, nil
}
