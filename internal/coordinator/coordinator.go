// Package coordinator implements the pipeline's single message loop: it
// consumes a typed event stream, dispatches stage workers under
// per-stage concurrency limits, and feeds results back as new events
// until the pipeline reaches quiescence.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"trackpipe/internal/config"
	"trackpipe/internal/download"
	"trackpipe/internal/judge"
	"trackpipe/internal/model"
	"trackpipe/internal/peernet"
	"trackpipe/internal/retrypolicy"
	"trackpipe/internal/search"
	"trackpipe/internal/storage"
)

// minChannelCapacity is the floor on the event channel's buffer, chosen so
// small seed lists still have headroom to survive fan-out.
const minChannelCapacity = 64

// Deps bundles the coordinator's pluggable collaborators. playlist.Source
// is deliberately absent: the caller resolves the initial track list and
// feeds it to Run as a plain slice.
type Deps struct {
	Client      peernet.Client
	Judge       judge.Judge
	Sink        *storage.Sink
	Config      config.Config
	DownloadDir string
	Logger      *slog.Logger
}

// Coordinator owns the event channel, the per-stage semaphores, and the
// pending/inflight counters that drive quiescence detection.
type Coordinator struct {
	deps Deps

	events chan model.Event

	pending  int64
	inflight int64

	searchSem   chan struct{}
	judgeSem    chan struct{}
	downloadSem chan struct{}

	wg sync.WaitGroup
}

// New builds a Coordinator sized for an initial batch of seedCount tracks.
func New(deps Deps, seedCount int) *Coordinator {
	capacity := 2 * seedCount
	if capacity < minChannelCapacity {
		capacity = minChannelCapacity
	}

	maxSearches := deps.Config.MaxConcurrentSearches
	maxJudges := deps.Config.MaxConcurrentJudges
	maxDownloads := deps.Config.MaxConcurrentDownloads
	if maxSearches <= 0 {
		maxSearches = 1
	}
	if maxJudges <= 0 {
		maxJudges = 1
	}
	if maxDownloads <= 0 {
		maxDownloads = 1
	}

	return &Coordinator{
		deps:        deps,
		events:      make(chan model.Event, capacity),
		searchSem:   make(chan struct{}, maxSearches),
		judgeSem:    make(chan struct{}, maxJudges),
		downloadSem: make(chan struct{}, maxDownloads),
	}
}

// sendEvent enqueues ev and increments pending only after the send
// succeeds. It is called both from the main loop (splitting Query into
// per-track Search events) and from worker goroutines emitting their
// follow-up event; in both cases pending is incremented strictly before
// the corresponding inflight decrement, so a worker finishing its send
// can never make the loop observe a false quiescence.
func (c *Coordinator) sendEvent(ev model.Event) {
	c.events <- ev
	atomic.AddInt64(&c.pending, 1)
}

// Run seeds the pipeline with items and processes events until
// quiescence, returning the first fatal persistence error encountered (if
// any). It is the only goroutine that reads from c.events and the only
// one that closes it.
func (c *Coordinator) Run(ctx context.Context, items []model.SearchItem) error {
	c.sendEvent(model.QueryEvent(items))

loop:
	for {
		var ev model.Event
		var ok bool
		select {
		case ev, ok = <-c.events:
			if !ok {
				break loop
			}
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()
		}

		atomic.AddInt64(&c.pending, -1)

		if err := c.commit(ev); err != nil {
			c.wg.Wait()
			return err
		}

		c.dispatch(ctx, ev)

		if atomic.LoadInt64(&c.pending) == 0 && atomic.LoadInt64(&c.inflight) == 0 {
			close(c.events)
		}
	}

	c.wg.Wait()
	return nil
}

// commit persists ev's durable effect, if it has one. Query, Judge, and
// Downloadable are request events with nothing of their own to persist;
// DownloadFailed is transient and is only ever observed through the Retry
// or Reject it provokes.
func (c *Coordinator) commit(ev model.Event) error {
	var err error
	switch ev.Kind {
	case model.EventSearch:
		err = c.deps.Sink.CommitSearch(*ev.Search)
	case model.EventSearchResults:
		err = c.deps.Sink.CommitSearchResults(*ev.SearchResults)
	case model.EventJudgeResults:
		err = c.deps.Sink.CommitJudgeResults(*ev.JudgeResults)
	case model.EventFile:
		err = c.deps.Sink.CommitDownloaded(*ev.File)
	case model.EventRetry:
		err = c.deps.Sink.CommitRetry(*ev.Retry, ev.Retry.FailedFile)
	case model.EventReject:
		err = c.deps.Sink.CommitReject(*ev.Reject)
	}
	if err != nil {
		return fmt.Errorf("committing %s event: %w", ev.Kind, err)
	}
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventQuery:
		for _, item := range ev.Query {
			req := model.NewSearchRequest(item, c.deps.Config.Search.BaseSearchTimeoutSecs)
			c.sendEvent(model.SearchEvent(req))
		}

	case model.EventSearch:
		c.spawnSearch(ctx, *ev.Search)

	case model.EventSearchResults:
		res := *ev.SearchResults
		if len(res.Submissions) == 0 {
			c.handleRetry(res.Request, model.RetryReasonSearchNoResults, nil)
			return
		}
		c.sendEvent(model.JudgeEvent(res))

	case model.EventJudge:
		c.spawnJudge(ctx, *ev.Judge)

	case model.EventJudgeResults:
		c.handleJudgeResults(*ev.JudgeResults)

	case model.EventDownloadable:
		c.spawnDownload(ctx, *ev.Downloadable)

	case model.EventDownloadFailed:
		info := *ev.DownloadFailed
		c.handleRetry(info.Request, model.RetryReasonDownloadFailed, &info.Submission.Query)

	case model.EventRetry:
		c.spawnRetry(ctx, *ev.Retry)

	case model.EventFile:
		c.deps.Logger.Info("download completed", "track", ev.File.Submission.Track.RenderedName(), "path", ev.File.Path)

	case model.EventReject:
		c.deps.Logger.Info("track rejected", "track", ev.Reject.Item.RenderedName(), "reason", ev.Reject.Reason.Wire())
	}
}

// handleJudgeResults routes every accepted candidate to the download
// gate, or to the retry policy if nothing was accepted.
func (c *Coordinator) handleJudgeResults(res model.JudgeResults) {
	if len(res.Accepted) == 0 {
		c.handleRetry(res.Request, model.RetryReasonJudgeNoMatch, nil)
		return
	}

	for _, sub := range res.Accepted {
		if !download.IsMusicFile(sub.Query.Filename) {
			c.sendEvent(model.RejectEvent(model.RejectedTrack{
				Item:       sub.Track,
				Submission: &sub,
				Reason:     model.RejectNotMusic,
				Value:      sub.Query.Filename,
			}))
			continue
		}
		c.sendEvent(model.DownloadableEvent(model.DownloadRequest{Request: res.Request, Submission: sub}))
	}
}

// handleRetry consults the retry policy for req under reason, emitting a
// Retry event on success or a terminal Reject once the attempt cap of the
// stage named by reason is reached.
func (c *Coordinator) handleRetry(req model.SearchRequest, reason model.RetryReason, failedFile *model.DownloadableFile) {
	rr, ok := retrypolicy.BuildRetry(req, reason, c.deps.Config.Search, c.deps.Config.Retry)
	if !ok {
		c.sendEvent(model.RejectEvent(model.RejectedTrack{
			Item:   req.Item,
			Reason: model.RejectAbandonedAttemptingSearch,
		}))
		return
	}
	rr.FailedFile = failedFile
	c.sendEvent(model.RetryEvent(rr))
}

func (c *Coordinator) spawnSearch(ctx context.Context, req model.SearchRequest) {
	atomic.AddInt64(&c.inflight, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.searchSem <- struct{}{}
		defer func() { <-c.searchSem }()

		res, err := search.Run(ctx, c.deps.Client, req, c.deps.Config.Search, c.deps.Logger)
		if err != nil {
			c.deps.Logger.Error("search worker failed", "track", req.Item.RenderedName(), "error", err)
			atomic.AddInt64(&c.inflight, -1)
			return
		}
		c.sendEvent(model.SearchResultsEvent(res))
		atomic.AddInt64(&c.inflight, -1)
	}()
}

func (c *Coordinator) spawnJudge(ctx context.Context, res model.SearchResults) {
	atomic.AddInt64(&c.inflight, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.judgeSem <- struct{}{}
		defer func() { <-c.judgeSem }()

		jr, err := judge.RunStage(ctx, c.deps.Judge, res)
		if err != nil {
			c.deps.Logger.Error("judge worker failed", "track", res.Request.Item.RenderedName(), "error", err)
			atomic.AddInt64(&c.inflight, -1)
			return
		}
		c.sendEvent(model.JudgeResultsEvent(jr))
		atomic.AddInt64(&c.inflight, -1)
	}()
}

func (c *Coordinator) spawnDownload(ctx context.Context, req model.DownloadRequest) {
	atomic.AddInt64(&c.inflight, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.downloadSem <- struct{}{}
		defer func() { <-c.downloadSem }()

		outcome := download.Run(ctx, c.deps.Client, req, c.deps.DownloadDir, c.deps.Logger)
		c.sendEvent(outcome)
		atomic.AddInt64(&c.inflight, -1)
	}()
}

func (c *Coordinator) spawnRetry(ctx context.Context, r model.RetryRequest) {
	atomic.AddInt64(&c.inflight, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		timer := time.NewTimer(time.Duration(r.BackoffSecs) * time.Second)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			atomic.AddInt64(&c.inflight, -1)
			return
		case <-timer.C:
		}

		c.sendEvent(model.SearchEvent(r.Target))
		atomic.AddInt64(&c.inflight, -1)
	}()
}
