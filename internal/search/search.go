// Package search drives one search stage attempt against the peer network:
// it starts a cancellable blocking search, polls for results at a fixed
// cadence, deduplicates candidates, and bails out once the feed has gone
// quiet for too many consecutive polls.
package search

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"trackpipe/internal/config"
	"trackpipe/internal/model"
	"trackpipe/internal/peernet"
)

// DefaultTimesWithNoNewFiles is the number of consecutive empty polls the
// worker tolerates before cancelling the blocking driver and returning
// whatever it has accumulated so far.
const DefaultTimesWithNoNewFiles = 3

// PollInterval is the cadence at which GetSearchResults is polled while the
// blocking driver is running. Declared as a var, not a const, so tests can
// shrink it without waiting out the real 10s cadence.
var PollInterval = 10 * time.Second

// Run drives a single search attempt for req to completion. It spawns
// client.SearchWithCancel on its own goroutine (the stand-in for a blocking
// OS thread), polls client.GetSearchResults on the calling goroutine, and
// always joins the blocking goroutine before returning — no leaked driver,
// whatever the exit path.
//
// The blocking driver's own duration (req.TimeoutSecs) is a safety cap, not
// the primary termination signal: the poll loop itself ends when either the
// caller's context is cancelled, the driver returns on its own, or
// empty_poll_count exceeds DefaultTimesWithNoNewFiles, at which point the
// cancel flag is raised and the driver is awaited.
//
// Search is best-effort: a failing driver still yields whatever submissions
// were buffered before it failed, logged as a warning rather than surfaced
// as an error — the retry policy decides what happens next based on
// Submissions being empty or not, the same as any other search outcome. The
// only non-nil return is the caller's own context cancellation.
func Run(ctx context.Context, client peernet.Client, req model.SearchRequest, cfg config.SearchConfig, logger *slog.Logger) (model.SearchResults, error) {
	query := req.Item.QueryString()
	timeoutSecs := req.TimeoutSecs
	if cfg.MaxSearchTimeoutSecs > 0 && timeoutSecs > cfg.MaxSearchTimeoutSecs {
		timeoutSecs = cfg.MaxSearchTimeoutSecs
	}
	timeout := time.Duration(timeoutSecs) * time.Second

	var cancel atomic.Bool
	driverDone := make(chan error, 1)

	go func() {
		driverDone <- client.SearchWithCancel(ctx, query, timeout, &cancel)
	}()

	seen := make(map[string]struct{})
	submissions := make([]model.JudgeSubmission, 0, 16)
	emptyPollCount := 0

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var driverErr error
	var ctxErr error

pollLoop:
	for {
		select {
		case <-ctx.Done():
			cancel.Store(true)
			<-driverDone
			ctxErr = ctx.Err()
			break pollLoop
		case driverErr = <-driverDone:
			break pollLoop
		case <-ticker.C:
			added := 0
			for _, batch := range client.GetSearchResults(query) {
				for _, f := range batch.Files {
					key := f.Filename + "\x00" + f.Username
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					submissions = append(submissions, model.JudgeSubmission{
						Track: req.Item,
						Query: model.DownloadableFile{Filename: f.Filename, Username: f.Username, Size: f.Size},
					})
					added++
				}
			}

			if added == 0 {
				emptyPollCount++
			} else {
				emptyPollCount = 0
			}

			logger.Debug("search poll", "query", query, "new_results", added, "empty_poll_count", emptyPollCount)

			if emptyPollCount > DefaultTimesWithNoNewFiles {
				cancel.Store(true)
				driverErr = <-driverDone
				break pollLoop
			}
		}
	}

	if driverErr != nil {
		logger.Warn("search blocking driver returned an error; proceeding best-effort", "query", query, "error", driverErr)
	}

	return model.SearchResults{Request: req, Submissions: submissions}, ctxErr
}
