// Package retrypolicy decides, for a given failure reason, whether a
// SearchRequest gets another attempt and on what backoff. It is pure: no
// I/O, no clocks, just attempt counters versus configured caps.
package retrypolicy

import (
	"trackpipe/internal/config"
	"trackpipe/internal/model"
)

// CappedBackoff returns min(base*2^attempt, max), saturating on overflow
// instead of wrapping.
func CappedBackoff(base, attempt, max uint64) uint64 {
	if max == 0 {
		return 0
	}
	backoff := base
	for i := uint64(0); i < attempt; i++ {
		next := backoff * 2
		if next < backoff || next > max { // overflow or past cap
			return max
		}
		backoff = next
	}
	if backoff > max {
		return max
	}
	return backoff
}

// BuildRetry computes the next retry for req given reason, or reports false
// if the relevant attempt counter is already at or above its cap — in which
// case the caller must emit a terminal Reject(AbandonedAttemptingSearch).
func BuildRetry(req model.SearchRequest, reason model.RetryReason, search config.SearchConfig, retry config.RetryConfig) (model.RetryRequest, bool) {
	var attempt, limit uint64
	var next model.SearchRequest

	switch reason {
	case model.RetryReasonSearchNoResults:
		attempt, limit = req.SearchAttempts, retry.MaxSearchRetries
		if attempt >= limit {
			return model.RetryRequest{}, false
		}
		timeout := CappedBackoff(search.BaseSearchTimeoutSecs, attempt+1, search.MaxSearchTimeoutSecs)
		next = req.WithIncrementedSearch(timeout)
	case model.RetryReasonJudgeNoMatch:
		attempt, limit = req.JudgeAttempts, retry.MaxJudgeRetries
		if attempt >= limit {
			return model.RetryRequest{}, false
		}
		next = req.WithIncrementedJudge(search.BaseSearchTimeoutSecs)
	case model.RetryReasonDownloadFailed:
		attempt, limit = req.DownloadAttempts, retry.MaxDownloadRetries
		if attempt >= limit {
			return model.RetryRequest{}, false
		}
		next = req.WithIncrementedDownload(search.BaseSearchTimeoutSecs)
	default:
		return model.RetryRequest{}, false
	}

	return model.RetryRequest{
		Target:      next,
		Reason:      reason,
		BackoffSecs: CappedBackoff(retry.BaseBackoffSecs, attempt, retry.MaxBackoffSecs),
	}, true
}
