package model

// RetryReason identifies which stage produced a retryable failure.
type RetryReason int

const (
	RetryReasonSearchNoResults RetryReason = iota
	RetryReasonJudgeNoMatch
	RetryReasonDownloadFailed
)

func (r RetryReason) String() string {
	switch r {
	case RetryReasonSearchNoResults:
		return "search_no_results"
	case RetryReasonJudgeNoMatch:
		return "judge_no_match"
	case RetryReasonDownloadFailed:
		return "download_failed"
	default:
		return "unknown"
	}
}

// DownloadFailureKind classifies why a download attempt did not complete.
type DownloadFailureKind int

const (
	DownloadFailureFailed DownloadFailureKind = iota
	DownloadFailureTimedOut
	DownloadFailureUnknown
)

func (k DownloadFailureKind) String() string {
	switch k {
	case DownloadFailureFailed:
		return "failed"
	case DownloadFailureTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// RejectReason is the terminal classification for a track that will never
// be downloaded.
type RejectReason int

const (
	RejectAlreadyDownloaded RejectReason = iota
	RejectLowScore
	RejectNotMusic
	RejectAbandonedAttemptingSearch
)

// Wire returns the ENUM value persisted in the rejected_track table.
func (r RejectReason) Wire() string {
	switch r {
	case RejectAlreadyDownloaded:
		return "already_downloaded"
	case RejectLowScore:
		return "low_score"
	case RejectNotMusic:
		return "not_music"
	case RejectAbandonedAttemptingSearch:
		return "abandoned_attempting_search"
	default:
		return "unknown"
	}
}

// SearchResults is the aggregated, deduplicated output of one search
// session for a single SearchRequest.
type SearchResults struct {
	Request     SearchRequest
	Submissions []JudgeSubmission
}

// JudgeResults is the output of judging a SearchResults set.
type JudgeResults struct {
	Request  SearchRequest
	Accepted []JudgeSubmission
	Total    int
}

// DownloadRequest is one accepted candidate queued for download.
type DownloadRequest struct {
	Request    SearchRequest
	Submission JudgeSubmission
}

// DownloadFailureInfo carries a failed download back to the coordinator.
type DownloadFailureInfo struct {
	Request    SearchRequest
	Submission JudgeSubmission
	Failure    DownloadFailureKind
}

// DownloadedFile is a successfully downloaded candidate.
type DownloadedFile struct {
	Request    SearchRequest
	Submission JudgeSubmission
	Path       string
}

// RetryRequest carries the single mutation the pipeline ever applies: a
// SearchRequest with an incremented attempt counter, plus the backoff to
// sleep before re-issuing Search.
type RetryRequest struct {
	Target      SearchRequest
	Reason      RetryReason
	BackoffSecs uint64

	// FailedFile is set only when Reason is RetryReasonDownloadFailed; it
	// names the candidate whose download attempt provoked this retry, so
	// the persistence sink can record the failed_download_result FK.
	FailedFile *DownloadableFile
}

// RejectedTrack is a terminal failure record.
type RejectedTrack struct {
	Item       SearchItem
	Submission *JudgeSubmission
	Reason     RejectReason
	Value      string
}

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventQuery EventKind = iota
	EventSearch
	EventSearchResults
	EventJudge
	EventJudgeResults
	EventDownloadable
	EventFile
	EventDownloadFailed
	EventRetry
	EventReject
)

func (k EventKind) String() string {
	switch k {
	case EventQuery:
		return "Query"
	case EventSearch:
		return "Search"
	case EventSearchResults:
		return "SearchResults"
	case EventJudge:
		return "Judge"
	case EventJudgeResults:
		return "JudgeResults"
	case EventDownloadable:
		return "Downloadable"
	case EventFile:
		return "File"
	case EventDownloadFailed:
		return "DownloadFailed"
	case EventRetry:
		return "Retry"
	case EventReject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// Event is the tagged union carried on the coordinator's channel. Exactly
// one payload field is populated, matching Kind.
type Event struct {
	Kind EventKind

	Query          []SearchItem
	Search         *SearchRequest
	SearchResults  *SearchResults
	Judge          *SearchResults
	JudgeResults   *JudgeResults
	Downloadable   *DownloadRequest
	File           *DownloadedFile
	DownloadFailed *DownloadFailureInfo
	Retry          *RetryRequest
	Reject         *RejectedTrack
}

// QueryEvent seeds the pipeline with a batch of tracks to search for.
func QueryEvent(items []SearchItem) Event {
	return Event{Kind: EventQuery, Query: items}
}

// SearchEvent requests a search session for req.
func SearchEvent(req SearchRequest) Event {
	return Event{Kind: EventSearch, Search: &req}
}

// SearchResultsEvent reports the outcome of a search session.
func SearchResultsEvent(res SearchResults) Event {
	return Event{Kind: EventSearchResults, SearchResults: &res}
}

// JudgeEvent requests judging of a search session's submissions.
func JudgeEvent(res SearchResults) Event {
	return Event{Kind: EventJudge, Judge: &res}
}

// JudgeResultsEvent reports the outcome of judging.
func JudgeResultsEvent(res JudgeResults) Event {
	return Event{Kind: EventJudgeResults, JudgeResults: &res}
}

// DownloadableEvent requests download of one accepted candidate.
func DownloadableEvent(req DownloadRequest) Event {
	return Event{Kind: EventDownloadable, Downloadable: &req}
}

// FileEvent reports a successful download; terminal for its SearchItem.
func FileEvent(f DownloadedFile) Event {
	return Event{Kind: EventFile, File: &f}
}

// DownloadFailedEvent reports a failed download attempt.
func DownloadFailedEvent(info DownloadFailureInfo) Event {
	return Event{Kind: EventDownloadFailed, DownloadFailed: &info}
}

// RetryEvent requests a backoff sleep followed by a fresh Search.
func RetryEvent(r RetryRequest) Event {
	return Event{Kind: EventRetry, Retry: &r}
}

// RejectEvent reports a terminal rejection; terminal for its SearchItem.
func RejectEvent(r RejectedTrack) Event {
	return Event{Kind: EventReject, Reject: &r}
}
