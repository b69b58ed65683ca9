package storage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trackpipe/internal/model"
)

// setupTestSink creates an in-memory SQLite-backed Sink for testing,
// mirroring the teacher's setupTestDB pattern.
func setupTestSink(t *testing.T) *Sink {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(AllModels()...))

	return NewWithDB(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleSubmission() model.JudgeSubmission {
	return model.JudgeSubmission{
		Track: model.NewSearchItem("Track", "Album", "Artist"),
		Query: model.DownloadableFile{Filename: "Track - Artist.mp3", Username: "peer1", Size: 1000},
	}
}

func TestCommitSearchResultsThenReplayIsIdempotent(t *testing.T) {
	sink := setupTestSink(t)
	sub := sampleSubmission()
	res := model.SearchResults{
		Request:     model.NewSearchRequest(sub.Track, 10),
		Submissions: []model.JudgeSubmission{sub},
	}

	require.NoError(t, sink.CommitSearchResults(res))
	require.NoError(t, sink.CommitSearchResults(res)) // replay must be safe (P6)

	var itemCount, fileCount, subCount int64
	require.NoError(t, sink.db.Model(&SearchItemRow{}).Count(&itemCount).Error)
	require.NoError(t, sink.db.Model(&DownloadableFileRow{}).Count(&fileCount).Error)
	require.NoError(t, sink.db.Model(&JudgeSubmissionRow{}).Count(&subCount).Error)

	require.Equal(t, int64(1), itemCount)
	require.Equal(t, int64(1), fileCount)
	require.Equal(t, int64(1), subCount)
}

func TestCommitRejectAbandonedLeavesValueNull(t *testing.T) {
	sink := setupTestSink(t)
	item := model.NewSearchItem("Track", "Album", "Artist")

	require.NoError(t, sink.CommitReject(model.RejectedTrack{
		Item:   item,
		Reason: model.RejectAbandonedAttemptingSearch,
	}))

	var row RejectedTrackRow
	require.NoError(t, sink.db.First(&row).Error)
	require.Equal(t, "abandoned_attempting_search", row.Reason)
	require.Nil(t, row.Value)
	require.Nil(t, row.SubmissionID)
}

func TestCommitRejectLowScoreStoresValue(t *testing.T) {
	sink := setupTestSink(t)
	sub := sampleSubmission()

	require.NoError(t, sink.CommitReject(model.RejectedTrack{
		Item:       sub.Track,
		Submission: &sub,
		Reason:     model.RejectLowScore,
		Value:      "0.42",
	}))

	var row RejectedTrackRow
	require.NoError(t, sink.db.First(&row).Error)
	require.Equal(t, "low_score", row.Reason)
	require.NotNil(t, row.Value)
	require.Equal(t, "0.42", *row.Value)
	require.NotNil(t, row.SubmissionID)
}

func TestCommitRetryRecordsAttemptCount(t *testing.T) {
	sink := setupTestSink(t)
	item := model.NewSearchItem("Track", "Album", "Artist")
	req := model.NewSearchRequest(item, 10).WithIncrementedSearch(20)

	rr := model.RetryRequest{Target: req, Reason: model.RetryReasonSearchNoResults, BackoffSecs: 5}
	require.NoError(t, sink.CommitRetry(rr, nil))

	var row RetryRequestRow
	require.NoError(t, sink.db.First(&row).Error)
	require.Equal(t, uint64(1), row.RetryAttempts)
	require.Equal(t, "search_no_results", row.Reason)
	require.Nil(t, row.FailedDownloadFileID)
	require.Nil(t, row.SubmissionID)
}

func TestCommitRetryForDownloadFailurePopulatesSubmission(t *testing.T) {
	sink := setupTestSink(t)
	sub := sampleSubmission()
	req := model.NewSearchRequest(sub.Track, 10).WithIncrementedDownload(20)

	rr := model.RetryRequest{Target: req, Reason: model.RetryReasonDownloadFailed, BackoffSecs: 5}
	require.NoError(t, sink.CommitRetry(rr, &sub.Query))

	var row RetryRequestRow
	require.NoError(t, sink.db.First(&row).Error)
	require.Equal(t, "download_failed", row.Reason)
	require.NotNil(t, row.FailedDownloadFileID)
	require.NotNil(t, row.SubmissionID)

	var subRow JudgeSubmissionRow
	require.NoError(t, sink.db.First(&subRow, "id = ?", *row.SubmissionID).Error)
}
