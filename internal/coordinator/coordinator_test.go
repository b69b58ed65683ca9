package coordinator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trackpipe/internal/config"
	"trackpipe/internal/model"
	"trackpipe/internal/peernet"
	"trackpipe/internal/search"
	"trackpipe/internal/storage"
)

func init() {
	// Tests never wait out the real 10s search poll cadence or multi-second
	// retry backoffs.
	search.PollInterval = 2 * time.Millisecond
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSink(t *testing.T) *storage.Sink {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(storage.AllModels()...))
	return storage.NewWithDB(db, discardLogger())
}

func testConfig() config.Config {
	return config.Config{
		Search: config.SearchConfig{BaseSearchTimeoutSecs: 1, MaxSearchTimeoutSecs: 2},
		Retry: config.RetryConfig{
			MaxSearchRetries:   2,
			MaxJudgeRetries:    2,
			MaxDownloadRetries: 1,
			BaseBackoffSecs:    0,
			MaxBackoffSecs:     0,
		},
		MaxConcurrentSearches:  2,
		MaxConcurrentJudges:    2,
		MaxConcurrentDownloads: 2,
	}
}

// alwaysAcceptJudge accepts every submission it sees.
type alwaysAcceptJudge struct{}

func (alwaysAcceptJudge) Judge(context.Context, model.JudgeSubmission) (bool, error) { return true, nil }
func (alwaysAcceptJudge) JudgeScore(context.Context, model.JudgeSubmission) (float32, error) {
	return 1, nil
}

func runWithTimeout(t *testing.T, c *Coordinator, items []model.SearchItem) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Run(ctx, items)
}

func TestHappySingleTrackDownloads(t *testing.T) {
	item := model.NewSearchItem("T", "A", "X")
	client := peernet.NewFakeClient()
	client.Batches[item.QueryString()] = []peernet.ResultBatch{
		{Query: item.QueryString(), Files: []peernet.ResultFile{{Filename: "T - X.mp3", Username: "u", Size: 100}}},
	}

	sink := testSink(t)
	c := New(Deps{
		Client:      client,
		Judge:       alwaysAcceptJudge{},
		Sink:        sink,
		Config:      testConfig(),
		DownloadDir: t.TempDir(),
		Logger:      discardLogger(),
	}, 1)

	require.NoError(t, runWithTimeout(t, c, []model.SearchItem{item}))

	var files int64
	require.NoError(t, sink.DB().Model(&storage.DownloadedFileRow{}).Count(&files).Error)
	assert.Equal(t, int64(1), files)

	var rejects int64
	require.NoError(t, sink.DB().Model(&storage.RejectedTrackRow{}).Count(&rejects).Error)
	assert.Zero(t, rejects)
}

func TestSearchExhaustionEndsInAbandonedReject(t *testing.T) {
	item := model.NewSearchItem("Nonexistent", "Nowhere", "Nobody")
	client := peernet.NewFakeClient() // no batches ever scripted

	sink := testSink(t)
	cfg := testConfig()
	c := New(Deps{
		Client:      client,
		Judge:       alwaysAcceptJudge{},
		Sink:        sink,
		Config:      cfg,
		DownloadDir: t.TempDir(),
		Logger:      discardLogger(),
	}, 1)

	require.NoError(t, runWithTimeout(t, c, []model.SearchItem{item}))

	var row storage.RejectedTrackRow
	require.NoError(t, sink.DB().First(&row).Error)
	assert.Equal(t, "abandoned_attempting_search", row.Reason)

	var retries int64
	require.NoError(t, sink.DB().Model(&storage.RetryRequestRow{}).Count(&retries).Error)
	assert.Equal(t, int64(cfg.Retry.MaxSearchRetries), retries)
}

func TestNonAudioCandidateIsRejectedWithoutDownload(t *testing.T) {
	item := model.NewSearchItem("T", "A", "X")
	client := peernet.NewFakeClient()
	client.Batches[item.QueryString()] = []peernet.ResultBatch{
		{Query: item.QueryString(), Files: []peernet.ResultFile{{Filename: "T - X.txt", Username: "u", Size: 10}}},
	}

	sink := testSink(t)
	c := New(Deps{
		Client:      client,
		Judge:       alwaysAcceptJudge{},
		Sink:        sink,
		Config:      testConfig(),
		DownloadDir: t.TempDir(),
		Logger:      discardLogger(),
	}, 1)

	require.NoError(t, runWithTimeout(t, c, []model.SearchItem{item}))

	var row storage.RejectedTrackRow
	require.NoError(t, sink.DB().First(&row).Error)
	assert.Equal(t, "not_music", row.Reason)
	require.NotNil(t, row.Value)
	assert.Equal(t, "T - X.txt", *row.Value)

	var files int64
	require.NoError(t, sink.DB().Model(&storage.DownloadedFileRow{}).Count(&files).Error)
	assert.Zero(t, files)
}

func TestDuplicateCandidatesAcrossPollsYieldOneSubmission(t *testing.T) {
	item := model.NewSearchItem("T", "A", "X")
	client := peernet.NewFakeClient()
	client.Batches[item.QueryString()] = []peernet.ResultBatch{
		{Query: item.QueryString(), Files: []peernet.ResultFile{{Filename: "T.mp3", Username: "u", Size: 100}}},
		{Query: item.QueryString(), Files: []peernet.ResultFile{{Filename: "T.mp3", Username: "u", Size: 100}}},
	}

	sink := testSink(t)
	c := New(Deps{
		Client:      client,
		Judge:       alwaysAcceptJudge{},
		Sink:        sink,
		Config:      testConfig(),
		DownloadDir: t.TempDir(),
		Logger:      discardLogger(),
	}, 1)

	require.NoError(t, runWithTimeout(t, c, []model.SearchItem{item}))

	var subs int64
	require.NoError(t, sink.DB().Model(&storage.JudgeSubmissionRow{}).Count(&subs).Error)
	assert.Equal(t, int64(1), subs)
}

func TestQuiescenceUnderEmptyInput(t *testing.T) {
	sink := testSink(t)
	c := New(Deps{
		Client:      peernet.NewFakeClient(),
		Judge:       alwaysAcceptJudge{},
		Sink:        sink,
		Config:      testConfig(),
		DownloadDir: t.TempDir(),
		Logger:      discardLogger(),
	}, 0)

	require.NoError(t, runWithTimeout(t, c, nil))
}
