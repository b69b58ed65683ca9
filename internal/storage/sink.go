// Package storage is the persistence sink (C3): a transactional writer that
// commits one row-set per pipeline event. search_items, downloadable_files
// and judge_submissions rows are inserted on first sight, so replaying an
// event does not duplicate them; downloaded_file, retry_request and
// rejected_track rows get a fresh id on every commit, so a replayed File,
// Retry or Reject event adds another row.
package storage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"trackpipe/internal/model"
)

// ErrCommitFailed wraps any transaction failure; the coordinator treats
// this as fatal.
var ErrCommitFailed = errors.New("persistence commit failed")

// Sink is the transactional writer. It owns a single *gorm.DB.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) a sqlite database at path and runs
// AutoMigrate for every table in AllModels.
func Open(path string, logger *slog.Logger) (*Sink, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &Sink{db: db, logger: logger}, nil
}

// NewWithDB wraps an already-open, already-migrated *gorm.DB (used by
// tests against :memory: sqlite).
func NewWithDB(db *gorm.DB, logger *slog.Logger) *Sink {
	return &Sink{db: db, logger: logger}
}

// DB exposes the underlying *gorm.DB for callers (notably tests in other
// packages) that need to query committed rows directly.
func (s *Sink) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying database connection.
func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// upsertSearchItem inserts-on-first-sight the search_items row for item,
// returning its surrogate ID.
func (s *Sink) upsertSearchItem(tx *gorm.DB, item model.SearchItem) (uint, error) {
	row := SearchItemRow{TrackHash: item.ID, Title: item.Title, Artist: item.Artist, Album: item.Album}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return 0, err
	}
	if row.ID == 0 {
		if err := tx.Where("track_id = ?", item.ID).First(&row).Error; err != nil {
			return 0, err
		}
	}
	return row.ID, nil
}

// upsertDownloadableFile inserts-on-first-sight the downloadable_files row
// for f, returning its surrogate ID.
func (s *Sink) upsertDownloadableFile(tx *gorm.DB, f model.DownloadableFile) (string, error) {
	var existing DownloadableFileRow
	err := tx.Where("filename = ? AND username = ?", f.Filename, f.Username).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	row := DownloadableFileRow{ID: uuid.NewString(), Filename: f.Filename, Username: f.Username, Size: f.Size}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

// upsertSubmission ensures both sides of sub exist and records the
// judge_submissions pairing, returning its surrogate ID.
func (s *Sink) upsertSubmission(tx *gorm.DB, sub model.JudgeSubmission) (string, error) {
	trackID, err := s.upsertSearchItem(tx, sub.Track)
	if err != nil {
		return "", err
	}
	queryID, err := s.upsertDownloadableFile(tx, sub.Query)
	if err != nil {
		return "", err
	}

	var existing JudgeSubmissionRow
	err = tx.Where("track = ? AND query = ?", trackID, queryID).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	row := JudgeSubmissionRow{ID: uuid.NewString(), TrackID: trackID, QueryID: queryID}
	if err := tx.Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

// commit runs fn in a transaction, wrapping any failure in ErrCommitFailed
// and logging at error level — the coordinator treats a non-nil return as
// fatal.
func (s *Sink) commit(kind string, fn func(tx *gorm.DB) error) error {
	if err := s.db.Transaction(fn); err != nil {
		s.logger.Error("persistence commit failed", "event_kind", kind, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrCommitFailed, kind, err)
	}
	return nil
}

// CommitSearch records the search_items row for a Search event.
func (s *Sink) CommitSearch(req model.SearchRequest) error {
	return s.commit("Search", func(tx *gorm.DB) error {
		_, err := s.upsertSearchItem(tx, req.Item)
		return err
	})
}

// CommitSearchResults records every submission surfaced by a search
// session.
func (s *Sink) CommitSearchResults(res model.SearchResults) error {
	return s.commit("SearchResults", func(tx *gorm.DB) error {
		for _, sub := range res.Submissions {
			if _, err := s.upsertSubmission(tx, sub); err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitJudgeResults records every accepted submission from a judging pass.
func (s *Sink) CommitJudgeResults(res model.JudgeResults) error {
	return s.commit("JudgeResults", func(tx *gorm.DB) error {
		for _, sub := range res.Accepted {
			if _, err := s.upsertSubmission(tx, sub); err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitDownloaded records a completed download.
func (s *Sink) CommitDownloaded(f model.DownloadedFile) error {
	return s.commit("File", func(tx *gorm.DB) error {
		if _, err := s.upsertSubmission(tx, f.Submission); err != nil {
			return err
		}
		row := DownloadedFileRow{ID: uuid.NewString(), Filename: f.Path}
		return tx.Create(&row).Error
	})
}

// CommitRetry records a Retry event, including which downloadable file
// failed and the judge_submissions pairing it belonged to when the retry
// was provoked by a download failure.
func (s *Sink) CommitRetry(r model.RetryRequest, failed *model.DownloadableFile) error {
	return s.commit("Retry", func(tx *gorm.DB) error {
		var failedID *string
		var subID *string
		if failed != nil {
			id, err := s.upsertDownloadableFile(tx, *failed)
			if err != nil {
				return err
			}
			failedID = &id

			sid, err := s.upsertSubmission(tx, model.JudgeSubmission{Track: r.Target.Item, Query: *failed})
			if err != nil {
				return err
			}
			subID = &sid
		}

		row := RetryRequestRow{
			ID:                   uuid.NewString(),
			TrackHash:            r.Target.Item.ID,
			SubmissionID:         subID,
			RetryAttempts:        attemptsForReason(r),
			FailedDownloadFileID: failedID,
			Reason:               r.Reason.String(),
			BackoffSecs:          r.BackoffSecs,
		}
		return tx.Create(&row).Error
	})
}

func attemptsForReason(r model.RetryRequest) uint64 {
	switch r.Reason {
	case model.RetryReasonSearchNoResults:
		return r.Target.SearchAttempts
	case model.RetryReasonJudgeNoMatch:
		return r.Target.JudgeAttempts
	default:
		return r.Target.DownloadAttempts
	}
}

// CommitReject records a terminal rejection.
func (s *Sink) CommitReject(r model.RejectedTrack) error {
	return s.commit("Reject", func(tx *gorm.DB) error {
		var subID *string
		if r.Submission != nil {
			id, err := s.upsertSubmission(tx, *r.Submission)
			if err != nil {
				return err
			}
			subID = &id
		} else if _, err := s.upsertSearchItem(tx, r.Item); err != nil {
			return err
		}

		var value *string
		if r.Value != "" {
			value = &r.Value
		}

		row := RejectedTrackRow{
			ID:           uuid.NewString(),
			TrackHash:    r.Item.ID,
			SubmissionID: subID,
			Reason:       r.Reason.Wire(),
			Value:        value,
		}
		return tx.Create(&row).Error
	})
}
