package storage

// SearchItemRow is the search_items table: id is a surrogate autoincrement
// key, TrackHash is the deterministic SearchItem.ID the rest of the
// pipeline keys on.
type SearchItemRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TrackHash uint64 `gorm:"uniqueIndex;column:track_id"`
	Title     string
	Artist    string
	Album     string
}

func (SearchItemRow) TableName() string { return "search_items" }

// DownloadableFileRow is the downloadable_files table.
type DownloadableFileRow struct {
	ID       string `gorm:"primaryKey"`
	Filename string `gorm:"uniqueIndex:idx_downloadable_files_identity"`
	Username string `gorm:"uniqueIndex:idx_downloadable_files_identity"`
	Size     int64
}

func (DownloadableFileRow) TableName() string { return "downloadable_files" }

// JudgeSubmissionRow is the judge_submissions table: the pairing of a track
// and a candidate file that got judged.
type JudgeSubmissionRow struct {
	ID      string `gorm:"primaryKey"`
	TrackID uint   `gorm:"index;column:track"`
	QueryID string `gorm:"index;column:query"`
}

func (JudgeSubmissionRow) TableName() string { return "judge_submissions" }

// DownloadedFileRow is the downloaded_file table: one row per completed
// download.
type DownloadedFileRow struct {
	ID       string `gorm:"primaryKey"`
	Filename string
}

func (DownloadedFileRow) TableName() string { return "downloaded_file" }

// RetryRequestRow is the retry_request table. SubmissionID is nullable
// because a SearchNoResults retry happens before any submission exists.
// FailedDownloadFileID is set only for DownloadFailed retries.
type RetryRequestRow struct {
	ID                   string `gorm:"primaryKey"`
	TrackHash            uint64 `gorm:"index"`
	SubmissionID         *string
	RetryAttempts        uint64
	FailedDownloadFileID *string
	Reason               string
	BackoffSecs          uint64
}

func (RetryRequestRow) TableName() string { return "retry_request" }

// RejectedTrackRow is the rejected_track table. SubmissionID is nullable for
// the same reason as RetryRequestRow's.
type RejectedTrackRow struct {
	ID           string `gorm:"primaryKey"`
	TrackHash    uint64 `gorm:"index"`
	SubmissionID *string
	Reason       string
	Value        *string
}

func (RejectedTrackRow) TableName() string { return "rejected_track" }

// AllModels lists every row type for AutoMigrate.
func AllModels() []any {
	return []any{
		&SearchItemRow{},
		&DownloadableFileRow{},
		&JudgeSubmissionRow{},
		&DownloadedFileRow{},
		&RetryRequestRow{},
		&RejectedTrackRow{},
	}
}
