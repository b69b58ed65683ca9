package judge

import (
	"context"

	"github.com/xrash/smetrics"

	"trackpipe/internal/model"
)

// LevenshteinJudge accepts a submission when the normalized edit-distance
// similarity between the track's rendered name and the candidate filename
// exceeds Cutoff. The normalized score is in [0,1], 1 meaning identical.
type LevenshteinJudge struct {
	Cutoff float32
}

// NewLevenshteinJudge builds a LevenshteinJudge with the given cutoff.
func NewLevenshteinJudge(cutoff float32) *LevenshteinJudge {
	return &LevenshteinJudge{Cutoff: cutoff}
}

func (j *LevenshteinJudge) Judge(ctx context.Context, sub model.JudgeSubmission) (bool, error) {
	score, err := j.JudgeScore(ctx, sub)
	if err != nil {
		return false, err
	}
	return score > j.Cutoff, nil
}

func (j *LevenshteinJudge) JudgeScore(_ context.Context, sub model.JudgeSubmission) (float32, error) {
	a := sub.Track.RenderedName()
	b := sub.Query.Filename

	dist := smetrics.Levenshtein(a, b, 1, 1, 1)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1, nil
	}

	similarity := 1 - float32(dist)/float32(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return similarity, nil
}
