// Package judge scores and accepts/rejects JudgeSubmissions. Two
// implementations are provided: a local edit-distance scorer and a remote
// HTTP scorer; both satisfy the same small Judge interface.
package judge

import (
	"context"

	"trackpipe/internal/model"
)

// Judge is the capability the judge worker dispatches against. It mirrors
// the two-operation interface from the original implementation: a boolean
// accept/reject and the underlying normalized score.
type Judge interface {
	Judge(ctx context.Context, sub model.JudgeSubmission) (bool, error)
	JudgeScore(ctx context.Context, sub model.JudgeSubmission) (float32, error)
}

// RunStage judges every submission in res, preserving input order in
// Accepted. This is the function the coordinator spawns under the judge
// semaphore.
func RunStage(ctx context.Context, j Judge, res model.SearchResults) (model.JudgeResults, error) {
	accepted := make([]model.JudgeSubmission, 0, len(res.Submissions))
	for _, sub := range res.Submissions {
		ok, err := j.Judge(ctx, sub)
		if err != nil {
			return model.JudgeResults{}, err
		}
		if ok {
			accepted = append(accepted, sub)
		}
	}
	return model.JudgeResults{
		Request:  res.Request,
		Accepted: accepted,
		Total:    len(res.Submissions),
	}, nil
}
