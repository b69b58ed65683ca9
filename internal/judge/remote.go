package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"trackpipe/internal/model"
)

// remoteRequest is the JSON body POSTed to the remote scorer.
type remoteRequest struct {
	Title    string `json:"title"`
	Album    string `json:"album"`
	Artist   string `json:"artist"`
	Filename string `json:"filename"`
	Username string `json:"username"`
}

// remoteResponse is the JSON body the remote scorer is expected to return.
type remoteResponse struct {
	Score     *float32 `json:"score"`
	QuerySong *string  `json:"query_song"`
	Filename  *string  `json:"filename"`
}

// RemoteJudge scores a submission by delegating to an HTTP service. Calls
// are rate-limited so a slow or misbehaving scorer can't monopolize the
// judge-stage concurrency permit pool.
type RemoteJudge struct {
	Address    string
	Port       int
	Cutoff     float32
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewRemoteJudge builds a RemoteJudge with sane defaults for the HTTP
// client and a 10-requests-per-second limiter.
func NewRemoteJudge(address string, port int, cutoff float32) *RemoteJudge {
	return &RemoteJudge{
		Address:    address,
		Port:       port,
		Cutoff:     cutoff,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(10), 1),
	}
}

func (j *RemoteJudge) Judge(ctx context.Context, sub model.JudgeSubmission) (bool, error) {
	score, err := j.JudgeScore(ctx, sub)
	if err != nil {
		return false, err
	}
	return score > j.Cutoff, nil
}

func (j *RemoteJudge) JudgeScore(ctx context.Context, sub model.JudgeSubmission) (float32, error) {
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiting remote judge call: %w", err)
		}
	}

	body, err := json.Marshal(remoteRequest{
		Title:    sub.Track.Title,
		Album:    sub.Track.Album,
		Artist:   sub.Track.Artist,
		Filename: sub.Query.Filename,
		Username: sub.Query.Username,
	})
	if err != nil {
		return 0, fmt.Errorf("marshaling judge submission: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/score", j.Address, j.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling remote judge: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading remote judge response: %w", err)
	}

	var parsed remoteResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, fmt.Errorf("parsing remote judge response: %w", err)
	}

	if parsed.Score == nil {
		return 0, nil
	}
	return *parsed.Score, nil
}
