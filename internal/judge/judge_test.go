package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackpipe/internal/model"
)

// splitTestServerAddr breaks an httptest.Server's URL into host and port so
// it can be fed to NewRemoteJudge, which takes them separately.
func splitTestServerAddr(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestLevenshteinJudgeAcceptsCloseMatch(t *testing.T) {
	j := NewLevenshteinJudge(0.75)
	sub := model.JudgeSubmission{
		Track: model.NewSearchItem("Echoes", "Meddle", "Pink Floyd"),
		Query: model.DownloadableFile{Filename: "Echoes - Pink Floyd - Meddle.flac", Username: "u"},
	}
	ok, err := j.Judge(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLevenshteinJudgeRejectsFarMatch(t *testing.T) {
	j := NewLevenshteinJudge(0.75)
	sub := model.JudgeSubmission{
		Track: model.NewSearchItem("Echoes", "Meddle", "Pink Floyd"),
		Query: model.DownloadableFile{Filename: "completely_unrelated_file_name.mp3", Username: "u"},
	}
	ok, err := j.Judge(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLevenshteinJudgeIdenticalIsPerfectScore(t *testing.T) {
	j := NewLevenshteinJudge(0.75)
	sub := model.JudgeSubmission{
		Track: model.SearchItem{Title: "X", Artist: "Y", Album: "Z"},
		Query: model.DownloadableFile{Filename: "X - Y - Z", Username: "u"},
	}
	score, err := j.JudgeScore(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, float32(1), score)
}

func TestRemoteJudgePostsAndParsesScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Echoes", req.Title)

		score := float32(0.9)
		_ = json.NewEncoder(w).Encode(remoteResponse{Score: &score})
	}))
	defer srv.Close()

	host, port := splitTestServerAddr(t, srv)
	j := NewRemoteJudge(host, port, 0.5)

	sub := model.JudgeSubmission{
		Track: model.NewSearchItem("Echoes", "Meddle", "Pink Floyd"),
		Query: model.DownloadableFile{Filename: "Echoes.flac", Username: "u"},
	}
	ok, err := j.Judge(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoteJudgeRejectsBelowCutoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		score := float32(0.1)
		_ = json.NewEncoder(w).Encode(remoteResponse{Score: &score})
	}))
	defer srv.Close()

	host, port := splitTestServerAddr(t, srv)
	j := NewRemoteJudge(host, port, 0.5)

	sub := model.JudgeSubmission{Track: model.NewSearchItem("A", "B", "C"), Query: model.DownloadableFile{Filename: "x"}}
	ok, err := j.Judge(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, ok)
}
