// Package download submits one file to the peer network and turns the
// resulting status stream into a terminal File or DownloadFailed event.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trackpipe/internal/model"
	"trackpipe/internal/peernet"
)

// musicExtensions are the only filename extensions the pipeline will accept
// a download for.
var musicExtensions = map[string]struct{}{
	".mp3":  {},
	".flac": {},
	".aiff": {},
}

// IsMusicFile reports whether filename's extension marks it as audio the
// pipeline is willing to download. Checked by the coordinator before a
// download worker is even spawned.
func IsMusicFile(filename string) bool {
	_, ok := musicExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// receiveTimeout bounds the gap between consecutive status messages on the
// channel client.Download hands back; it is reset on every message received,
// not on the transfer as a whole, so a slow-but-steady transfer never times
// out on aggregate duration alone.
const receiveTimeout = 60 * time.Second

// Run submits req's file to the peer network and drives the resulting
// status channel to completion message by message, classifying the outcome
// into a File or DownloadFailed event. dest is derived under rootDir from
// the submission's filename; a pre-existing file at dest is not
// overwritten — the destination is suffixed with the track's id instead,
// since skipping would silently drop a legitimate retry.
func Run(ctx context.Context, client peernet.Client, req model.DownloadRequest, rootDir string, logger *slog.Logger) model.Event {
	sub := req.Submission
	dest, err := destinationFor(rootDir, sub)
	if err != nil {
		logger.Error("deriving download destination", "filename", sub.Query.Filename, "error", err)
		return model.DownloadFailedEvent(model.DownloadFailureInfo{
			Request:    req.Request,
			Submission: sub,
			Failure:    model.DownloadFailureUnknown,
		})
	}

	statusCh, err := client.Download(sub.Query.Filename, sub.Query.Username, sub.Query.Size, dest)
	if err != nil {
		logger.Warn("download submission failed", "filename", sub.Query.Filename, "username", sub.Query.Username, "error", err)
		return model.DownloadFailedEvent(model.DownloadFailureInfo{
			Request:    req.Request,
			Submission: sub,
			Failure:    model.DownloadFailureFailed,
		})
	}

	timer := time.NewTimer(receiveTimeout)
	defer timer.Stop()

	var last peernet.DownloadStatus
	for {
		select {
		case <-ctx.Done():
			return model.DownloadFailedEvent(model.DownloadFailureInfo{
				Request:    req.Request,
				Submission: sub,
				Failure:    model.DownloadFailureUnknown,
			})
		case status, ok := <-statusCh:
			if !ok {
				return classify(req, dest, last, logger)
			}
			last = status
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(receiveTimeout)
		case <-timer.C:
			logger.Warn("download timed out waiting for the next status message", "filename", sub.Query.Filename, "username", sub.Query.Username)
			return model.DownloadFailedEvent(model.DownloadFailureInfo{
				Request:    req.Request,
				Submission: sub,
				Failure:    model.DownloadFailureTimedOut,
			})
		}
	}
}

func classify(req model.DownloadRequest, dest string, status peernet.DownloadStatus, logger *slog.Logger) model.Event {
	sub := req.Submission
	switch status.State {
	case peernet.DownloadCompleted:
		return model.FileEvent(model.DownloadedFile{
			Request:    req.Request,
			Submission: sub,
			Path:       dest,
		})
	case peernet.DownloadTimedOut:
		return model.DownloadFailedEvent(model.DownloadFailureInfo{
			Request:    req.Request,
			Submission: sub,
			Failure:    model.DownloadFailureTimedOut,
		})
	default:
		logger.Warn("download failed", "filename", sub.Query.Filename, "username", sub.Query.Username, "state", status.State)
		return model.DownloadFailedEvent(model.DownloadFailureInfo{
			Request:    req.Request,
			Submission: sub,
			Failure:    model.DownloadFailureFailed,
		})
	}
}

// destinationFor derives the on-disk path for sub.Query.Filename under
// rootDir, creating rootDir if needed and suffixing the basename with the
// track's id if a file already occupies that path.
func destinationFor(rootDir string, sub model.JudgeSubmission) (string, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	base := filepath.Base(sub.Query.Filename)
	dest := filepath.Join(rootDir, base)

	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		suffix := strconv.FormatUint(sub.Track.ID, 16)
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		dest = filepath.Join(rootDir, fmt.Sprintf("%s.%s%s", stem, suffix, ext))
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking destination path: %w", err)
	}

	return dest, nil
}
