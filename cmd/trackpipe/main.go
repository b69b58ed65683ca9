// Command trackpipe drives a playlist of tracks through the search, judge,
// download, and persist pipeline once, to quiescence, and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"trackpipe/internal/config"
	"trackpipe/internal/coordinator"
	"trackpipe/internal/judge"
	"trackpipe/internal/logger"
	"trackpipe/internal/peernet"
	"trackpipe/internal/playlist"
	"trackpipe/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	playlistFile := flag.String("playlist-file", "", "path to a JSON array of {title, album, artist} tracks")
	dbPath := flag.String("db", "./trackpipe.db", "path to the sqlite database file")
	flag.Parse()

	attempt := 0
	if flag.NArg() > 0 {
		n, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid attempt_num %q: %v\n", flag.Arg(0), err)
			return 1
		}
		attempt = n
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		return 1
	}
	runID := cfg.RunID
	if attempt > 0 {
		runID = fmt.Sprintf("%s_%d", cfg.RunID, attempt)
	}

	log, logFile, err := logger.New(os.Stdout, "logs", runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		return 1
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *playlistFile == "" {
		log.Error("--playlist-file is required")
		return 1
	}
	source := playlist.FileSource{Path: *playlistFile}
	items, err := source.Fetch(ctx)
	if err != nil {
		log.Error("loading playlist", "path", *playlistFile, "error", err)
		return 1
	}

	sink, err := storage.Open(*dbPath, log)
	if err != nil {
		log.Error("opening database", "path", *dbPath, "error", err)
		return 1
	}
	defer sink.Close()

	downloadDir := filepath.Join(".", "downloads")

	// The peer-network client is an opaque external collaborator (see
	// peernet.Client); no production implementation ships in this module.
	// FakeClient is wired here so the binary is runnable end-to-end out of
	// the box — a real client is a drop-in replacement behind the same
	// interface.
	client := peernet.NewFakeClient()

	j := judge.NewLevenshteinJudge(cfg.JudgeScoreLevenshtein)

	c := coordinator.New(coordinator.Deps{
		Client:      client,
		Judge:       j,
		Sink:        sink,
		Config:      cfg,
		DownloadDir: downloadDir,
		Logger:      log,
	}, len(items))

	log.Info("starting pipeline run", "run_id", runID, "tracks", len(items))

	if err := c.Run(ctx, items); err != nil {
		log.Error("pipeline run failed", "error", err)
		return 1
	}

	log.Info("pipeline run complete", "run_id", runID)
	return 0
}
