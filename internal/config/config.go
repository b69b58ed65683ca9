// Package config loads pipeline configuration from the process environment
// (optionally seeded from a .env file), the same env-var-first approach the
// original implementation used.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// RetryConfig bundles the per-stage attempt caps and backoff knobs the
// retry policy needs.
type RetryConfig struct {
	MaxSearchRetries   uint64
	MaxJudgeRetries    uint64
	MaxDownloadRetries uint64
	BaseBackoffSecs    uint64
	MaxBackoffSecs     uint64
}

// SearchConfig bundles the search worker's timeout knobs.
type SearchConfig struct {
	BaseSearchTimeoutSecs uint64
	MaxSearchTimeoutSecs  uint64
}

// Config is every configurable value of the pipeline, defaults applied.
type Config struct {
	UserName     string
	UserPassword string
	ListenPort   int

	Search SearchConfig
	Retry  RetryConfig

	MaxConcurrentSearches  int
	MaxConcurrentJudges    int
	MaxConcurrentDownloads int

	JudgeScoreLevenshtein float32
	JudgeScoreLLM         *float32

	RunID string
}

// Load reads configuration from a .env file (if present) layered under the
// real process environment, applying spec-mandated defaults for anything
// absent. A present-but-malformed numeric value is a fatal error; a missing
// value silently falls back to its default.
func Load() (Config, error) {
	// Best-effort: a missing .env file is not an error, mirroring the
	// original implementation's dotenv().ok()-style tolerance.
	_ = godotenv.Load()

	cfg := Config{
		UserName:     getEnvDefault("USER_NAME", "default"),
		UserPassword: getEnvDefault("USER_PASSWORD", "123456"),
		RunID:        getEnvDefault("RUN_ID", "default_run_name"),
	}

	var err error
	if cfg.ListenPort, err = getEnvInt("LISTEN_PORT", 3124); err != nil {
		return Config{}, err
	}

	var baseTimeout, maxTimeout int
	if baseTimeout, err = getEnvInt("SEARCH_TIMEOUT_SECS", 10); err != nil {
		return Config{}, err
	}
	if maxTimeout, err = getEnvInt("MAX_SEARCH_TIMEOUT_SECS", 120); err != nil {
		return Config{}, err
	}
	cfg.Search = SearchConfig{
		BaseSearchTimeoutSecs: uint64(baseTimeout),
		MaxSearchTimeoutSecs:  uint64(maxTimeout),
	}

	var maxSearchRetries, maxJudgeRetries, maxDownloadRetries int
	if maxSearchRetries, err = getEnvInt("MAX_SEARCH_RETRIES", 2); err != nil {
		return Config{}, err
	}
	if maxJudgeRetries, err = getEnvInt("MAX_JUDGE_RETRIES", 2); err != nil {
		return Config{}, err
	}
	if maxDownloadRetries, err = getEnvInt("MAX_DOWNLOAD_RETRIES", 2); err != nil {
		return Config{}, err
	}
	var baseBackoff, maxBackoff int
	if baseBackoff, err = getEnvInt("BASE_BACKOFF_SECS", 5); err != nil {
		return Config{}, err
	}
	if maxBackoff, err = getEnvInt("MAX_BACKOFF_SECS", 60); err != nil {
		return Config{}, err
	}
	cfg.Retry = RetryConfig{
		MaxSearchRetries:   uint64(maxSearchRetries),
		MaxJudgeRetries:    uint64(maxJudgeRetries),
		MaxDownloadRetries: uint64(maxDownloadRetries),
		BaseBackoffSecs:    uint64(baseBackoff),
		MaxBackoffSecs:     uint64(maxBackoff),
	}

	if cfg.MaxConcurrentSearches, err = getEnvInt("MAX_CONCURRENT_SEARCHES", 4); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentJudges, err = getEnvInt("MAX_CONCURRENT_JUDGES", 8); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentDownloads, err = getEnvInt("MAX_CONCURRENT_DOWNLOADS", 2); err != nil {
		return Config{}, err
	}

	levCutoff, err := getEnvFloat("JUDGE_SCORE_LEVENSHTEIN", 0.75)
	if err != nil {
		return Config{}, err
	}
	cfg.JudgeScoreLevenshtein = levCutoff

	if raw, ok := os.LookupEnv("JUDGE_SCORE_LLM"); ok && raw != "" {
		v, parseErr := strconv.ParseFloat(raw, 32)
		if parseErr != nil {
			return Config{}, fmt.Errorf("parsing JUDGE_SCORE_LLM: %w", parseErr)
		}
		v32 := float32(v)
		cfg.JudgeScoreLLM = &v32
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, def float32) (float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return float32(v), nil
}
