package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all configurable server parameters.
type Config struct {
	Port int

	// DatabaseURL is the Postgres connection string. Empty disables persistence.
	DatabaseURL string

	// RedisURL enables the live-match snapshot cache. Empty disables it.
	RedisURL string

	// AuthBaseURL is the auth provider base URL used to fetch JWKS keys.
	AuthBaseURL string

	// Judge (OpenAI-compatible chat completions endpoint).
	JudgeBaseURL   string
	JudgeAPIKey    string
	JudgeModel     string
	JudgeTimeoutMS int

	// ProblemsFile is the path to the problem catalog JSON.
	ProblemsFile string

	// Matchmaking.
	MatchmakingIntervalMS int
	BaseRatingDiff        int
	WaitScaleMS           int
	MaxProblemRating      int

	// Match lifecycle.
	CountdownTicks      int
	CountdownIntervalMS int
	DuelDurationSec     int
	DuelGraceMS         int
	WinThreshold        int

	// Ratings.
	InitialRating int
	MinRating     int
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Port:                  8080,
		DatabaseURL:           "",
		RedisURL:              "",
		AuthBaseURL:           "",
		JudgeBaseURL:          "https://api.openai.com/v1",
		JudgeAPIKey:           "",
		JudgeModel:            "gpt-4o",
		JudgeTimeoutMS:        60000,
		ProblemsFile:          "assets/questions.json",
		MatchmakingIntervalMS: 2000,
		BaseRatingDiff:        300,
		WaitScaleMS:           60000,
		MaxProblemRating:      1500,
		CountdownTicks:        5,
		CountdownIntervalMS:   1000,
		DuelDurationSec:       300,
		DuelGraceMS:           3000,
		WinThreshold:          3,
		InitialRating:         1000,
		MinRating:             100,
	}
}

// Load builds a Config from defaults with environment variable overrides.
func Load() *Config {
	cfg := Defaults()

	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisURL, "REDIS_URL")
	overrideString(&cfg.AuthBaseURL, "AUTH_BASE_URL")
	overrideString(&cfg.JudgeBaseURL, "JUDGE_BASE_URL")
	overrideString(&cfg.JudgeAPIKey, "JUDGE_API_KEY")
	overrideString(&cfg.JudgeModel, "JUDGE_MODEL")
	overrideInt(&cfg.JudgeTimeoutMS, "JUDGE_TIMEOUT_MS")
	overrideString(&cfg.ProblemsFile, "PROBLEMS_FILE")
	overrideInt(&cfg.MatchmakingIntervalMS, "MATCHMAKING_INTERVAL_MS")
	overrideInt(&cfg.BaseRatingDiff, "BASE_RATING_DIFF")
	overrideInt(&cfg.WaitScaleMS, "WAIT_SCALE_MS")
	overrideInt(&cfg.MaxProblemRating, "MAX_PROBLEM_RATING")
	overrideInt(&cfg.CountdownTicks, "COUNTDOWN_TICKS")
	overrideInt(&cfg.CountdownIntervalMS, "COUNTDOWN_INTERVAL_MS")
	overrideInt(&cfg.DuelDurationSec, "DUEL_DURATION_SEC")
	overrideInt(&cfg.DuelGraceMS, "DUEL_GRACE_MS")
	overrideInt(&cfg.WinThreshold, "WIN_THRESHOLD")
	overrideInt(&cfg.InitialRating, "INITIAL_RATING")
	overrideInt(&cfg.MinRating, "MIN_RATING")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
