package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.Port)
	}
	if cfg.MatchmakingIntervalMS != 2000 {
		t.Errorf("expected MatchmakingIntervalMS=2000, got %d", cfg.MatchmakingIntervalMS)
	}
	if cfg.BaseRatingDiff != 300 {
		t.Errorf("expected BaseRatingDiff=300, got %d", cfg.BaseRatingDiff)
	}
	if cfg.WaitScaleMS != 60000 {
		t.Errorf("expected WaitScaleMS=60000, got %d", cfg.WaitScaleMS)
	}
	if cfg.CountdownTicks != 5 {
		t.Errorf("expected CountdownTicks=5, got %d", cfg.CountdownTicks)
	}
	if cfg.DuelDurationSec != 300 {
		t.Errorf("expected DuelDurationSec=300, got %d", cfg.DuelDurationSec)
	}
	if cfg.WinThreshold != 3 {
		t.Errorf("expected WinThreshold=3, got %d", cfg.WinThreshold)
	}
	if cfg.InitialRating != 1000 {
		t.Errorf("expected InitialRating=1000, got %d", cfg.InitialRating)
	}
	if cfg.MinRating != 100 {
		t.Errorf("expected MinRating=100, got %d", cfg.MinRating)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("BASE_RATING_DIFF", "500")
	os.Setenv("JUDGE_MODEL", "gpt-4o-mini")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("BASE_RATING_DIFF")
		os.Unsetenv("JUDGE_MODEL")
	}()

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected Port=9090 after env override, got %d", cfg.Port)
	}
	if cfg.BaseRatingDiff != 500 {
		t.Errorf("expected BaseRatingDiff=500 after env override, got %d", cfg.BaseRatingDiff)
	}
	if cfg.JudgeModel != "gpt-4o-mini" {
		t.Errorf("expected JudgeModel=gpt-4o-mini after env override, got %q", cfg.JudgeModel)
	}
	// Non-overridden fields should remain default
	if cfg.WaitScaleMS != 60000 {
		t.Errorf("expected WaitScaleMS=60000 (default), got %d", cfg.WaitScaleMS)
	}
}

func TestLoadWithInvalidEnv(t *testing.T) {
	os.Setenv("COUNTDOWN_TICKS", "invalid")
	defer os.Unsetenv("COUNTDOWN_TICKS")

	cfg := Load()

	// Should fall back to default when env value is invalid
	if cfg.CountdownTicks != 5 {
		t.Errorf("expected CountdownTicks=5 (default) with invalid env, got %d", cfg.CountdownTicks)
	}
}
