package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.TotalWaves != 5 {
		t.Fatalf("total_waves=%d want 5", tune.TotalWaves)
	}
	if tune.Arena.MinSpawnDistance != 5.0 {
		t.Fatalf("min_spawn_distance=%v want 5", tune.Arena.MinSpawnDistance)
	}
	if got := tune.TickInterval(); got != 50*time.Millisecond {
		t.Fatalf("tick interval=%v", got)
	}
}

func TestLoad_PartialOverridesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("total_waves: 9\narena:\n  cover_attempts: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.TotalWaves != 9 || tune.Arena.CoverAttempts != 3 {
		t.Fatalf("overrides not applied: %+v", tune)
	}
	if tune.TickRateHz != Defaults().TickRateHz {
		t.Fatalf("tick_rate_hz lost its default: %d", tune.TickRateHz)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
	}{
		{"zero tick rate", func(t *Tuning) { t.TickRateHz = 0 }},
		{"zero waves", func(t *Tuning) { t.TotalWaves = 0 }},
		{"negative delay", func(t *Tuning) { t.TransitionDelayMs = -1 }},
		{"inverted cover sizes", func(t *Tuning) { t.Arena.CoverMaxSize = 0.5 }},
		{"too many abandoned", func(t *Tuning) { t.Arena.MaxAbandonedCover = 3 }},
		{"no cover attempts", func(t *Tuning) { t.Arena.CoverAttempts = 0 }},
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tune := Defaults()
			tc.mut(&tune)
			if err := tune.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDigest_TracksValues(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if a.Digest() != b.Digest() || len(a.Digest()) != 64 {
		t.Fatalf("digest unstable: %s vs %s", a.Digest(), b.Digest())
	}
	b.TransitionDelayMs++
	if a.Digest() == b.Digest() {
		t.Fatalf("digest ignored transition_delay_ms")
	}
}
