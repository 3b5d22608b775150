package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz        int  `yaml:"tick_rate_hz"`
	TotalWaves        int  `yaml:"total_waves"`
	AutoProgress      bool `yaml:"auto_progress"`
	TransitionDelayMs int  `yaml:"transition_delay_ms"`

	Arena    Arena    `yaml:"arena"`
	Bestiary Bestiary `yaml:"bestiary"`
}

// Arena holds the layout placement constants. They feed layout generation and
// therefore the layout digest: changing any of them changes every layout.
type Arena struct {
	MinSpawnDistance  float64 `yaml:"min_spawn_distance"`
	SpawnInset        float64 `yaml:"spawn_inset"`
	WallThickness     float64 `yaml:"wall_thickness"`
	CoverMinSize      float64 `yaml:"cover_min_size"`
	CoverMaxSize      float64 `yaml:"cover_max_size"`
	CoverPadding      float64 `yaml:"cover_padding"`
	CoverAttempts     int     `yaml:"cover_attempts"`
	MaxAbandonedCover int     `yaml:"max_abandoned_cover"`
	SpawnClearance    float64 `yaml:"spawn_clearance"`
	CenterClearance   float64 `yaml:"center_clearance"`
}

type Bestiary struct {
	// CorpseTicks is how long a dead enemy stays addressable before its slot is freed.
	CorpseTicks int `yaml:"corpse_ticks"`
	// MaxEnemies caps live enemies; 0 means unbounded.
	MaxEnemies int `yaml:"max_enemies"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		TickRateHz:        20,
		TotalWaves:        5,
		AutoProgress:      true,
		TransitionDelayMs: 3000,
		Arena: Arena{
			MinSpawnDistance:  5.0,
			SpawnInset:        1.5,
			WallThickness:     1.0,
			CoverMinSize:      1.5,
			CoverMaxSize:      3.5,
			CoverPadding:      1.0,
			CoverAttempts:     6,
			MaxAbandonedCover: 2,
			SpawnClearance:    2.0,
			CenterClearance:   3.0,
		},
		Bestiary: Bestiary{CorpseTicks: 40, MaxEnemies: 64},
	}
}

// Load reads path on top of Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.TotalWaves <= 0 {
		return fmt.Errorf("total_waves must be > 0")
	}
	if t.TransitionDelayMs < 0 {
		return fmt.Errorf("transition_delay_ms must be >= 0")
	}
	a := t.Arena
	if a.MinSpawnDistance < 0 {
		return fmt.Errorf("arena.min_spawn_distance must be >= 0")
	}
	if a.SpawnInset < 0 || a.WallThickness <= 0 {
		return fmt.Errorf("arena.spawn_inset must be >= 0 and arena.wall_thickness > 0")
	}
	if a.CoverMinSize <= 0 || a.CoverMaxSize < a.CoverMinSize {
		return fmt.Errorf("arena cover size range invalid: [%v, %v]", a.CoverMinSize, a.CoverMaxSize)
	}
	if a.CoverAttempts <= 0 {
		return fmt.Errorf("arena.cover_attempts must be > 0")
	}
	if a.MaxAbandonedCover < 0 || a.MaxAbandonedCover > 2 {
		return fmt.Errorf("arena.max_abandoned_cover must be in [0, 2]")
	}
	if t.Bestiary.CorpseTicks < 0 {
		return fmt.Errorf("bestiary.corpse_ticks must be >= 0")
	}
	if t.Bestiary.MaxEnemies < 0 {
		return fmt.Errorf("bestiary.max_enemies must be >= 0")
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	if t.TickRateHz <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) TransitionDelay() time.Duration {
	return time.Duration(t.TransitionDelayMs) * time.Millisecond
}

// Digest hashes the values actually applied (canonical JSON).
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
