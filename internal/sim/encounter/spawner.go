package encounter

import (
	"fmt"
	"log"

	"skirmish.gg/internal/sim/catalogs"
)

type WaveUnit struct {
	Kind  EnemyKind
	Count int
}

type WaveConfig struct {
	Units []WaveUnit
}

func (c WaveConfig) Size() int {
	n := 0
	for _, u := range c.Units {
		n += u.Count
	}
	return n
}

// WaveSpawner turns a wave number into enemies placed round-robin on the
// layout's spawn points.
type WaveSpawner struct {
	factory EnemyFactory
	waves   []WaveConfig
	log     *log.Logger
}

func NewWaveSpawner(factory EnemyFactory, defs []catalogs.WaveDef, logger *log.Logger) (*WaveSpawner, error) {
	if factory == nil {
		return nil, fmt.Errorf("spawner: nil enemy factory")
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("spawner: empty wave catalog")
	}
	waves := make([]WaveConfig, 0, len(defs))
	for i, d := range defs {
		var wc WaveConfig
		for _, e := range d.Entries {
			kind, err := ParseEnemyKind(e.Enemy)
			if err != nil {
				return nil, fmt.Errorf("spawner: wave %d: %w", i+1, err)
			}
			if e.Count <= 0 {
				return nil, fmt.Errorf("spawner: wave %d: %s count must be > 0", i+1, e.Enemy)
			}
			wc.Units = append(wc.Units, WaveUnit{Kind: kind, Count: e.Count})
		}
		waves = append(waves, wc)
	}
	return &WaveSpawner{factory: factory, waves: waves, log: logger}, nil
}

func (s *WaveSpawner) CatalogLen() int { return len(s.waves) }

// ConfigIndex maps wave n (n >= 1) onto the catalog cyclically, 0-based.
func (s *WaveSpawner) ConfigIndex(n int) int {
	return (n - 1) % len(s.waves)
}

func (s *WaveSpawner) ConfigFor(n int) WaveConfig {
	return s.waves[s.ConfigIndex(n)]
}

// Spawn instantiates wave n. Unit i of the wave, counted across all entries in
// order, goes to points[i mod len(points)]. A unit the factory refuses is
// skipped but still consumes its index.
func (s *WaveSpawner) Spawn(n int, points []Vec3) []EnemyHandle {
	if n <= 0 || len(points) == 0 {
		return nil
	}
	cfg := s.ConfigFor(n)
	out := make([]EnemyHandle, 0, cfg.Size())
	i := 0
	for _, u := range cfg.Units {
		for c := 0; c < u.Count; c++ {
			pos := points[i%len(points)]
			i++
			h, err := s.factory.Spawn(u.Kind, pos)
			if err != nil {
				s.log.Printf("warn: wave %d: spawn %s at (%.2f, %.2f): %v", n, u.Kind, pos.X, pos.Z, err)
				continue
			}
			if h == nil {
				s.log.Printf("warn: wave %d: factory returned no handle for %s", n, u.Kind)
				continue
			}
			out = append(out, h)
		}
	}
	return out
}
