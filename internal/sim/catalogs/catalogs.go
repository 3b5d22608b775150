package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Templates TemplateCatalog
	Waves     WaveCatalog
	Enemies   EnemyCatalog
}

// TemplateCatalog keeps file order: layout generation indexes it by seed hash.
type TemplateCatalog struct {
	Defs   []TemplateDef
	ByID   map[string]TemplateDef
	Digest string
}

type TemplateDef struct {
	ID          string  `json:"id"`
	Width       float64 `json:"width"`
	Depth       float64 `json:"depth"`
	SpawnPoints int     `json:"spawn_points"`
	Cover       int     `json:"cover"`
}

// WaveCatalog is ordered; wave N uses Defs[(N-1) mod len].
type WaveCatalog struct {
	Defs   []WaveDef
	Digest string
}

type WaveDef struct {
	Entries []WaveEntry `json:"entries"`
}

type WaveEntry struct {
	Enemy string `json:"enemy"`
	Count int    `json:"count"`
}

type EnemyCatalog struct {
	Palette []string
	Defs    map[string]EnemyDef
	Digest  string
}

type EnemyDef struct {
	ID   string         `json:"id"`
	HP   int            `json:"hp"`
	Loot map[string]int `json:"loot,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadEnemies(filepath.Join(configDir, "enemies.json"), &c.Enemies); err != nil {
		return nil, err
	}
	if err := loadTemplates(filepath.Join(configDir, "templates.json"), &c.Templates); err != nil {
		return nil, err
	}
	if err := loadWaves(filepath.Join(configDir, "waves.json"), &c.Waves, &c.Enemies); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digest covers all three catalogs in load order.
func (c *Catalogs) Digest() string {
	if c == nil {
		return ""
	}
	return sha256Hex([]byte(c.Templates.Digest + c.Waves.Digest + c.Enemies.Digest))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadEnemies(path string, out *EnemyCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateDoc("enemies", raw); err != nil {
		return fmt.Errorf("enemies.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []EnemyDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("enemies.json: %w", err)
	}
	out.Defs = map[string]EnemyDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("enemies.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadTemplates(path string, out *TemplateCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateDoc("templates", raw); err != nil {
		return fmt.Errorf("templates.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Defs); err != nil {
		return fmt.Errorf("templates.json: %w", err)
	}
	out.ByID = make(map[string]TemplateDef, len(out.Defs))
	for _, t := range out.Defs {
		if _, dup := out.ByID[t.ID]; dup {
			return fmt.Errorf("templates.json: duplicate id %s", t.ID)
		}
		out.ByID[t.ID] = t
	}
	return nil
}

func loadWaves(path string, out *WaveCatalog, enemies *EnemyCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateDoc("waves", raw); err != nil {
		return fmt.Errorf("waves.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, &out.Defs); err != nil {
		return fmt.Errorf("waves.json: %w", err)
	}
	for i, w := range out.Defs {
		for _, e := range w.Entries {
			if _, ok := enemies.Defs[e.Enemy]; !ok {
				return fmt.Errorf("waves.json: wave %d references unknown enemy %s", i+1, e.Enemy)
			}
		}
	}
	return nil
}
