package encounter

import (
	"fmt"
	"math"

	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter/logic/mathx"
	"skirmish.gg/internal/sim/tuning"
)

const (
	wallHeight        = 3.0
	coverHeight       = 1.2
	spawnPointDraws   = 32
	streamSpawnPoints = "spawn_points"
	streamCover       = "cover"
)

// LayoutGenerator builds arena layouts as a pure function of the seed, the
// template list order and the arena tuning.
type LayoutGenerator struct {
	templates []catalogs.TemplateDef
	arena     tuning.Arena

	current *Layout
}

func NewLayoutGenerator(templates []catalogs.TemplateDef, arena tuning.Arena) (*LayoutGenerator, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("layout: no templates")
	}
	for _, t := range templates {
		if err := checkTemplate(t, arena); err != nil {
			return nil, err
		}
	}
	return &LayoutGenerator{templates: templates, arena: arena}, nil
}

// checkTemplate rejects templates whose inset rectangle cannot hold a spawn
// point at the minimum distance or a cover object of the maximum size.
func checkTemplate(t catalogs.TemplateDef, a tuning.Arena) error {
	hw := t.Width/2 - a.SpawnInset
	hd := t.Depth/2 - a.SpawnInset
	if hw <= 0 || hd <= 0 {
		return fmt.Errorf("template %s: inset %.2f leaves no playable area", t.ID, a.SpawnInset)
	}
	if hw*hw+hd*hd < a.MinSpawnDistance*a.MinSpawnDistance {
		return fmt.Errorf("template %s: no point is %.2f from center", t.ID, a.MinSpawnDistance)
	}
	if 2*hw < a.CoverMaxSize || 2*hd < a.CoverMaxSize {
		return fmt.Errorf("template %s: too small for cover of size %.2f", t.ID, a.CoverMaxSize)
	}
	if t.SpawnPoints <= 0 || t.Cover < 0 {
		return fmt.Errorf("template %s: bad counts spawn_points=%d cover=%d", t.ID, t.SpawnPoints, t.Cover)
	}
	return nil
}

func (g *LayoutGenerator) Current() *Layout { return g.current }

// Template returns the template seed selects.
func (g *LayoutGenerator) Template(seed int64) catalogs.TemplateDef {
	return g.templates[mathx.Hash1(seed)%uint64(len(g.templates))]
}

// Generate replaces the current layout with the one derived from seed.
func (g *LayoutGenerator) Generate(seed int64) *Layout {
	g.current = nil

	t := g.Template(seed)
	l := &Layout{
		Seed:        seed,
		TemplateID:  t.ID,
		Width:       t.Width,
		Depth:       t.Depth,
		CoverTarget: t.Cover,
	}
	l.Boundaries = g.boundaries(t)
	l.SpawnPoints = g.spawnPoints(seed, t)
	l.Covers = g.covers(seed, t, l.SpawnPoints)

	g.current = l
	return l
}

func (g *LayoutGenerator) boundaries(t catalogs.TemplateDef) []Boundary {
	th := g.arena.WallThickness
	hw, hd := t.Width/2, t.Depth/2
	mk := func(side Side, pos, size Vec3) Boundary {
		return Boundary{Side: side, Pos: pos, Size: size, Layer: LayerEnvironment, Mask: 0}
	}
	return []Boundary{
		mk(SideNorth, Vec3{X: 0, Z: hd + th/2}, Vec3{X: t.Width + 2*th, Y: wallHeight, Z: th}),
		mk(SideSouth, Vec3{X: 0, Z: -hd - th/2}, Vec3{X: t.Width + 2*th, Y: wallHeight, Z: th}),
		mk(SideEast, Vec3{X: hw + th/2, Z: 0}, Vec3{X: th, Y: wallHeight, Z: t.Depth + 2*th}),
		mk(SideWest, Vec3{X: -hw - th/2, Z: 0}, Vec3{X: th, Y: wallHeight, Z: t.Depth + 2*th}),
	}
}

// spawnPoints samples the inset rectangle until a draw clears the minimum
// distance. A point that exhausts its draws takes the inset corner of the last
// draw's quadrant, which checkTemplate guarantees is far enough out.
func (g *LayoutGenerator) spawnPoints(seed int64, t catalogs.TemplateDef) []Vec3 {
	hw := t.Width/2 - g.arena.SpawnInset
	hd := t.Depth/2 - g.arena.SpawnInset
	minSq := g.arena.MinSpawnDistance * g.arena.MinSpawnDistance

	rng := mathx.NewStream(seed, streamSpawnPoints)
	out := make([]Vec3, 0, t.SpawnPoints)
	for i := 0; i < t.SpawnPoints; i++ {
		var x, z float64
		ok := false
		for a := 0; a < spawnPointDraws; a++ {
			x = rng.Range(-hw, hw)
			z = rng.Range(-hd, hd)
			if x*x+z*z >= minSq {
				ok = true
				break
			}
		}
		if !ok {
			x = math.Copysign(hw, x)
			z = math.Copysign(hd, z)
		}
		out = append(out, Vec3{X: x, Y: 0, Z: z})
	}
	return out
}

type rect struct {
	x, z, w, d float64
}

func (r rect) overlaps(o rect, pad float64) bool {
	return math.Abs(r.x-o.x)*2 < r.w+o.w+2*pad &&
		math.Abs(r.z-o.z)*2 < r.d+o.d+2*pad
}

func (r rect) nearCircle(cx, cz, radius float64) bool {
	nx := mathx.Clamp(cx, r.x-r.w/2, r.x+r.w/2)
	nz := mathx.Clamp(cz, r.z-r.d/2, r.z+r.d/2)
	dx, dz := cx-nx, cz-nz
	return dx*dx+dz*dz < radius*radius
}

// covers places up to t.Cover obstacles. Each slot gets CoverAttempts random
// candidates; the first MaxAbandonedCover slots that run out are abandoned,
// later ones fall back to scanning a fixed lattice.
func (g *LayoutGenerator) covers(seed int64, t catalogs.TemplateDef, spawns []Vec3) []Cover {
	a := g.arena
	hw := t.Width/2 - a.SpawnInset
	hd := t.Depth/2 - a.SpawnInset

	rng := mathx.NewStream(seed, streamCover)
	placed := make([]rect, 0, t.Cover)
	fits := func(r rect) bool {
		if r.nearCircle(0, 0, a.CenterClearance) {
			return false
		}
		for _, sp := range spawns {
			if r.nearCircle(sp.X, sp.Z, a.SpawnClearance) {
				return false
			}
		}
		for _, o := range placed {
			if r.overlaps(o, a.CoverPadding) {
				return false
			}
		}
		return true
	}

	abandoned := 0
	for slot := 0; slot < t.Cover; slot++ {
		var cand rect
		ok := false
		for try := 0; try < a.CoverAttempts; try++ {
			w := rng.Range(a.CoverMinSize, a.CoverMaxSize)
			d := rng.Range(a.CoverMinSize, a.CoverMaxSize)
			cand = rect{
				x: rng.Range(-hw+w/2, hw-w/2),
				z: rng.Range(-hd+d/2, hd-d/2),
				w: w,
				d: d,
			}
			if fits(cand) {
				ok = true
				break
			}
		}
		if !ok && abandoned < a.MaxAbandonedCover {
			abandoned++
			continue
		}
		if !ok {
			cand, ok = g.latticeSlot(rng, hw, hd, cand.w, cand.d, fits)
		}
		if ok {
			placed = append(placed, cand)
		}
	}

	out := make([]Cover, 0, len(placed))
	for i, r := range placed {
		out = append(out, Cover{
			ID:    fmt.Sprintf("cover-%d", i+1),
			Pos:   Vec3{X: r.x, Y: 0, Z: r.z},
			Size:  Vec3{X: r.w, Y: coverHeight, Z: r.d},
			Layer: LayerEnvironment,
			Mask:  0,
		})
	}
	return out
}

func (g *LayoutGenerator) latticeSlot(rng *mathx.Stream, hw, hd, w, d float64, fits func(rect) bool) (rect, bool) {
	step := g.arena.CoverMaxSize + g.arena.CoverPadding
	cols := int((2*hw-g.arena.CoverMaxSize)/step) + 1
	rows := int((2*hd-g.arena.CoverMaxSize)/step) + 1
	n := cols * rows
	off := rng.Intn(n)
	for j := 0; j < n; j++ {
		idx := (off + j) % n
		r := rect{
			x: -hw + g.arena.CoverMaxSize/2 + float64(idx%cols)*step,
			z: -hd + g.arena.CoverMaxSize/2 + float64(idx/cols)*step,
			w: w,
			d: d,
		}
		if fits(r) {
			return r, true
		}
	}
	return rect{}, false
}
