package bestiary

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter"
	"skirmish.gg/internal/sim/tuning"
)

type Stats struct {
	HP   int
	Loot map[string]int
}

// Enemy is a read-only view of a roster entry.
type Enemy struct {
	ID       string              `json:"id"`
	Kind     encounter.EnemyKind `json:"-"`
	KindName string              `json:"kind"`
	HP       int                 `json:"hp"`
	MaxHP    int                 `json:"max_hp"`
	Pos      encounter.Vec3      `json:"pos"`
	Dead     bool                `json:"dead"`
}

type entry struct {
	id       string
	kind     encounter.EnemyKind
	hp       int
	maxHP    int
	pos      encounter.Vec3
	loot     map[string]int
	dead     bool
	diedTick uint64

	nextSub int
	onDeath map[int]func(encounter.EnemyHandle)
}

type slot struct {
	gen uint32
	e   *entry
}

// Roster owns every enemy in the arena. Slots are reused after a corpse is
// reaped; the generation counter makes stale handles resolve to nothing.
// Roster is not safe for concurrent use.
type Roster struct {
	stats       map[encounter.EnemyKind]Stats
	corpseTicks uint64
	maxAlive    int
	log         *log.Logger

	slots []slot
	free  []int
	byID  map[string]int
	alive int

	tick   uint64
	serial uint64
}

func NewRoster(enemies catalogs.EnemyCatalog, cfg tuning.Bestiary, logger *log.Logger) (*Roster, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	stats := make(map[encounter.EnemyKind]Stats, len(enemies.Defs))
	for _, k := range encounter.AllKinds() {
		def, ok := enemies.Defs[k.String()]
		if !ok {
			return nil, fmt.Errorf("bestiary: enemies.json has no entry for %s", k)
		}
		if def.HP <= 0 {
			return nil, fmt.Errorf("bestiary: %s hp must be > 0", k)
		}
		stats[k] = Stats{HP: def.HP, Loot: def.Loot}
	}
	return &Roster{
		stats:       stats,
		corpseTicks: uint64(cfg.CorpseTicks),
		maxAlive:    cfg.MaxEnemies,
		log:         logger,
		byID:        map[string]int{},
	}, nil
}

func (r *Roster) StatsFor(kind encounter.EnemyKind) (Stats, bool) {
	s, ok := r.stats[kind]
	return s, ok
}

// Spawn implements encounter.EnemyFactory.
func (r *Roster) Spawn(kind encounter.EnemyKind, pos encounter.Vec3) (encounter.EnemyHandle, error) {
	st, ok := r.stats[kind]
	if !ok {
		return nil, fmt.Errorf("bestiary: unknown kind %s", kind)
	}
	if r.maxAlive > 0 && r.alive >= r.maxAlive {
		return nil, fmt.Errorf("bestiary: roster full (%d alive)", r.alive)
	}
	r.serial++
	e := &entry{
		id:      fmt.Sprintf("%s-%d", strings.ToLower(kind.String()), r.serial),
		kind:    kind,
		hp:      st.HP,
		maxHP:   st.HP,
		pos:     pos,
		loot:    st.Loot,
		onDeath: map[int]func(encounter.EnemyHandle){},
	}

	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].gen++
		r.slots[idx].e = e
	} else {
		idx = len(r.slots)
		r.slots = append(r.slots, slot{gen: 1, e: e})
	}
	r.byID[e.id] = idx
	r.alive++
	return r.handle(idx), nil
}

func (r *Roster) handle(idx int) *Handle {
	return &Handle{r: r, idx: idx, gen: r.slots[idx].gen, id: r.slots[idx].e.id}
}

// Lookup returns a fresh handle for a live or unreaped enemy.
func (r *Roster) Lookup(id string) (*Handle, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.handle(idx), true
}

// Damage subtracts amount from the enemy's hp and kills it at zero.
func (r *Roster) Damage(id string, amount int) (killed bool, err error) {
	if amount < 0 {
		return false, fmt.Errorf("bestiary: negative damage %d", amount)
	}
	e, err := r.liveEntry(id)
	if err != nil {
		return false, err
	}
	e.hp -= amount
	if e.hp > 0 {
		return false, nil
	}
	e.hp = 0
	r.die(e)
	return true, nil
}

func (r *Roster) Kill(id string) error {
	e, err := r.liveEntry(id)
	if err != nil {
		return err
	}
	e.hp = 0
	r.die(e)
	return nil
}

func (r *Roster) liveEntry(id string) (*entry, error) {
	idx, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("bestiary: no enemy %q", id)
	}
	e := r.slots[idx].e
	if e.dead {
		return nil, fmt.Errorf("bestiary: enemy %q is already dead", id)
	}
	return e, nil
}

func (r *Roster) die(e *entry) {
	e.dead = true
	e.diedTick = r.tick
	r.alive--

	subs := make([]int, 0, len(e.onDeath))
	for k := range e.onDeath {
		subs = append(subs, k)
	}
	sort.Ints(subs)
	fns := make([]func(encounter.EnemyHandle), 0, len(subs))
	for _, k := range subs {
		fns = append(fns, e.onDeath[k])
	}
	e.onDeath = map[int]func(encounter.EnemyHandle){}

	h := r.handle(r.byID[e.id])
	for _, fn := range fns {
		fn(h)
	}
}

// Step advances the roster clock and reaps corpses older than the corpse delay.
func (r *Roster) Step() int {
	r.tick++
	return r.Reap()
}

// Reap frees every corpse that has lain for at least the corpse delay.
// Handles to reaped enemies stop resolving.
func (r *Roster) Reap() int {
	n := 0
	for idx := range r.slots {
		e := r.slots[idx].e
		if e == nil || !e.dead || r.tick-e.diedTick < r.corpseTicks {
			continue
		}
		delete(r.byID, e.id)
		r.slots[idx].e = nil
		r.free = append(r.free, idx)
		n++
	}
	return n
}

// Clear frees every enemy at once, dead or alive, without death callbacks.
func (r *Roster) Clear() {
	for idx := range r.slots {
		if r.slots[idx].e == nil {
			continue
		}
		r.slots[idx].e = nil
		r.free = append(r.free, idx)
	}
	r.byID = map[string]int{}
	r.alive = 0
}

func (r *Roster) Alive() int { return r.alive }

// Enemies lists live and unreaped enemies ordered by id.
func (r *Roster) Enemies() []Enemy {
	out := make([]Enemy, 0, len(r.byID))
	for _, idx := range r.byID {
		e := r.slots[idx].e
		out = append(out, Enemy{
			ID:       e.id,
			Kind:     e.kind,
			KindName: e.kind.String(),
			HP:       e.hp,
			MaxHP:    e.maxHP,
			Pos:      e.pos,
			Dead:     e.dead,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
