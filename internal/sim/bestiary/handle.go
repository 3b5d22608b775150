package bestiary

import "skirmish.gg/internal/sim/encounter"

// Handle is a weak reference into a Roster slot.
type Handle struct {
	r   *Roster
	idx int
	gen uint32
	id  string
}

func (h *Handle) entry() *entry {
	if h == nil || h.r == nil || h.idx < 0 || h.idx >= len(h.r.slots) {
		return nil
	}
	s := h.r.slots[h.idx]
	if s.gen != h.gen || s.e == nil {
		return nil
	}
	return s.e
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Valid() bool { return h.entry() != nil }

func (h *Handle) Alive() bool {
	e := h.entry()
	return e != nil && !e.dead
}

func (h *Handle) Kind() encounter.EnemyKind {
	if e := h.entry(); e != nil {
		return e.kind
	}
	return 0
}

func (h *Handle) Position() encounter.Vec3 {
	if e := h.entry(); e != nil {
		return e.pos
	}
	return encounter.Vec3{}
}

func (h *Handle) LootTable() map[string]int {
	e := h.entry()
	if e == nil {
		return nil
	}
	out := make(map[string]int, len(e.loot))
	for k, v := range e.loot {
		out[k] = v
	}
	return out
}

// OnDeath registers fn for the enemy's death. Registering on a dead or freed
// enemy is a no-op.
func (h *Handle) OnDeath(fn func(encounter.EnemyHandle)) func() {
	e := h.entry()
	if e == nil || e.dead || fn == nil {
		return func() {}
	}
	e.nextSub++
	k := e.nextSub
	e.onDeath[k] = fn
	return func() { delete(e.onDeath, k) }
}
