package encounter

import (
	"bytes"
	"fmt"
	"log"
	"testing"
	"time"

	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/tuning"
)

type fakeEnemy struct {
	id    string
	kind  EnemyKind
	pos   Vec3
	loot  map[string]int
	alive bool
	freed bool

	nextSub int
	subs    map[int]func(EnemyHandle)
}

func (f *fakeEnemy) ID() string                { return f.id }
func (f *fakeEnemy) Kind() EnemyKind           { return f.kind }
func (f *fakeEnemy) Valid() bool               { return !f.freed }
func (f *fakeEnemy) Alive() bool               { return f.alive }
func (f *fakeEnemy) Position() Vec3            { return f.pos }
func (f *fakeEnemy) LootTable() map[string]int { return f.loot }

func (f *fakeEnemy) OnDeath(fn func(EnemyHandle)) func() {
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	return func() { delete(f.subs, id) }
}

func (f *fakeEnemy) kill() {
	if !f.alive {
		return
	}
	f.alive = false
	for _, fn := range f.subs {
		fn(f)
	}
}

type fakeFactory struct {
	loot    map[EnemyKind]map[string]int
	spawned []*fakeEnemy
	refuse  map[int]bool // spawn call indexes to fail
	calls   int
}

func newFakeFactory(cats *catalogs.Catalogs) *fakeFactory {
	f := &fakeFactory{loot: map[EnemyKind]map[string]int{}, refuse: map[int]bool{}}
	for id, def := range cats.Enemies.Defs {
		k, err := ParseEnemyKind(id)
		if err != nil {
			continue
		}
		f.loot[k] = def.Loot
	}
	return f
}

func (f *fakeFactory) Spawn(kind EnemyKind, pos Vec3) (EnemyHandle, error) {
	call := f.calls
	f.calls++
	if f.refuse[call] {
		return nil, fmt.Errorf("pool exhausted")
	}
	loot := map[string]int{}
	for k, v := range f.loot[kind] {
		loot[k] = v
	}
	e := &fakeEnemy{
		id:    fmt.Sprintf("%s-%d", kind, call+1),
		kind:  kind,
		pos:   pos,
		loot:  loot,
		alive: true,
		subs:  map[int]func(EnemyHandle){},
	}
	f.spawned = append(f.spawned, e)
	return e, nil
}

// lastWave returns the enemies spawned by the most recent n factory calls.
func (f *fakeFactory) lastWave(n int) []*fakeEnemy {
	return f.spawned[len(f.spawned)-n:]
}

func killAll(es []*fakeEnemy) {
	for _, e := range es {
		e.kill()
	}
}

type countingSink struct {
	adds  []string
	total map[string]int
}

func (s *countingSink) AddToRunLoot(resource string, amount int) {
	if s.total == nil {
		s.total = map[string]int{}
	}
	s.adds = append(s.adds, fmt.Sprintf("%s=%d", resource, amount))
	s.total[resource] += amount
}

func loadTestConfig(t *testing.T) (*catalogs.Catalogs, tuning.Tuning) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tun, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	return cats, tun
}

type testRig struct {
	enc     *Encounter
	factory *fakeFactory
	sink    *countingSink
	logs    *bytes.Buffer
	events  []Event
}

func newTestRig(t *testing.T, mutate func(*tuning.Tuning)) *testRig {
	t.Helper()
	cats, tun := loadTestConfig(t)
	if mutate != nil {
		mutate(&tun)
	}
	r := &testRig{
		factory: newFakeFactory(cats),
		sink:    &countingSink{},
		logs:    &bytes.Buffer{},
	}
	runs := 0
	enc, err := New(Config{
		Catalogs: cats,
		Tuning:   tun,
		Factory:  r.factory,
		Sink:     r.sink,
		Logger:   log.New(r.logs, "", 0),
		NewRunID: func() string { runs++; return fmt.Sprintf("run-%d", runs) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	enc.Subscribe(ObserverFunc(func(ev Event) { r.events = append(r.events, ev) }))
	r.enc = enc
	return r
}

func (r *testRig) count(kind EventKind) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *testRig) tickN(n int, dt int64) {
	for i := 0; i < n; i++ {
		r.enc.Tick(msDuration(dt))
	}
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
