package encounter

import (
	"bytes"
	"log"
	"reflect"
	"strings"
	"testing"
)

func lootEnemy(id string, loot map[string]int) *fakeEnemy {
	return &fakeEnemy{id: id, kind: KindGrunt, loot: loot, alive: true, subs: map[int]func(EnemyHandle){}}
}

func TestLootAggregator_MergesAcrossEnemies(t *testing.T) {
	sink := &countingSink{}
	a := NewLootAggregator(sink, log.New(&bytes.Buffer{}, "", 0))

	e1 := lootEnemy("e1", map[string]int{"coins": 2, "seeds": 1})
	e2 := lootEnemy("e2", map[string]int{"coins": 3})
	a.Track(e1)
	a.Track(e2)
	e1.kill()
	e2.kill()

	if got := a.Amount("coins"); got != 5 {
		t.Fatalf("coins=%d want 5", got)
	}
	if got := a.Amount("seeds"); got != 1 {
		t.Fatalf("seeds=%d want 1", got)
	}
	if got := a.Amount("iron_scrap"); got != 0 {
		t.Fatalf("untracked resource=%d want 0", got)
	}
	want := map[string]int{"coins": 5, "seeds": 1}
	if !reflect.DeepEqual(sink.total, want) {
		t.Fatalf("sink=%v want %v", sink.total, want)
	}
}

func TestLootAggregator_CreditsOnce(t *testing.T) {
	sink := &countingSink{}
	a := NewLootAggregator(sink, log.New(&bytes.Buffer{}, "", 0))
	e := lootEnemy("e1", map[string]int{"coins": 2})
	a.Track(e)
	a.Track(e)
	e.kill()
	a.OnEnemyDeath(e)

	if a.Amount("coins") != 2 || len(sink.adds) != 1 {
		t.Fatalf("coins=%d adds=%v", a.Amount("coins"), sink.adds)
	}
	if len(e.subs) != 0 {
		t.Fatalf("subscription not released: %d", len(e.subs))
	}
}

func TestLootAggregator_SkipsNegativeAndZero(t *testing.T) {
	sink := &countingSink{}
	var buf bytes.Buffer
	a := NewLootAggregator(sink, log.New(&buf, "", 0))
	a.OnEnemyDeath(lootEnemy("e1", map[string]int{"coins": -4, "dust": 0, "seeds": 2}))

	if a.Amount("coins") != 0 {
		t.Fatalf("negative loot was merged")
	}
	if _, ok := a.Total()["dust"]; !ok {
		t.Fatalf("zero entry should still appear in the ledger")
	}
	if !reflect.DeepEqual(sink.adds, []string{"seeds=2"}) {
		t.Fatalf("sink adds=%v", sink.adds)
	}
	if !strings.Contains(buf.String(), "negative loot") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestLootAggregator_TotalIsACopy(t *testing.T) {
	a := NewLootAggregator(nil, log.New(&bytes.Buffer{}, "", 0))
	if tot := a.Total(); tot == nil || len(tot) != 0 {
		t.Fatalf("empty total=%v", tot)
	}
	a.OnEnemyDeath(lootEnemy("e1", map[string]int{"coins": 1}))
	tot := a.Total()
	tot["coins"] = 99
	if a.Amount("coins") != 1 {
		t.Fatalf("Total leaked internal map")
	}
}

func TestLootAggregator_ResetDropsSubscriptions(t *testing.T) {
	sink := &countingSink{}
	a := NewLootAggregator(sink, log.New(&bytes.Buffer{}, "", 0))
	e := lootEnemy("e1", map[string]int{"coins": 2})
	a.Track(e)
	a.OnEnemyDeath(lootEnemy("e0", map[string]int{"coins": 1}))

	a.Reset()
	if len(e.subs) != 0 {
		t.Fatalf("reset left %d subscriptions", len(e.subs))
	}
	e.kill()
	if a.Amount("coins") != 0 {
		t.Fatalf("stale enemy credited the next run")
	}
	// A reset run may credit an id again.
	a.OnEnemyDeath(lootEnemy("e0", map[string]int{"coins": 1}))
	if a.Amount("coins") != 1 {
		t.Fatalf("coins=%d want 1", a.Amount("coins"))
	}
}

func TestLootAggregator_IgnoresDanglingHandles(t *testing.T) {
	a := NewLootAggregator(nil, log.New(&bytes.Buffer{}, "", 0))
	e := lootEnemy("e1", map[string]int{"coins": 2})
	e.freed = true
	a.Track(e)
	a.OnEnemyDeath(e)
	var typedNil *fakeEnemy
	a.OnEnemyDeath(typedNil)
	a.OnEnemyDeath(nil)
	if a.Amount("coins") != 0 {
		t.Fatalf("freed enemy credited")
	}
}
