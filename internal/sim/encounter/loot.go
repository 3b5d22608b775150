package encounter

import (
	"log"
	"sort"
)

// LootAggregator keeps the run-scoped loot ledger. Wave boundaries do not
// touch it; only a new layout or a run reset clears it.
type LootAggregator struct {
	sink LootSink
	log  *log.Logger

	ledger   map[string]int
	credited map[string]bool
	subs     map[string]func()

	// onCollect observes every credited delta, including zero amounts.
	onCollect func(enemyID, resource string, amount int)
}

func NewLootAggregator(sink LootSink, logger *log.Logger) *LootAggregator {
	return &LootAggregator{
		sink:     sink,
		log:      logger,
		ledger:   map[string]int{},
		credited: map[string]bool{},
		subs:     map[string]func(){},
	}
}

// Track subscribes to h's death notification.
func (a *LootAggregator) Track(h EnemyHandle) {
	if !handleUsable(h) {
		return
	}
	id := h.ID()
	if _, ok := a.subs[id]; ok || a.credited[id] {
		return
	}
	a.subs[id] = h.OnDeath(a.OnEnemyDeath)
}

// OnEnemyDeath merges h's loot table into the ledger and forwards each
// positive delta to the sink. An enemy is credited at most once per run.
func (a *LootAggregator) OnEnemyDeath(h EnemyHandle) {
	if !handleUsable(h) {
		return
	}
	id := h.ID()
	if a.credited[id] {
		return
	}
	a.credited[id] = true
	if cancel := a.subs[id]; cancel != nil {
		delete(a.subs, id)
		cancel()
	}

	table := h.LootTable()
	resources := make([]string, 0, len(table))
	for r := range table {
		resources = append(resources, r)
	}
	sort.Strings(resources)

	for _, r := range resources {
		amt := table[r]
		if amt < 0 {
			a.log.Printf("warn: enemy %s: ignoring negative loot %s=%d", id, r, amt)
			continue
		}
		a.ledger[r] += amt
		if amt > 0 && a.sink != nil {
			a.sink.AddToRunLoot(r, amt)
		}
		if a.onCollect != nil {
			a.onCollect(id, r, amt)
		}
	}
}

func (a *LootAggregator) Amount(resource string) int {
	return a.ledger[resource]
}

// Total returns a copy of the ledger; never nil.
func (a *LootAggregator) Total() map[string]int {
	out := make(map[string]int, len(a.ledger))
	for k, v := range a.ledger {
		out[k] = v
	}
	return out
}

// Reset clears the ledger and drops every outstanding death subscription, so
// enemies from the previous run cannot credit the next one.
func (a *LootAggregator) Reset() {
	ids := make([]string, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if cancel := a.subs[id]; cancel != nil {
			cancel()
		}
	}
	a.subs = map[string]func(){}
	a.credited = map[string]bool{}
	a.ledger = map[string]int{}
}
