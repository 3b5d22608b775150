package encounter

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"skirmish.gg/internal/sim/tuning"
)

func aliveOf(f *fakeFactory) []*fakeEnemy {
	var out []*fakeEnemy
	for _, e := range f.spawned {
		if e.alive {
			out = append(out, e)
		}
	}
	return out
}

func TestEncounter_Seed12345Scenario(t *testing.T) {
	r := newTestRig(t, nil)
	r.enc.GenerateArena(12345)
	l := r.enc.Layout()
	if l.TemplateID != "crossroads" || len(l.SpawnPoints) != 6 {
		t.Fatalf("template=%s spawn points=%d", l.TemplateID, len(l.SpawnPoints))
	}

	r.enc.SetWaveTransitionDelay(100 * time.Millisecond)
	r.enc.SpawnWave(1)
	if len(r.factory.spawned) != 3 {
		t.Fatalf("wave 1 spawned %d", len(r.factory.spawned))
	}
	for i, e := range r.factory.spawned {
		if e.kind != KindGrunt || e.pos != l.SpawnPoints[i] {
			t.Fatalf("unit %d: %s at %+v", i, e.kind, e.pos)
		}
	}

	killAll(r.factory.spawned)
	r.tickN(1, 50)
	if !r.enc.IsWaveTransitioning() {
		t.Fatalf("state=%s want transitioning", r.enc.State())
	}
	if got := r.enc.WaveTransitionTimeRemaining(); got != 100*time.Millisecond {
		t.Fatalf("remaining=%v", got)
	}
	r.tickN(1, 50)
	if r.enc.CurrentWave() != 1 {
		t.Fatalf("wave 2 spawned early")
	}
	r.tickN(1, 50)
	if r.enc.CurrentWave() != 2 || r.enc.State() != StateWaveInProgress {
		t.Fatalf("wave=%d state=%s", r.enc.CurrentWave(), r.enc.State())
	}
	if len(r.factory.spawned) != 3+6 {
		t.Fatalf("wave 2 spawned %d", len(r.factory.spawned)-3)
	}
	if got := r.enc.RunLootAmount("coins"); got != 6 {
		t.Fatalf("coins=%d want 6", got)
	}
}

func TestEncounter_WaveCompletion(t *testing.T) {
	r := newTestRig(t, nil)
	if !r.enc.IsWaveComplete() {
		t.Fatalf("idle encounter should report complete")
	}
	r.enc.GenerateArena(7)
	r.enc.SpawnWave(1)
	es := r.factory.lastWave(3)

	es[0].kill()
	es[1].kill()
	if r.enc.IsWaveComplete() {
		t.Fatalf("complete with one enemy alive")
	}
	if r.enc.AliveEnemies() != 1 {
		t.Fatalf("alive=%d", r.enc.AliveEnemies())
	}
	es[2].kill()
	if !r.enc.IsWaveComplete() || !r.enc.IsWaveComplete() {
		t.Fatalf("not complete after all kills")
	}
}

func TestEncounter_DanglingHandlesCountAsDead(t *testing.T) {
	r := newTestRig(t, nil)
	r.enc.GenerateArena(7)
	r.enc.SpawnWave(1)
	es := r.factory.lastWave(3)
	es[0].freed = true
	es[1].freed = true
	es[2].kill()

	if !r.enc.IsWaveComplete() {
		t.Fatalf("freed enemies should not hold the wave open")
	}
	if got := r.enc.RunLootAmount("coins"); got != 2 {
		t.Fatalf("coins=%d want 2", got)
	}
}

func TestEncounter_WaveCompletedExactlyOnce(t *testing.T) {
	r := newTestRig(t, func(tn *tuning.Tuning) { tn.AutoProgress = false })
	r.enc.GenerateArena(3)
	r.enc.SpawnWave(1)
	killAll(r.factory.spawned)
	r.tickN(20, 50)

	if n := r.count(EventWaveCompleted); n != 1 {
		t.Fatalf("WaveCompleted emitted %d times", n)
	}
	if r.enc.State() != StateWaveComplete || r.enc.IsWaveTransitioning() {
		t.Fatalf("state=%s", r.enc.State())
	}
	// Auto-progress turned on after the fact does not schedule a transition.
	r.enc.SetAutoProgress(true)
	r.tickN(5, 50)
	if r.enc.CurrentWave() != 1 {
		t.Fatalf("wave=%d", r.enc.CurrentWave())
	}
}

func TestEncounter_EventsFollowTransition(t *testing.T) {
	r := newTestRig(t, nil)
	var stateAtEvent State
	r.enc.Subscribe(ObserverFunc(func(ev Event) {
		if ev.Kind == EventWaveCompleted {
			stateAtEvent = r.enc.State()
		}
	}))
	r.enc.GenerateArena(3)
	if len(r.events) != 1 || r.events[0].Kind != EventRunStarted || r.events[0].RunID != "run-1" {
		t.Fatalf("events=%+v", r.events)
	}
	r.enc.SpawnWave(1)
	if last := r.events[len(r.events)-1]; last.Kind != EventWaveStarted || last.Enemies != 3 {
		t.Fatalf("last event=%+v", last)
	}
	killAll(r.factory.spawned)
	r.tickN(1, 50)
	if stateAtEvent != StateTransitioning {
		t.Fatalf("observer saw state %s", stateAtEvent)
	}
}

func TestEncounter_ObserverMaySpawnNextWave(t *testing.T) {
	r := newTestRig(t, func(tn *tuning.Tuning) { tn.AutoProgress = false })
	r.enc.Subscribe(ObserverFunc(func(ev Event) {
		if ev.Kind == EventWaveCompleted {
			r.enc.SpawnWave(ev.Wave + 1)
		}
	}))
	r.enc.GenerateArena(3)
	r.enc.SpawnWave(1)
	killAll(r.factory.spawned)
	r.tickN(1, 50)

	if r.enc.CurrentWave() != 2 {
		t.Fatalf("wave=%d", r.enc.CurrentWave())
	}
	last := r.events[len(r.events)-1]
	if last.Kind != EventWaveStarted || last.Wave != 2 {
		t.Fatalf("last event=%+v", last)
	}
}

func TestEncounter_RunGating(t *testing.T) {
	r := newTestRig(t, func(tn *tuning.Tuning) { tn.TransitionDelayMs = 0 })
	if r.enc.TotalWaves() != 5 || r.enc.CatalogLen() != 4 {
		t.Fatalf("total=%d catalog=%d", r.enc.TotalWaves(), r.enc.CatalogLen())
	}
	r.enc.GenerateArena(99)
	r.enc.SpawnWave(1)

	for wave := 1; wave <= 5; wave++ {
		if r.enc.CurrentWave() != wave {
			t.Fatalf("wave=%d want %d", r.enc.CurrentWave(), wave)
		}
		if r.enc.IsRunComplete() {
			t.Fatalf("run complete during wave %d", wave)
		}
		killAll(aliveOf(r.factory))
		r.tickN(2, 50)
	}

	if r.enc.State() != StateRunComplete || !r.enc.IsRunComplete() {
		t.Fatalf("state=%s", r.enc.State())
	}
	if r.count(EventWaveCompleted) != 5 || r.count(EventArenaCompleted) != 1 {
		t.Fatalf("wave completed=%d arena completed=%d", r.count(EventWaveCompleted), r.count(EventArenaCompleted))
	}
	// Wave 5 wraps back to the first catalog entry.
	if n := len(r.factory.spawned); n != 3+6+5+6+3 {
		t.Fatalf("spawned=%d", n)
	}
	want := map[string]int{"coins": 49, "seeds": 6, "iron_scrap": 2, "venom_sac": 3}
	if got := r.enc.TotalRunLoot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("loot=%v want %v", got, want)
	}
	if !reflect.DeepEqual(r.sink.total, want) {
		t.Fatalf("sink=%v want %v", r.sink.total, want)
	}

	r.tickN(10, 50)
	if r.enc.CurrentWave() != 5 {
		t.Fatalf("run advanced past completion")
	}

	// A manual bonus wave keeps the run latched but never re-announces it.
	r.enc.SpawnWave(6)
	if r.enc.IsRunComplete() {
		t.Fatalf("run complete with bonus wave alive")
	}
	killAll(aliveOf(r.factory))
	r.tickN(3, 50)
	if !r.enc.IsRunComplete() || r.count(EventArenaCompleted) != 1 {
		t.Fatalf("complete=%v arena events=%d", r.enc.IsRunComplete(), r.count(EventArenaCompleted))
	}
}

func TestEncounter_TotalWavesFallsBackToCatalog(t *testing.T) {
	r := newTestRig(t, func(tn *tuning.Tuning) { tn.TotalWaves = 0 })
	if r.enc.TotalWaves() != 4 {
		t.Fatalf("total=%d", r.enc.TotalWaves())
	}
}

func TestEncounter_ManualSpawnCancelsTransition(t *testing.T) {
	r := newTestRig(t, nil)
	r.enc.GenerateArena(11)
	r.enc.SpawnWave(1)
	killAll(r.factory.spawned)
	r.tickN(1, 50)
	if !r.enc.IsWaveTransitioning() {
		t.Fatalf("state=%s", r.enc.State())
	}

	r.enc.SpawnWave(3)
	if r.enc.IsWaveTransitioning() || r.enc.WaveTransitionTimeRemaining() != 0 {
		t.Fatalf("transition survived manual spawn")
	}
	r.tickN(80, 50)
	if r.enc.CurrentWave() != 3 {
		t.Fatalf("wave=%d want 3", r.enc.CurrentWave())
	}
	if n := r.count(EventWaveStarted); n != 2 {
		t.Fatalf("WaveStarted=%d want 2", n)
	}
}

func TestEncounter_InvalidInputIsIgnored(t *testing.T) {
	r := newTestRig(t, nil)
	r.enc.SpawnWave(1)
	if r.enc.State() != StateIdle || r.factory.calls != 0 {
		t.Fatalf("spawned without a layout")
	}
	r.enc.GenerateArena(5)
	r.enc.SpawnWave(0)
	r.enc.SpawnWave(-3)
	if r.enc.State() != StateIdle || r.factory.calls != 0 {
		t.Fatalf("spawned invalid wave")
	}
	r.enc.SetWaveTransitionDelay(-5 * time.Second)
	if r.enc.WaveTransitionDelay() != 0 {
		t.Fatalf("delay=%v", r.enc.WaveTransitionDelay())
	}
	logs := r.logs.String()
	for _, want := range []string{"no arena layout", "must be positive", "clamped to 0"} {
		if !strings.Contains(logs, want) {
			t.Fatalf("missing warning %q in %q", want, logs)
		}
	}
}

func TestEncounter_ResetRunState(t *testing.T) {
	r := newTestRig(t, nil)
	r.enc.GenerateArena(21)
	layout := r.enc.Layout()
	r.enc.SpawnWave(1)
	es := r.factory.lastWave(3)
	es[0].kill()
	if r.enc.RunLootAmount("coins") != 2 {
		t.Fatalf("coins=%d", r.enc.RunLootAmount("coins"))
	}

	r.enc.ResetRunState()
	if r.enc.State() != StateIdle || r.enc.CurrentWave() != 0 || r.enc.IsRunComplete() {
		t.Fatalf("state=%s wave=%d", r.enc.State(), r.enc.CurrentWave())
	}
	if len(r.enc.TotalRunLoot()) != 0 {
		t.Fatalf("loot survived reset: %v", r.enc.TotalRunLoot())
	}
	if r.enc.Layout() != layout {
		t.Fatalf("reset replaced the layout")
	}
	es[1].kill()
	if r.enc.RunLootAmount("coins") != 0 {
		t.Fatalf("enemy from the old run credited loot")
	}
	if r.count(EventRunReset) != 1 {
		t.Fatalf("RunReset=%d", r.count(EventRunReset))
	}
}

func TestEncounter_GenerateStartsNewRun(t *testing.T) {
	r := newTestRig(t, nil)
	r.enc.GenerateArena(1)
	r.enc.SpawnWave(1)
	killAll(r.factory.spawned)
	r.enc.GenerateArena(2)

	if r.enc.RunID() != "run-2" {
		t.Fatalf("run id=%s", r.enc.RunID())
	}
	if len(r.enc.TotalRunLoot()) != 0 || r.enc.CurrentWave() != 0 {
		t.Fatalf("previous run leaked into the new one")
	}
}

func TestEncounter_RandomSpawnPoint(t *testing.T) {
	r := newTestRig(t, nil)
	if p := r.enc.RandomSpawnPoint(); p != (Vec3{}) {
		t.Fatalf("point before generate: %+v", p)
	}
	r.enc.GenerateArena(12345)
	other := newTestRig(t, nil)
	other.enc.GenerateArena(12345)

	for i := 0; i < 50; i++ {
		p := r.enc.RandomSpawnPoint()
		found := false
		for _, sp := range r.enc.Layout().SpawnPoints {
			if sp == p {
				found = true
			}
		}
		if !found {
			t.Fatalf("point %+v is not a spawn point", p)
		}
		if q := other.enc.RandomSpawnPoint(); q != p {
			t.Fatalf("draw %d differs across encounters", i)
		}
	}
}

func TestEncounter_StateDigestReplays(t *testing.T) {
	play := func() string {
		r := newTestRig(t, func(tn *tuning.Tuning) { tn.TransitionDelayMs = 100 })
		r.enc.GenerateArena(-77)
		r.enc.SpawnWave(1)
		killAll(r.factory.spawned)
		r.tickN(4, 50)
		killAll(aliveOf(r.factory)[:2])
		r.tickN(1, 50)
		return r.enc.StateDigest()
	}
	a, b := play(), play()
	if a != b {
		t.Fatalf("digests differ: %s vs %s", a, b)
	}
}

func TestEncounter_SubscribeCancel(t *testing.T) {
	r := newTestRig(t, nil)
	seen := 0
	cancel := r.enc.Subscribe(ObserverFunc(func(Event) { seen++ }))
	r.enc.GenerateArena(1)
	cancel()
	r.enc.GenerateArena(2)
	if seen != 1 {
		t.Fatalf("seen=%d want 1", seen)
	}
}
