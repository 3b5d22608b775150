package encounter

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter/logic/mathx"
	"skirmish.gg/internal/sim/tuning"
)

type Config struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Factory  EnemyFactory

	// Optional.
	Sink     LootSink
	Logger   *log.Logger
	NewRunID func() string
}

// Encounter owns the run state of one arena. It is single-threaded: every
// method must be called from the goroutine that drives Tick.
type Encounter struct {
	log      *log.Logger
	newRunID func() string

	layouts *LayoutGenerator
	spawner *WaveSpawner
	loot    *LootAggregator

	layout  *Layout
	pickRNG *mathx.Stream
	runID   string
	tick    uint64
	state   State

	currentWave   int
	totalWaves    int
	activeEnemies []EnemyHandle

	waveCompleteEmitted  bool
	runCompleted         bool
	arenaCompleteEmitted bool

	autoProgress        bool
	transitionDelay     time.Duration
	transitionPending   bool
	transitionRemaining time.Duration

	observers    []observerEntry
	nextObserver uint64
	pending      []Event
	inTick       bool
	dispatching  bool
}

func New(cfg Config) (*Encounter, error) {
	if cfg.Catalogs == nil {
		return nil, fmt.Errorf("encounter: nil catalogs")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	layouts, err := NewLayoutGenerator(cfg.Catalogs.Templates.Defs, cfg.Tuning.Arena)
	if err != nil {
		return nil, fmt.Errorf("encounter: %w", err)
	}
	spawner, err := NewWaveSpawner(cfg.Factory, cfg.Catalogs.Waves.Defs, logger)
	if err != nil {
		return nil, fmt.Errorf("encounter: %w", err)
	}
	newRunID := cfg.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	e := &Encounter{
		log:             logger,
		newRunID:        newRunID,
		layouts:         layouts,
		spawner:         spawner,
		loot:            NewLootAggregator(cfg.Sink, logger),
		totalWaves:      cfg.Tuning.TotalWaves,
		autoProgress:    cfg.Tuning.AutoProgress,
		transitionDelay: cfg.Tuning.TransitionDelay(),
	}
	if e.totalWaves <= 0 {
		e.totalWaves = spawner.CatalogLen()
	}
	if e.transitionDelay < 0 {
		e.transitionDelay = 0
	}
	e.loot.onCollect = func(enemyID, resource string, amount int) {
		e.emit(Event{Kind: EventLootCollected, Wave: e.currentWave, EnemyID: enemyID, Resource: resource, Amount: amount})
	}
	return e, nil
}

// GenerateArena builds the layout for seed and starts a fresh run on it.
func (e *Encounter) GenerateArena(seed int64) {
	e.resetRun()
	e.layout = e.layouts.Generate(seed)
	e.pickRNG = mathx.NewStream(seed, "spawn_pick")
	e.runID = e.newRunID()
	e.log.Printf("arena generated run=%s seed=%d template=%s spawn_points=%d cover=%d/%d",
		e.runID, seed, e.layout.TemplateID, len(e.layout.SpawnPoints), len(e.layout.Covers), e.layout.CoverTarget)
	e.emit(Event{Kind: EventRunStarted, Seed: seed, TemplateID: e.layout.TemplateID, Layout: e.layout})
	e.flush()
}

// ResetRunState returns the run to its initial shape on the current layout.
func (e *Encounter) ResetRunState() {
	e.resetRun()
	e.emit(Event{Kind: EventRunReset})
	e.flush()
}

func (e *Encounter) resetRun() {
	e.loot.Reset()
	e.activeEnemies = nil
	e.currentWave = 0
	e.waveCompleteEmitted = false
	e.runCompleted = false
	e.arenaCompleteEmitted = false
	e.cancelTransition()
	e.state = StateIdle
}

// SpawnWave starts wave n, cancelling any pending transition. Invalid input
// is logged and ignored.
func (e *Encounter) SpawnWave(n int) {
	e.spawnWave(n)
	e.flush()
}

func (e *Encounter) spawnWave(n int) bool {
	if n <= 0 {
		e.log.Printf("warn: spawn_wave(%d): wave number must be positive", n)
		return false
	}
	if e.layout == nil || len(e.layout.SpawnPoints) == 0 {
		e.log.Printf("warn: spawn_wave(%d): no arena layout generated", n)
		return false
	}
	e.cancelTransition()

	e.activeEnemies = e.spawner.Spawn(n, e.layout.SpawnPoints)
	for _, h := range e.activeEnemies {
		e.loot.Track(h)
	}
	e.currentWave = n
	e.waveCompleteEmitted = false
	e.state = StateWaveInProgress
	e.emit(Event{Kind: EventWaveStarted, Wave: n, Enemies: len(e.activeEnemies)})
	return true
}

// IsWaveComplete prunes dead and dangling enemies and reports whether none remain.
func (e *Encounter) IsWaveComplete() bool {
	kept := e.activeEnemies[:0]
	for _, h := range e.activeEnemies {
		if handleAlive(h) {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(e.activeEnemies); i++ {
		e.activeEnemies[i] = nil
	}
	e.activeEnemies = kept
	return len(e.activeEnemies) == 0
}

// IsRunComplete requires both the run latch and an empty final wave.
func (e *Encounter) IsRunComplete() bool {
	return e.runCompleted && e.IsWaveComplete()
}

// RandomSpawnPoint returns a spawn point of the current layout, or the zero
// vector when there is none.
func (e *Encounter) RandomSpawnPoint() Vec3 {
	if e.layout == nil || len(e.layout.SpawnPoints) == 0 || e.pickRNG == nil {
		return Vec3{}
	}
	return e.layout.SpawnPoints[e.pickRNG.Intn(len(e.layout.SpawnPoints))]
}

func (e *Encounter) SetAutoProgress(enabled bool) { e.autoProgress = enabled }

func (e *Encounter) AutoProgress() bool { return e.autoProgress }

func (e *Encounter) SetWaveTransitionDelay(d time.Duration) {
	if d < 0 {
		e.log.Printf("warn: transition delay %v clamped to 0", d)
		d = 0
	}
	e.transitionDelay = d
}

func (e *Encounter) WaveTransitionDelay() time.Duration { return e.transitionDelay }

func (e *Encounter) IsWaveTransitioning() bool {
	return e.state == StateTransitioning && e.transitionPending
}

func (e *Encounter) WaveTransitionTimeRemaining() time.Duration {
	if !e.IsWaveTransitioning() || e.transitionRemaining < 0 {
		return 0
	}
	return e.transitionRemaining
}

func (e *Encounter) RunLootAmount(resource string) int { return e.loot.Amount(resource) }

func (e *Encounter) TotalRunLoot() map[string]int { return e.loot.Total() }

// OnEnemyDeath credits h's loot to the run. Tracked enemies reach it through
// their death subscription; hosts without subscriptions may call it directly.
func (e *Encounter) OnEnemyDeath(h EnemyHandle) {
	e.loot.OnEnemyDeath(h)
}

func (e *Encounter) Layout() *Layout     { return e.layout }
func (e *Encounter) RunID() string       { return e.runID }
func (e *Encounter) CurrentTick() uint64 { return e.tick }
func (e *Encounter) State() State        { return e.state }
func (e *Encounter) CurrentWave() int    { return e.currentWave }
func (e *Encounter) TotalWaves() int     { return e.totalWaves }
func (e *Encounter) RunCompleted() bool  { return e.runCompleted }
func (e *Encounter) CatalogLen() int     { return e.spawner.CatalogLen() }

// WaveConfigFor exposes the catalog entry wave n resolves to.
func (e *Encounter) WaveConfigFor(n int) (WaveConfig, bool) {
	if n <= 0 {
		return WaveConfig{}, false
	}
	return e.spawner.ConfigFor(n), true
}

// AliveEnemies counts live enemies without pruning.
func (e *Encounter) AliveEnemies() int {
	n := 0
	for _, h := range e.activeEnemies {
		if handleAlive(h) {
			n++
		}
	}
	return n
}
