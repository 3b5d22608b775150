package encounter

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistXZ is the horizontal distance from the arena center.
func (v Vec3) DistXZ() float64 { return math.Hypot(v.X, v.Z) }

// Collision layers. Arena geometry sits on LayerEnvironment with an empty
// mask: it is collided with but never detects anything itself.
const (
	LayerEnvironment uint32 = 1 << 0
	LayerEnemies     uint32 = 1 << 1
	LayerPlayer      uint32 = 1 << 2
)

type Side string

const (
	SideNorth Side = "NORTH"
	SideSouth Side = "SOUTH"
	SideEast  Side = "EAST"
	SideWest  Side = "WEST"
)

type Boundary struct {
	Side  Side   `json:"side"`
	Pos   Vec3   `json:"pos"`
	Size  Vec3   `json:"size"`
	Layer uint32 `json:"layer"`
	Mask  uint32 `json:"mask"`
}

type Cover struct {
	ID    string `json:"id"`
	Pos   Vec3   `json:"pos"`
	Size  Vec3   `json:"size"`
	Layer uint32 `json:"layer"`
	Mask  uint32 `json:"mask"`
}

type Layout struct {
	Seed       int64      `json:"seed"`
	TemplateID string     `json:"template_id"`
	Width      float64    `json:"width"`
	Depth      float64    `json:"depth"`
	Boundaries []Boundary `json:"boundaries"`
	Covers     []Cover    `json:"covers"`

	// CoverTarget is the template's cover count; len(Covers) may fall short by up to two.
	CoverTarget int    `json:"cover_target"`
	SpawnPoints []Vec3 `json:"spawn_points"`
}

// EnemyKind is the closed set of enemies a wave can contain.
type EnemyKind uint8

const (
	KindGrunt EnemyKind = iota + 1
	KindRunner
	KindBrute
	KindSpitter
)

var kindNames = map[EnemyKind]string{
	KindGrunt:   "GRUNT",
	KindRunner:  "RUNNER",
	KindBrute:   "BRUTE",
	KindSpitter: "SPITTER",
}

// AllKinds lists every kind in declaration order.
func AllKinds() []EnemyKind {
	return []EnemyKind{KindGrunt, KindRunner, KindBrute, KindSpitter}
}

func (k EnemyKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EnemyKind(%d)", uint8(k))
}

func ParseEnemyKind(s string) (EnemyKind, error) {
	for _, k := range AllKinds() {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown enemy kind %q", s)
}

// EnemyHandle is a weak reference to an enemy owned elsewhere. The owner may
// free the enemy at any tick; Valid reports whether the reference still
// resolves and must be checked before any other method is trusted.
type EnemyHandle interface {
	ID() string
	Kind() EnemyKind
	Valid() bool
	Alive() bool
	Position() Vec3
	LootTable() map[string]int
	// OnDeath registers fn to run once when the enemy dies. The returned
	// function cancels the registration.
	OnDeath(fn func(EnemyHandle)) (cancel func())
}

type EnemyFactory interface {
	Spawn(kind EnemyKind, pos Vec3) (EnemyHandle, error)
}

// LootSink receives every positive loot delta as it is credited to the run.
type LootSink interface {
	AddToRunLoot(resource string, amount int)
}

type State uint8

const (
	StateIdle State = iota
	StateWaveInProgress
	StateWaveComplete
	StateTransitioning
	StateRunComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaveInProgress:
		return "WAVE_IN_PROGRESS"
	case StateWaveComplete:
		return "WAVE_COMPLETE"
	case StateTransitioning:
		return "TRANSITIONING"
	case StateRunComplete:
		return "RUN_COMPLETE"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// handleUsable reports whether h still resolves. A handle that panics on
// access (typed nil, freed backing store) counts as gone.
func handleUsable(h EnemyHandle) (ok bool) {
	if h == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return h.Valid()
}

// handleAlive is the pruning predicate: dangling handles count as dead.
func handleAlive(h EnemyHandle) (ok bool) {
	if h == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return h.Valid() && h.Alive()
}
