package encounter

type EventKind string

const (
	EventRunStarted     EventKind = "RUN_STARTED"
	EventRunReset       EventKind = "RUN_RESET"
	EventWaveStarted    EventKind = "WAVE_STARTED"
	EventWaveCompleted  EventKind = "WAVE_COMPLETED"
	EventArenaCompleted EventKind = "ARENA_COMPLETED"
	EventLootCollected  EventKind = "LOOT_COLLECTED"
)

type Event struct {
	Kind  EventKind `json:"kind"`
	Tick  uint64    `json:"tick"`
	RunID string    `json:"run_id"`

	Wave    int `json:"wave,omitempty"`
	Enemies int `json:"enemies,omitempty"`

	Seed       int64  `json:"seed,omitempty"`
	TemplateID string `json:"template_id,omitempty"`

	EnemyID  string `json:"enemy_id,omitempty"`
	Resource string `json:"resource,omitempty"`
	Amount   int    `json:"amount,omitempty"`

	// Layout is set on RUN_STARTED to the layout the run was generated on.
	Layout *Layout `json:"-"`
}

type Observer interface {
	OnEncounterEvent(ev Event)
}

type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEncounterEvent(ev Event) { f(ev) }

type observerEntry struct {
	id  uint64
	obs Observer
}

// Subscribe registers o for every event. Events raised inside Tick are
// delivered after the tick's transition has completed; events raised by a
// direct call are delivered before that call returns.
func (e *Encounter) Subscribe(o Observer) (cancel func()) {
	if o == nil {
		return func() {}
	}
	e.nextObserver++
	id := e.nextObserver
	e.observers = append(e.observers, observerEntry{id: id, obs: o})
	return func() {
		for i, ent := range e.observers {
			if ent.id == id {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

func (e *Encounter) emit(ev Event) {
	ev.Tick = e.tick
	ev.RunID = e.runID
	e.pending = append(e.pending, ev)
}

// flush drains queued events to observers. Observers may call back into the
// encounter; events they cause are appended and drained by the same loop.
func (e *Encounter) flush() {
	if e.inTick || e.dispatching {
		return
	}
	e.dispatching = true
	defer func() { e.dispatching = false }()
	for len(e.pending) > 0 {
		batch := e.pending
		e.pending = nil
		for _, ev := range batch {
			for _, ent := range append([]observerEntry(nil), e.observers...) {
				ent.obs.OnEncounterEvent(ev)
			}
		}
	}
}
