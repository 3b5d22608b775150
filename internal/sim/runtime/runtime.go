package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter"
	"skirmish.gg/internal/sim/tuning"
)

// TickLogEntry is one line of the tick log.
type TickLogEntry struct {
	Tick     uint64    `json:"tick"`
	DtNanos  int64     `json:"dt_ns"`
	Commands []Command `json:"commands,omitempty"`
	State    string    `json:"state"`
	Wave     int       `json:"wave"`
	Alive    int       `json:"alive"`
	Digest   string    `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvent(ev encounter.Event) error
}

// LayoutRecorder persists each freshly generated layout.
type LayoutRecorder interface {
	RecordLayout(runID string, l *encounter.Layout) error
}

type Config struct {
	Sim      *Sim
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning

	// Optional.
	TickLogger     TickLogger
	EventLogger    EventLogger
	LayoutRecorder LayoutRecorder
	Logger         *log.Logger
}

type Result struct {
	Tick uint64
	Err  error
}

type Request struct {
	Cmd  Command
	Resp chan Result // optional; must be buffered
}

type AttachRequest struct {
	ClientName       string
	StatusEveryTicks int
	Out              chan []byte
	Resp             chan protocol.WelcomeMsg
}

type client struct {
	id          string
	name        string
	out         chan []byte
	statusEvery uint64
}

// Runtime drives a Sim at the configured tick rate. Everything that touches
// the Sim happens on the goroutine running Run.
type Runtime struct {
	cfg Config
	sim *Sim
	log *log.Logger
	dt  time.Duration

	tuningDigest string

	inbox  chan Request
	attach chan AttachRequest
	detach chan string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	clients    map[string]*client
	nextClient uint64
	events     []encounter.Event
}

func New(cfg Config) (*Runtime, error) {
	if cfg.Sim == nil || cfg.Catalogs == nil {
		return nil, fmt.Errorf("runtime: sim and catalogs are required")
	}
	if cfg.Tuning.TickRateHz <= 0 {
		return nil, fmt.Errorf("runtime: tick_rate_hz must be > 0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	r := &Runtime{
		cfg:          cfg,
		sim:          cfg.Sim,
		log:          logger,
		dt:           cfg.Tuning.TickInterval(),
		tuningDigest: cfg.Tuning.Digest(),
		inbox:        make(chan Request, 256),
		attach:       make(chan AttachRequest, 16),
		detach:       make(chan string, 16),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		clients:      map[string]*client{},
	}
	r.sim.Enc.Subscribe(encounter.ObserverFunc(func(ev encounter.Event) {
		r.events = append(r.events, ev)
	}))
	return r, nil
}

func (r *Runtime) Inbox() chan<- Request        { return r.inbox }
func (r *Runtime) Attach() chan<- AttachRequest { return r.attach }
func (r *Runtime) Detach() chan<- string        { return r.detach }

// Submit queues req without blocking. It reports false when the inbox is full.
func (r *Runtime) Submit(req Request) bool {
	select {
	case r.inbox <- req:
		return true
	default:
		return false
	}
}

// Done is closed once Run has returned.
func (r *Runtime) Done() <-chan struct{} { return r.done }

func (r *Runtime) Run(ctx context.Context) error {
	defer close(r.done)
	ticker := time.NewTicker(r.dt)
	defer ticker.Stop()

	var pending []Request
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.attach:
			r.handleAttach(req)
		case id := <-r.detach:
			delete(r.clients, id)
		case req := <-r.inbox:
			pending = append(pending, req)
		case <-ticker.C:
			r.step(pending)
			pending = pending[:0]
		}
	}
}

func (r *Runtime) Stop() { r.once.Do(func() { close(r.stop) }) }

// StepOnce applies cmds and advances one tick without the ticker. Not safe to
// call while Run is active.
func (r *Runtime) StepOnce(cmds []Command) (uint64, string) {
	reqs := make([]Request, 0, len(cmds))
	for _, c := range cmds {
		reqs = append(reqs, Request{Cmd: c})
	}
	return r.step(reqs)
}

func (r *Runtime) step(reqs []Request) (uint64, string) {
	applied := make([]Command, 0, len(reqs))
	errs := make([]error, 0, len(reqs))
	for _, req := range reqs {
		err := r.sim.Apply(req.Cmd)
		if err != nil {
			r.log.Printf("cmd %s rejected: %v", req.Cmd.Type, err)
		}
		applied = append(applied, req.Cmd)
		errs = append(errs, err)
	}

	tick, digest := r.sim.Step(r.dt)

	for i, req := range reqs {
		if req.Resp == nil {
			continue
		}
		select {
		case req.Resp <- Result{Tick: tick, Err: errs[i]}:
		default:
		}
	}

	if r.cfg.TickLogger != nil {
		entry := TickLogEntry{
			Tick:     tick,
			DtNanos:  int64(r.dt),
			Commands: applied,
			State:    r.sim.Enc.State().String(),
			Wave:     r.sim.Enc.CurrentWave(),
			Alive:    r.sim.Enc.AliveEnemies(),
			Digest:   digest,
		}
		if err := r.cfg.TickLogger.WriteTick(entry); err != nil {
			r.log.Printf("tick log: %v", err)
		}
	}

	events := r.events
	r.events = nil
	for _, ev := range events {
		r.recordEvent(ev)
	}

	if len(r.clients) > 0 {
		changed := len(reqs) > 0 || len(events) > 0
		var status []byte
		for _, c := range r.clients {
			if !changed && tick%c.statusEvery != 0 {
				continue
			}
			if status == nil {
				status, _ = json.Marshal(r.Status(digest))
			}
			sendLatest(c.out, status)
		}
	}
	return tick, digest
}

func (r *Runtime) recordEvent(ev encounter.Event) {
	if r.cfg.EventLogger != nil {
		if err := r.cfg.EventLogger.WriteEvent(ev); err != nil {
			r.log.Printf("event log: %v", err)
		}
	}
	if ev.Kind == encounter.EventRunStarted && r.cfg.LayoutRecorder != nil {
		if err := r.cfg.LayoutRecorder.RecordLayout(ev.RunID, ev.Layout); err != nil {
			r.log.Printf("layout snapshot: %v", err)
		}
	}
	if len(r.clients) == 0 {
		return
	}
	b, err := json.Marshal(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           toProtoEvent(ev),
	})
	if err != nil {
		return
	}
	for _, c := range r.clients {
		sendLatest(c.out, b)
	}
}

// sendLatest delivers b without blocking the tick; a full queue drops it.
func sendLatest(out chan []byte, b []byte) {
	select {
	case out <- b:
	default:
	}
}

func (r *Runtime) handleAttach(req AttachRequest) {
	r.nextClient++
	id := fmt.Sprintf("S%d", r.nextClient)
	every := req.StatusEveryTicks
	if every <= 0 {
		every = r.cfg.Tuning.TickRateHz
	}
	r.clients[id] = &client{id: id, name: req.ClientName, out: req.Out, statusEvery: uint64(every)}
	r.log.Printf("client attached id=%s name=%s", id, req.ClientName)
	if req.Resp != nil {
		req.Resp <- r.Welcome(id)
	}
}

// Welcome describes the current run to a newly attached client.
func (r *Runtime) Welcome(sessionID string) protocol.WelcomeMsg {
	enc := r.sim.Enc
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		RunID:           enc.RunID(),
		Tick:            enc.CurrentTick(),
		RunParams: protocol.RunParams{
			TickRateHz:        r.cfg.Tuning.TickRateHz,
			TotalWaves:        enc.TotalWaves(),
			AutoProgress:      enc.AutoProgress(),
			TransitionDelayMs: int(enc.WaveTransitionDelay() / time.Millisecond),
			EnemyKinds:        append([]string(nil), r.cfg.Catalogs.Enemies.Palette...),
		},
		Catalogs: protocol.CatalogDigests{
			TemplatesDigest: r.cfg.Catalogs.Templates.Digest,
			WavesDigest:     r.cfg.Catalogs.Waves.Digest,
			EnemiesDigest:   r.cfg.Catalogs.Enemies.Digest,
			TuningDigest:    r.tuningDigest,
		},
	}
	if l := enc.Layout(); l != nil {
		w.Arena = ArenaSummary(l)
	}
	return w
}

func ArenaSummary(l *encounter.Layout) *protocol.ArenaSummary {
	pts := make([][3]float64, 0, len(l.SpawnPoints))
	for _, p := range l.SpawnPoints {
		pts = append(pts, [3]float64{p.X, p.Y, p.Z})
	}
	return &protocol.ArenaSummary{
		Seed:        l.Seed,
		TemplateID:  l.TemplateID,
		Width:       l.Width,
		Depth:       l.Depth,
		SpawnPoints: pts,
		Covers:      len(l.Covers),
		CoverTarget: l.CoverTarget,
		Digest:      l.Digest(),
	}
}

func (r *Runtime) Status(digest string) protocol.StatusMsg {
	enc := r.sim.Enc
	st := protocol.StatusMsg{
		Type:                  protocol.TypeStatus,
		ProtocolVersion:       protocol.Version,
		Tick:                  enc.CurrentTick(),
		RunID:                 enc.RunID(),
		State:                 enc.State().String(),
		Wave:                  enc.CurrentWave(),
		TotalWaves:            enc.TotalWaves(),
		Alive:                 enc.AliveEnemies(),
		Transitioning:         enc.IsWaveTransitioning(),
		TransitionRemainingMs: int64(enc.WaveTransitionTimeRemaining() / time.Millisecond),
		RunComplete:           enc.IsRunComplete(),
		Loot:                  enc.TotalRunLoot(),
		Digest:                digest,
	}
	for _, e := range r.sim.Roster.Enemies() {
		st.Enemies = append(st.Enemies, protocol.EnemyObs{
			ID:    e.ID,
			Kind:  e.KindName,
			HP:    e.HP,
			MaxHP: e.MaxHP,
			Pos:   [3]float64{e.Pos.X, e.Pos.Y, e.Pos.Z},
			Dead:  e.Dead,
		})
	}
	return st
}

func toProtoEvent(ev encounter.Event) protocol.Event {
	return protocol.Event{
		Kind:       string(ev.Kind),
		Tick:       ev.Tick,
		RunID:      ev.RunID,
		Wave:       ev.Wave,
		Enemies:    ev.Enemies,
		Seed:       ev.Seed,
		TemplateID: ev.TemplateID,
		EnemyID:    ev.EnemyID,
		Resource:   ev.Resource,
		Amount:     ev.Amount,
	}
}
