package runtime

import (
	"errors"
	"fmt"
	"log"
	"time"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/bestiary"
	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter"
	"skirmish.gg/internal/sim/tuning"
)

// Command is one operator request, applied between ticks. It is also the unit
// recorded in the tick log, so replaying the log reproduces the run.
type Command struct {
	Type    string `json:"type"`
	Seed    int64  `json:"seed,omitempty"`
	Wave    int    `json:"wave,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
	DelayMs int64  `json:"delay_ms,omitempty"`
	EnemyID string `json:"enemy_id,omitempty"`
	Amount  int    `json:"amount,omitempty"`
}

// CommandError carries a protocol error code back to the caller.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string { return e.Code + ": " + e.Message }

func cmdErr(code, format string, args ...any) error {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode maps err to a protocol code.
func ErrorCode(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return protocol.ErrInternal
}

type SimConfig struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Sink     encounter.LootSink
	Logger   *log.Logger
	NewRunID func() string
}

// Sim pairs an encounter with the roster that backs its enemies. It has no
// clock of its own: Step advances both by one tick.
type Sim struct {
	Enc    *encounter.Encounter
	Roster *bestiary.Roster
}

func NewSim(cfg SimConfig) (*Sim, error) {
	if cfg.Catalogs == nil {
		return nil, fmt.Errorf("runtime: nil catalogs")
	}
	roster, err := bestiary.NewRoster(cfg.Catalogs.Enemies, cfg.Tuning.Bestiary, cfg.Logger)
	if err != nil {
		return nil, err
	}
	enc, err := encounter.New(encounter.Config{
		Catalogs: cfg.Catalogs,
		Tuning:   cfg.Tuning,
		Factory:  roster,
		Sink:     cfg.Sink,
		Logger:   cfg.Logger,
		NewRunID: cfg.NewRunID,
	})
	if err != nil {
		return nil, err
	}
	return &Sim{Enc: enc, Roster: roster}, nil
}

func (s *Sim) Apply(c Command) error {
	switch c.Type {
	case protocol.CmdGenerate:
		s.Enc.GenerateArena(c.Seed)
		s.Roster.Clear()
	case protocol.CmdSpawnWave:
		if c.Wave <= 0 {
			return cmdErr(protocol.ErrBadRequest, "wave must be >= 1, got %d", c.Wave)
		}
		if s.Enc.Layout() == nil {
			return cmdErr(protocol.ErrNoArena, "no arena generated")
		}
		s.Enc.SpawnWave(c.Wave)
	case protocol.CmdSetAutoProgress:
		s.Enc.SetAutoProgress(c.Enabled)
	case protocol.CmdSetTransitionDelay:
		s.Enc.SetWaveTransitionDelay(time.Duration(c.DelayMs) * time.Millisecond)
	case protocol.CmdReset:
		s.Enc.ResetRunState()
		s.Roster.Clear()
	case protocol.CmdDamage:
		if c.Amount < 0 {
			return cmdErr(protocol.ErrBadRequest, "amount must be >= 0, got %d", c.Amount)
		}
		if _, err := s.Roster.Damage(c.EnemyID, c.Amount); err != nil {
			return cmdErr(protocol.ErrInvalidTarget, "%v", err)
		}
	default:
		return cmdErr(protocol.ErrUnknownCommand, "unknown command %q", c.Type)
	}
	return nil
}

// Step advances the roster and the encounter by one tick and returns the
// encounter's tick and state digest.
func (s *Sim) Step(dt time.Duration) (uint64, string) {
	s.Roster.Step()
	s.Enc.Tick(dt)
	return s.Enc.CurrentTick(), s.Enc.StateDigest()
}

// CommandFromMsg validates a CMD message and converts it.
func CommandFromMsg(m protocol.CmdMsg) (Command, error) {
	c := Command{Type: m.Cmd}
	switch m.Cmd {
	case protocol.CmdGenerate:
		if m.Seed == nil {
			return c, cmdErr(protocol.ErrBadRequest, "GENERATE requires seed")
		}
		c.Seed = *m.Seed
	case protocol.CmdSpawnWave:
		c.Wave = m.Wave
	case protocol.CmdSetAutoProgress:
		if m.Enabled == nil {
			return c, cmdErr(protocol.ErrBadRequest, "SET_AUTO_PROGRESS requires enabled")
		}
		c.Enabled = *m.Enabled
	case protocol.CmdSetTransitionDelay:
		if m.DelayMs == nil {
			return c, cmdErr(protocol.ErrBadRequest, "SET_TRANSITION_DELAY requires delay_ms")
		}
		c.DelayMs = *m.DelayMs
	case protocol.CmdReset:
	case protocol.CmdDamage:
		if m.EnemyID == "" {
			return c, cmdErr(protocol.ErrBadRequest, "DAMAGE requires enemy_id")
		}
		c.EnemyID = m.EnemyID
		c.Amount = m.Amount
	default:
		return c, cmdErr(protocol.ErrUnknownCommand, "unknown command %q", m.Cmd)
	}
	return c, nil
}
