package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"skirmish.gg/internal/protocol"
)

type botConfig struct {
	Name   string
	Seed   *int64
	Damage int
	// MaxRuns stops the bot after this many ARENA_COMPLETED events; 0 means never.
	MaxRuns int
}

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		seed    = flag.Int64("seed", 0, "generate a fresh arena with this seed before fighting")
		damage  = flag.Int("damage", 10, "damage dealt to each live enemy per STATUS")
		maxRuns = flag.Int("runs", 1, "exit after this many completed arenas (0 = run forever)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := botConfig{Name: *name, Damage: *damage, MaxRuns: *maxRuns}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.Seed = seed
		}
	})
	if err := runBot(ctx, conn, cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

type bot struct {
	conn   *websocket.Conn
	cfg    botConfig
	log    *log.Logger
	nextID int

	// hit remembers the tick each enemy was last targeted so one STATUS
	// burst does not queue duplicate DAMAGE commands.
	hit map[string]uint64
}

func runBot(ctx context.Context, conn *websocket.Conn, cfg botConfig, logger *log.Logger) error {
	if cfg.Damage <= 0 {
		cfg.Damage = 10
	}
	b := &bot{conn: conn, cfg: cfg, log: logger, hit: map[string]uint64{}}

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      cfg.Name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue:         32,
			StatusEveryTicks: 1,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	completed := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s run=%s tick_rate=%d waves=%d kinds=%s", w.SessionID, w.RunID, w.RunParams.TickRateHz, w.RunParams.TotalWaves, strings.Join(w.RunParams.EnemyKinds, ","))
			if cfg.Seed != nil || w.Arena == nil {
				seed := int64(1)
				if cfg.Seed != nil {
					seed = *cfg.Seed
				}
				b.send(protocol.CmdMsg{Cmd: protocol.CmdGenerate, Seed: &seed})
			}
			if w.Arena != nil && cfg.Seed == nil {
				b.send(protocol.CmdMsg{Cmd: protocol.CmdSpawnWave, Wave: 1})
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			switch ev.Event.Kind {
			case "RUN_STARTED":
				logger.Printf("run %s template=%s seed=%d", ev.Event.RunID, ev.Event.TemplateID, ev.Event.Seed)
				b.send(protocol.CmdMsg{Cmd: protocol.CmdSpawnWave, Wave: 1})
			case "WAVE_STARTED":
				logger.Printf("wave %d started enemies=%d", ev.Event.Wave, ev.Event.Enemies)
			case "WAVE_COMPLETED":
				logger.Printf("wave %d cleared at tick %d", ev.Event.Wave, ev.Event.Tick)
			case "ARENA_COMPLETED":
				completed++
				logger.Printf("arena cleared run=%s (%d)", ev.Event.RunID, completed)
				if cfg.MaxRuns > 0 && completed >= cfg.MaxRuns {
					return nil
				}
			}

		case protocol.TypeStatus:
			var st protocol.StatusMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			b.attack(&st)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil && e.Code != protocol.ErrInvalidTarget {
				logger.Printf("ERROR req=%s code=%s %s", e.ReqID, e.Code, e.Message)
			}
		}
	}
}

func (b *bot) attack(st *protocol.StatusMsg) {
	for _, e := range st.Enemies {
		if e.Dead {
			delete(b.hit, e.ID)
			continue
		}
		if last, ok := b.hit[e.ID]; ok && st.Tick <= last {
			continue
		}
		b.hit[e.ID] = st.Tick
		b.send(protocol.CmdMsg{Cmd: protocol.CmdDamage, EnemyID: e.ID, Amount: b.cfg.Damage})
	}
}

func (b *bot) send(m protocol.CmdMsg) {
	b.nextID++
	m.Type = protocol.TypeCmd
	m.ProtocolVersion = protocol.Version
	m.ReqID = fmt.Sprintf("%s-%d", b.cfg.Name, b.nextID)
	if err := b.conn.WriteJSON(m); err != nil {
		b.log.Printf("send %s: %v", m.Cmd, err)
	}
}
