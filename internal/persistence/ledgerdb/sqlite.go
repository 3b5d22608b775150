package ledgerdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"skirmish.gg/internal/sim/encounter"
)

// SQLiteLedger persists runs, waves and collected loot. It is both the
// encounter's LootSink (cross-run inventory) and an event Observer (per-run
// history). Writes are queued and applied by a single goroutine.
type SQLiteLedger struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu is held for reading across every send on ch and for writing while
	// ch is closed.
	mu     sync.RWMutex
	closed atomic.Bool

	dropEvent atomic.Uint64
	dropLoot  atomic.Uint64
	dropFlush atomic.Uint64
	writeErrs atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqLoot
	reqFlush
)

type req struct {
	kind reqKind

	ev       encounter.Event
	resource string
	amount   int
	at       string
	done     chan struct{}
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropEventTotal uint64
	DropLootTotal  uint64
	DropFlushTotal uint64
	WriteErrTotal  uint64
}

const queueSize = 65536

func OpenSQLite(path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteLedger{
		db: db,
		ch: make(chan req, queueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			template_id TEXT NOT NULL,
			started_tick INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			completed_tick INTEGER,
			reset_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS waves (
			run_id TEXT NOT NULL,
			wave INTEGER NOT NULL,
			enemies INTEGER NOT NULL,
			started_tick INTEGER NOT NULL,
			completed_tick INTEGER,
			PRIMARY KEY (run_id, wave)
		);`,
		`CREATE TABLE IF NOT EXISTS loot (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			wave INTEGER NOT NULL,
			enemy_id TEXT NOT NULL,
			resource TEXT NOT NULL,
			amount INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_loot_run_resource ON loot(run_id, resource);`,
		`CREATE TABLE IF NOT EXISTS inventory (
			resource TEXT PRIMARY KEY,
			amount INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteLedger) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// OnEncounterEvent queues ev for the run history tables.
func (s *SQLiteLedger) OnEncounterEvent(ev encounter.Event) {
	if s == nil {
		return
	}
	// Drop if the writer falls behind; the JSONL event log remains the source of truth.
	if !s.tryEnqueue(req{kind: reqEvent, ev: ev, at: time.Now().UTC().Format(time.RFC3339Nano)}) {
		s.dropEvent.Add(1)
	}
}

// tryEnqueue reports false only when the queue is full. Requests after Close
// are discarded.
func (s *SQLiteLedger) tryEnqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// AddToRunLoot credits the cross-run inventory.
func (s *SQLiteLedger) AddToRunLoot(resource string, amount int) {
	if s == nil || resource == "" || amount <= 0 {
		return
	}
	if !s.tryEnqueue(req{kind: reqLoot, resource: resource, amount: amount, at: time.Now().UTC().Format(time.RFC3339Nano)}) {
		s.dropLoot.Add(1)
	}
}

// Flush blocks until every write queued before the call is committed.
func (s *SQLiteLedger) Flush(ctx context.Context) error {
	if s == nil {
		return errors.New("ledger closed")
	}
	done := make(chan struct{})
	if err := s.enqueueWait(ctx, req{kind: reqFlush, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteLedger) enqueueWait(ctx context.Context, r req) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return errors.New("ledger closed")
	}
	select {
	case s.ch <- r:
		return nil
	case <-ctx.Done():
		s.dropFlush.Add(1)
		return ctx.Err()
	}
}

func (s *SQLiteLedger) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropEventTotal: s.dropEvent.Load(),
		DropLootTotal:  s.dropLoot.Load(),
		DropFlushTotal: s.dropFlush.Load(),
		WriteErrTotal:  s.writeErrs.Load(),
	}
}

func (s *SQLiteLedger) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,seed,template_id,started_tick,started_at,completed,completed_tick,reset_count) VALUES(?,?,?,?,?,0,NULL,0)`)
	resetRun, _ := s.db.Prepare(`UPDATE runs SET reset_count=reset_count+1, completed=0, completed_tick=NULL WHERE run_id=?`)
	deleteWaves, _ := s.db.Prepare(`DELETE FROM waves WHERE run_id=?`)
	deleteLoot, _ := s.db.Prepare(`DELETE FROM loot WHERE run_id=?`)
	upsertWave, _ := s.db.Prepare(`INSERT OR REPLACE INTO waves(run_id,wave,enemies,started_tick,completed_tick) VALUES(?,?,?,?,NULL)`)
	completeWave, _ := s.db.Prepare(`UPDATE waves SET completed_tick=? WHERE run_id=? AND wave=?`)
	completeRun, _ := s.db.Prepare(`UPDATE runs SET completed=1, completed_tick=? WHERE run_id=?`)
	insertLoot, _ := s.db.Prepare(`INSERT INTO loot(run_id,seq,tick,wave,enemy_id,resource,amount) VALUES(?,(SELECT COALESCE(MAX(seq),0)+1 FROM loot WHERE run_id=?),?,?,?,?,?)`)
	upsertInventory, _ := s.db.Prepare(`INSERT INTO inventory(resource,amount,updated_at) VALUES(?,?,?)
		ON CONFLICT(resource) DO UPDATE SET amount=amount+excluded.amount, updated_at=excluded.updated_at`)
	stmts := []*sql.Stmt{insertRun, resetRun, deleteWaves, deleteLoot, upsertWave, completeWave, completeRun, insertLoot, upsertInventory}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrs.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		s.writeErrs.Add(1)
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqLoot:
			if !exec(upsertInventory, r.resource, r.amount, r.at) {
				continue
			}
		case reqEvent:
			ev := r.ev
			switch ev.Kind {
			case encounter.EventRunStarted:
				if !exec(insertRun, ev.RunID, ev.Seed, ev.TemplateID, int64(ev.Tick), r.at) {
					continue
				}
			case encounter.EventRunReset:
				if !exec(deleteLoot, ev.RunID) || !exec(deleteWaves, ev.RunID) || !exec(resetRun, ev.RunID) {
					continue
				}
			case encounter.EventWaveStarted:
				if !exec(upsertWave, ev.RunID, ev.Wave, ev.Enemies, int64(ev.Tick)) {
					continue
				}
			case encounter.EventWaveCompleted:
				if !exec(completeWave, int64(ev.Tick), ev.RunID, ev.Wave) {
					continue
				}
			case encounter.EventArenaCompleted:
				if !exec(completeRun, int64(ev.Tick), ev.RunID) {
					continue
				}
			case encounter.EventLootCollected:
				if !exec(insertLoot, ev.RunID, ev.RunID, int64(ev.Tick), ev.Wave, ev.EnemyID, ev.Resource, ev.Amount) {
					continue
				}
			}
		}
		flushIfNeeded()
	}
	commit()
}

type RunRow struct {
	RunID         string
	Seed          int64
	TemplateID    string
	StartedTick   uint64
	Completed     bool
	CompletedTick uint64
	ResetCount    int
	Waves         int
}

// Run returns the stored row for runID, or sql.ErrNoRows.
func (s *SQLiteLedger) Run(ctx context.Context, runID string) (RunRow, error) {
	var (
		r         RunRow
		started   int64
		completed int
		doneTick  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, seed, template_id, started_tick, completed, completed_tick, reset_count,
			(SELECT COUNT(*) FROM waves w WHERE w.run_id = runs.run_id)
		FROM runs WHERE run_id=?`, runID,
	).Scan(&r.RunID, &r.Seed, &r.TemplateID, &started, &completed, &doneTick, &r.ResetCount, &r.Waves)
	if err != nil {
		return RunRow{}, err
	}
	r.StartedTick = uint64(started)
	r.Completed = completed != 0
	if doneTick.Valid {
		r.CompletedTick = uint64(doneTick.Int64)
	}
	return r, nil
}

// RunTotals sums the loot recorded for runID by resource.
func (s *SQLiteLedger) RunTotals(ctx context.Context, runID string) (map[string]int, error) {
	return s.sumRows(ctx, `SELECT resource, SUM(amount) FROM loot WHERE run_id=? GROUP BY resource`, runID)
}

// Inventory returns the cross-run resource totals.
func (s *SQLiteLedger) Inventory(ctx context.Context) (map[string]int, error) {
	return s.sumRows(ctx, `SELECT resource, amount FROM inventory`)
}

func (s *SQLiteLedger) sumRows(ctx context.Context, q string, args ...any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			res string
			n   int
		)
		if err := rows.Scan(&res, &n); err != nil {
			return nil, err
		}
		out[res] = n
	}
	return out, rows.Err()
}
