package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"skirmish.gg/internal/persistence/ledgerdb"
	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/encounter"
)

func TestQueryDB_LedgerTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.sqlite")
	led, err := ledgerdb.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	led.OnEncounterEvent(encounter.Event{Kind: encounter.EventRunStarted, RunID: "r1", Seed: 42, TemplateID: "pit"})
	led.OnEncounterEvent(encounter.Event{Kind: encounter.EventWaveStarted, RunID: "r1", Wave: 1, Enemies: 3, Tick: 1})
	led.OnEncounterEvent(encounter.Event{Kind: encounter.EventLootCollected, RunID: "r1", Wave: 1, EnemyID: "grunt-1", Resource: "coins", Amount: 2, Tick: 3})
	led.AddToRunLoot("coins", 2)
	if err := led.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var out bytes.Buffer
	if err := queryDB(&out, db, "runs", "", 0); err != nil {
		t.Fatalf("runs: %v", err)
	}
	var run struct {
		RunID     string `json:"run_id"`
		Seed      int64  `json:"seed"`
		Completed bool   `json:"completed"`
	}
	if err := json.Unmarshal(out.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v (%s)", err, out.String())
	}
	if run.RunID != "r1" || run.Seed != 42 || run.Completed {
		t.Fatalf("run=%+v", run)
	}

	out.Reset()
	if err := queryDB(&out, db, "waves", "r1", 10); err != nil {
		t.Fatalf("waves: %v", err)
	}
	if !strings.Contains(out.String(), `"completed_tick":null`) {
		t.Fatalf("waves=%s", out.String())
	}

	out.Reset()
	if err := queryDB(&out, db, "loot", "r1", 10); err != nil {
		t.Fatalf("loot: %v", err)
	}
	if !strings.Contains(out.String(), `"enemy_id":"grunt-1"`) {
		t.Fatalf("loot=%s", out.String())
	}

	out.Reset()
	if err := queryDB(&out, db, "inventory", "", 0); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if !strings.Contains(out.String(), `"amount":2`) {
		t.Fatalf("inventory=%s", out.String())
	}

	if err := queryDB(&out, db, "waves", "", 0); err == nil {
		t.Fatalf("expected missing -run error")
	}
	if err := queryDB(&out, db, "agents", "", 0); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestListLayouts(t *testing.T) {
	dir := t.TempDir()
	l := &encounter.Layout{Seed: 9, TemplateID: "pit", Width: 20, Depth: 20}
	if err := snapshot.WriteLayout(filepath.Join(dir, "run-b.layout.zst"), snapshot.NewLayoutV1("run-b", l, "", "")); err != nil {
		t.Fatalf("WriteLayout: %v", err)
	}
	if err := snapshot.WriteLayout(filepath.Join(dir, "run-a.layout.zst"), snapshot.NewLayoutV1("run-a", l, "", "")); err != nil {
		t.Fatalf("WriteLayout: %v", err)
	}

	var out bytes.Buffer
	if err := listLayouts(&out, dir); err != nil {
		t.Fatalf("listLayouts: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], `"run_id":"run-a"`) || !strings.Contains(lines[1], `"seed":9`) {
		t.Fatalf("out=%s", out.String())
	}
}
