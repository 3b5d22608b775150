package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	arenaID := fs.String("arena", "", "arena id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id filter (waves, loot)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*arenaID) == "" {
			fmt.Fprintln(os.Stderr, "missing -arena or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "arenas", *arenaID, "index", "ledger.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := queryDB(os.Stdout, db, q, *runID, *limit); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func queryDB(w io.Writer, db *sql.DB, q, runID string, limit int) error {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "runs":
		rows, err := db.Query(`SELECT run_id,seed,template_id,started_tick,started_at,completed,COALESCE(completed_tick,0),reset_count FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID         string `json:"run_id"`
				Seed          int64  `json:"seed"`
				TemplateID    string `json:"template_id"`
				StartedTick   int64  `json:"started_tick"`
				StartedAt     string `json:"started_at"`
				Completed     bool   `json:"completed"`
				CompletedTick int64  `json:"completed_tick,omitempty"`
				ResetCount    int    `json:"reset_count"`
			}
			if err := rows.Scan(&r.RunID, &r.Seed, &r.TemplateID, &r.StartedTick, &r.StartedAt, &r.Completed, &r.CompletedTick, &r.ResetCount); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "waves":
		if runID == "" {
			return fmt.Errorf("missing -run")
		}
		rows, err := db.Query(`SELECT wave,enemies,started_tick,completed_tick FROM waves WHERE run_id=? ORDER BY wave LIMIT ?`, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				r struct {
					Wave          int    `json:"wave"`
					Enemies       int    `json:"enemies"`
					StartedTick   int64  `json:"started_tick"`
					CompletedTick *int64 `json:"completed_tick"`
				}
				done sql.NullInt64
			)
			if err := rows.Scan(&r.Wave, &r.Enemies, &r.StartedTick, &done); err != nil {
				return err
			}
			if done.Valid {
				r.CompletedTick = &done.Int64
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "loot":
		if runID == "" {
			return fmt.Errorf("missing -run")
		}
		rows, err := db.Query(`SELECT seq,tick,wave,enemy_id,resource,amount FROM loot WHERE run_id=? ORDER BY seq LIMIT ?`, runID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq      int    `json:"seq"`
				Tick     int64  `json:"tick"`
				Wave     int    `json:"wave"`
				EnemyID  string `json:"enemy_id"`
				Resource string `json:"resource"`
				Amount   int    `json:"amount"`
			}
			if err := rows.Scan(&r.Seq, &r.Tick, &r.Wave, &r.EnemyID, &r.Resource, &r.Amount); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "inventory":
		rows, err := db.Query(`SELECT resource,amount,updated_at FROM inventory ORDER BY resource`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Resource  string `json:"resource"`
				Amount    int    `json:"amount"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Resource, &r.Amount, &r.UpdatedAt); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()
	}
	return fmt.Errorf("unknown query %q (runs|waves|loot|inventory)", q)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
