package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"skirmish.gg/internal/persistence/ledgerdb"
)

// ledgerReader is what the admin endpoints need from the ledger.
type ledgerReader interface {
	Inventory(ctx context.Context) (map[string]int, error)
	Run(ctx context.Context, runID string) (ledgerdb.RunRow, error)
	RunTotals(ctx context.Context, runID string) (map[string]int, error)
	Stats() ledgerdb.Stats
}

func openLedger(arenaDir string, disableDB bool, logger *log.Logger) (*ledgerdb.SQLiteLedger, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SK_LEDGER_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Printf("ledger disabled (SK_LEDGER_BACKEND=%s)", backend)
		return nil, nil
	case "sqlite":
		dbPath := strings.TrimSpace(os.Getenv("SK_LEDGER_PATH"))
		if dbPath == "" {
			dbPath = filepath.Join(arenaDir, "index", "ledger.sqlite")
		}
		l, err := ledgerdb.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		logger.Printf("ledger backend=sqlite path=%s", dbPath)
		return l, nil
	default:
		return nil, fmt.Errorf("unknown SK_LEDGER_BACKEND=%q", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
