package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"skirmish.gg/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "layouts":
			layoutsCmd(os.Args[2:])
			return
		case "ledger":
			ledgerCmd(os.Args[2:])
			return
		case "run":
			runCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	arenaID := fs.String("arena", "", "arena id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "arenas")
	if *arenaID != "" {
		base = filepath.Join(base, *arenaID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func layoutsCmd(args []string) {
	fs := flag.NewFlagSet("layouts", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	arenaID := fs.String("arena", "", "arena id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*arenaID) == "" {
		fmt.Fprintln(os.Stderr, "missing -arena")
		os.Exit(2)
	}
	if err := listLayouts(os.Stdout, filepath.Join(*dataDir, "arenas", *arenaID, "layouts")); err != nil {
		fmt.Fprintln(os.Stderr, "layouts:", err)
		os.Exit(1)
	}
}

// listLayouts prints the header of every layout snapshot in dir. Only the
// JSON header line is decoded.
func listLayouts(w io.Writer, dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".layout.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := snapshot.ReadHeader(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			continue
		}
		printJSON(w, h)
	}
	return nil
}
