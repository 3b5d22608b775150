package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "skirmish.gg/internal/persistence/log"
	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/encounter"
	"skirmish.gg/internal/sim/runtime"
	"skirmish.gg/internal/sim/tuning"
)

func main() {
	var (
		layoutPath = flag.String("layout", "", "path to a <run>.layout.zst snapshot to regenerate and verify")
		ticksDir   = flag.String("ticks", "", "ticks dir containing ticks-*.jsonl.zst to replay (optional)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst to summarize (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		toTick     = flag.Uint64("to_tick", 0, "stop replay at tick (inclusive, optional)")
	)
	flag.Parse()

	if *layoutPath == "" && *ticksDir == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "need at least one of -layout, -ticks, -events")
		os.Exit(2)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := *tuningPath
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	if *layoutPath != "" {
		if err := verifyLayout(*layoutPath, cats, tune); err != nil {
			fmt.Fprintln(os.Stderr, "layout:", err)
			os.Exit(1)
		}
	}
	if *ticksDir != "" {
		checked, err := replayTicks(*ticksDir, cats, tune, *toTick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
		fmt.Printf("replay ok: checked=%d ticks\n", checked)
	}
	if *eventsDir != "" {
		if err := summarizeEvents(os.Stdout, *eventsDir); err != nil {
			fmt.Fprintln(os.Stderr, "events:", err)
			os.Exit(1)
		}
	}
}

func verifyLayout(path string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	snap, err := snapshot.ReadLayout(path)
	if err != nil {
		return err
	}
	fmt.Printf("layout v%d run=%s seed=%d template=%s spawns=%d covers=%d/%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Seed, snap.Layout.TemplateID,
		len(snap.Layout.SpawnPoints), len(snap.Layout.Covers), snap.Layout.CoverTarget)

	if snap.TemplatesDigest != "" && snap.TemplatesDigest != cats.Templates.Digest {
		fmt.Printf("warning: templates digest differs (snapshot=%s configs=%s)\n", snap.TemplatesDigest, cats.Templates.Digest)
	}
	if snap.TuningDigest != "" && snap.TuningDigest != tune.Digest() {
		fmt.Printf("warning: tuning digest differs (snapshot=%s configs=%s)\n", snap.TuningDigest, tune.Digest())
	}

	gen, err := encounter.NewLayoutGenerator(cats.Templates.Defs, tune.Arena)
	if err != nil {
		return err
	}
	got := gen.Generate(snap.Header.Seed).Digest()
	if got != snap.Header.Digest {
		return fmt.Errorf("regenerated digest %s != recorded %s", got, snap.Header.Digest)
	}
	fmt.Printf("layout ok: digest=%s\n", got)
	return nil
}

func replayTicks(dir string, cats *catalogs.Catalogs, tune tuning.Tuning, toTick uint64) (uint64, error) {
	files, err := persistlog.ListFiles(dir, "ticks")
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no tick files found in %s", dir)
	}

	// Run IDs are not part of the digest, so any generator works here.
	sim, err := runtime.NewSim(runtime.SimConfig{Catalogs: cats, Tuning: tune, NewRunID: func() string { return "replay" }})
	if err != nil {
		return 0, err
	}
	rt, err := runtime.New(runtime.Config{Sim: sim, Catalogs: cats, Tuning: tune, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		return 0, err
	}

	var checked uint64
	errStop := errors.New("stop")
	for _, path := range files {
		err := persistlog.ScanFile(path, func(line []byte) error {
			var e runtime.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if toTick != 0 && e.Tick > toTick {
				return errStop
			}
			tick, digest := rt.StepOnce(e.Commands)
			if tick != e.Tick {
				return fmt.Errorf("tick mismatch: replay=%d log=%d", tick, e.Tick)
			}
			if digest != e.Digest {
				return fmt.Errorf("digest mismatch at tick %d: replay=%s log=%s", e.Tick, digest, e.Digest)
			}
			checked++
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}

func summarizeEvents(w io.Writer, dir string) error {
	files, err := persistlog.ListFiles(dir, "events")
	if err != nil {
		return err
	}
	counts := map[encounter.EventKind]int{}
	loot := map[string]map[string]int{}
	var runs []string
	for _, path := range files {
		err := persistlog.ScanFile(path, func(line []byte) error {
			var ev encounter.Event
			if err := json.Unmarshal(line, &ev); err != nil {
				return err
			}
			counts[ev.Kind]++
			switch ev.Kind {
			case encounter.EventRunStarted:
				if _, ok := loot[ev.RunID]; !ok {
					runs = append(runs, ev.RunID)
					loot[ev.RunID] = map[string]int{}
				}
			case encounter.EventRunReset:
				loot[ev.RunID] = map[string]int{}
			case encounter.EventLootCollected:
				if loot[ev.RunID] == nil {
					loot[ev.RunID] = map[string]int{}
				}
				loot[ev.RunID][ev.Resource] += ev.Amount
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "%-16s %d\n", k, counts[encounter.EventKind(k)])
	}
	for _, id := range runs {
		res := make([]string, 0, len(loot[id]))
		for r, n := range loot[id] {
			res = append(res, fmt.Sprintf("%s=%d", r, n))
		}
		sort.Strings(res)
		fmt.Fprintf(w, "run %s loot: %s\n", id, strings.Join(res, " "))
	}
	return nil
}
