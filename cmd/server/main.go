package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "skirmish.gg/internal/persistence/log"
	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/catalogs"
	"skirmish.gg/internal/sim/runtime"
	"skirmish.gg/internal/sim/tuning"
	"skirmish.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		arenaID    = flag.String("arena", "arena_1", "arena id (data subdirectory)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite run ledger")
		seed       = flag.Int64("seed", 0, "generate an arena with this seed at startup")
		autoStart  = flag.Bool("auto_start", false, "spawn wave 1 after the startup arena is generated")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version=%s, server speaks %s", tune.ProtocolVersion, protocol.Version)
	}

	arenaDir := filepath.Join(*dataDir, "arenas", *arenaID)
	_ = os.MkdirAll(arenaDir, 0o755)

	// Optional: run ledger (does not affect sim determinism).
	ledger, err := openLedger(arenaDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open ledger: %v", err)
	}
	if ledger != nil {
		defer ledger.Close()
	}

	simCfg := runtime.SimConfig{
		Catalogs: cats,
		Tuning:   tune,
		Logger:   log.New(os.Stdout, "[encounter] ", log.LstdFlags|log.Lmicroseconds),
	}
	if ledger != nil {
		simCfg.Sink = ledger
	}
	sim, err := runtime.NewSim(simCfg)
	if err != nil {
		logger.Fatalf("sim: %v", err)
	}
	if ledger != nil {
		sim.Enc.Subscribe(ledger)
	}

	tickLog := persistlog.NewTickLogger(arenaDir)
	eventLog := persistlog.NewEventLogger(arenaDir)
	defer tickLog.Close()
	defer eventLog.Close()

	rt, err := runtime.New(runtime.Config{
		Sim:         sim,
		Catalogs:    cats,
		Tuning:      tune,
		TickLogger:  tickLog,
		EventLogger: eventLog,
		LayoutRecorder: &snapshot.Recorder{
			Dir:             filepath.Join(arenaDir, "layouts"),
			TemplatesDigest: cats.Templates.Digest,
			TuningDigest:    tune.Digest(),
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("runtime: %v", err)
	}

	flagSet := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { flagSet[f.Name] = true })
	if flagSet["seed"] {
		rt.Submit(runtime.Request{Cmd: runtime.Command{Type: protocol.CmdGenerate, Seed: *seed}})
		if *autoStart {
			rt.Submit(runtime.Request{Cmd: runtime.Command{Type: protocol.CmdSpawnWave, Wave: 1}})
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("runtime stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	if envBool("SK_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		var lr ledgerReader
		if ledger != nil {
			lr = ledger
		}
		registerAdmin(mux, lr)
	} else {
		logger.Printf("admin endpoints disabled (SK_ENABLE_ADMIN_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(rt, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s arena=%s data=%s", *addr, *arenaID, arenaDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-runDone
}

func registerAdmin(mux *http.ServeMux, ledger ledgerReader) {
	loopbackOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			h(rw, r)
		}
	}
	mux.HandleFunc("GET /admin/v1/ledger", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			http.Error(rw, "ledger disabled", http.StatusNotFound)
			return
		}
		inv, err := ledger.Inventory(r.Context())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, map[string]any{"inventory": inv, "stats": ledger.Stats()})
	}))
	mux.HandleFunc("GET /admin/v1/runs/{id}", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			http.Error(rw, "ledger disabled", http.StatusNotFound)
			return
		}
		id := r.PathValue("id")
		run, err := ledger.Run(r.Context(), id)
		if err != nil {
			http.Error(rw, fmt.Sprintf("run %s: %v", id, err), http.StatusNotFound)
			return
		}
		totals, err := ledger.RunTotals(r.Context(), id)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, map[string]any{"run": run, "loot": totals})
	}))
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
