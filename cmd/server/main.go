package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"bubbles.ai/internal/node"
	"bubbles.ai/internal/persistence/archive"
	persistlog "bubbles.ai/internal/persistence/log"
	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
	"bubbles.ai/internal/sim/world"
	"bubbles.ai/internal/transport/ledger"
	"bubbles.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		genesis    = flag.String("genesis", "", "path to genesis.yaml (default: <configs>/genesis.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume from the newest checkpoint in the data dir if present (when -snapshot is empty)")

		ledgerURL   = flag.String("ledger_ws", "", "indexer websocket feed (empty runs prediction only)")
		frameMs     = flag.Int("frame_ms", 50, "predicted timeline frame interval")
		predTimeout = flag.Int64("prediction_timeout_ms", 30000, "drop predictions unconfirmed for this long (0 keeps them)")
		keepSnaps   = flag.Int("keep_snapshots", 240, "checkpoint files kept on disk")
		corsOrigin  = flag.String("cors_origin", "", "comma separated allowed CORS origins (default: localhost)")
		wsRate      = flag.Float64("ws_inputs_per_sec", 20, "per-connection INPUT rate")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

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

	gp := strings.TrimSpace(*genesis)
	if gp == "" {
		gp = filepath.Join(*configDir, "genesis.yaml")
	}
	base, err := loadBase(tune, strings.TrimSpace(*snapPath), *loadLatest, *dataDir, gp, logger)
	if err != nil {
		logger.Fatalf("base state: %v", err)
	}

	idx, err := openIndex(*dataDir, *disableDB, tune, logger)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}

	persister := &node.Persister{
		Ledger:  persistlog.NewLedgerLogger(*dataDir),
		Archive: archive.NewCheckpoints(*dataDir, *keepSnaps),
		Index:   idx,
		Log:     logger,
	}
	defer persister.Close()

	n, err := node.New(node.Config{
		Tuning:              tune,
		Logger:              logger,
		FrameEvery:          time.Duration(*frameMs) * time.Millisecond,
		PredictionTimeoutMs: *predTimeout,
	}, base, persister)
	if err != nil {
		logger.Fatalf("node: %v", err)
	}

	val, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("schemas: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("node stopped: %v", err)
		}
	}()

	if u := strings.TrimSpace(*ledgerURL); u != "" {
		lc := &ledger.Client{URL: u, Sink: n, Val: val, Log: logger, From: base.Timestamp}
		go func() {
			if err := lc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("ledger feed stopped: %v", err)
			}
		}()
	} else {
		logger.Printf("no -ledger_ws; running prediction only")
	}

	var origins []string
	for _, o := range strings.Split(*corsOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	wsSrv := ws.NewServer(n, val, ws.Options{InputsPerSecond: *wsRate}, logger)
	r := node.NewRouter(node.RouterConfig{
		State:       n,
		Index:       idx,
		WS:          wsSrv.Handler(),
		CORSOrigins: origins,
	})
	if envBool("BUBBLES_ENABLE_PPROF_HTTP", false) {
		r.HandleFunc("/debug/pprof/*", loopbackOnly(pprof.Index))
		r.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		r.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		r.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		r.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	} else {
		logger.Printf("pprof endpoints disabled (BUBBLES_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s clock=%d", *addr, base.Timestamp)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-runDone
}

// loadBase picks the starting state: an explicit snapshot, else the newest
// checkpoint, else genesis.
func loadBase(tune tuning.Tuning, snapPath string, loadLatest bool, dataDir, genesisPath string, logger *log.Logger) (*snapshot.Snapshot, error) {
	if snapPath != "" {
		snap, hdr, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, err
		}
		logger.Printf("resumed from snapshot=%s ts=%d digest=%s", filepath.Base(snapPath), snap.Timestamp, hdr.Digest)
		return snap, nil
	}
	if loadLatest {
		snap, hdr, err := archive.Latest(archive.Dir(dataDir), -1)
		switch {
		case err == nil:
			logger.Printf("resumed from checkpoint ts=%d digest=%s", snap.Timestamp, hdr.Digest)
			return snap, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	w, err := world.New(tune, 0)
	if err != nil {
		return nil, err
	}
	g, err := tuning.LoadGenesis(genesisPath)
	switch {
	case err == nil:
		if err := w.ApplyGenesis(g); err != nil {
			return nil, err
		}
		logger.Printf("fresh world from %s", genesisPath)
	case os.IsNotExist(err):
		logger.Printf("genesis not found (%s); starting empty", genesisPath)
	default:
		return nil, err
	}
	return w.CreateState(), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
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

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
