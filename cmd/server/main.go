package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	persistlog "evita/internal/persistence/log"
	"evita/internal/protocol"
	"evita/internal/sim/tuning"
	"evita/internal/sim/world"
	"evita/internal/transport/metrics"
	"evita/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		runIDFlag  = flag.String("run", "", "run id (default: random uuid)")
		seed       = flag.Int64("seed", 1337, "world seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the event index")
		statusSec  = flag.Int("status_every", 10, "seconds between status log lines (0 to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	runID := strings.TrimSpace(*runIDFlag)
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("create run dir: %v", err)
	}

	w, err := world.New(world.WorldConfig{ID: runID, Seed: *seed, Tuning: tune})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mirror, err := buildS3MirrorRuntime(ctx, *dataDir)
	if err != nil {
		logger.Fatalf("init s3 mirror: %v", err)
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(runDir, runID, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}

	logOpts := persistlog.LoggerOptions{}
	if mirror.enabled {
		logOpts.RotateLayout = mirror.rotateLayout
		logOpts.OnClose = mirror.Enqueue
	}
	eventLog := persistlog.NewEventLogger(runDir, logOpts)

	hub := observer.NewHub(observer.Options{
		LoopbackOnly: envBool("EVITA_OBSERVER_LOOPBACK_ONLY", false),
		Logger:       logger,
	})

	run := protocol.RunMsg{
		Type:            protocol.TypeRun,
		ProtocolVersion: protocol.Version,
		RunID:           runID,
		Seed:            *seed,
		Dimension:       w.Dimension(),
		TasksDigest:     w.Tasks().Digest,
		TuningDigest:    tune.Digest(),
		StartedAt:       time.Now().UnixMilli(),
	}
	if err := eventLog.WriteEvent(&run); err != nil {
		logger.Fatalf("write run header: %v", err)
	}
	if err := idx.RecordRun(run, tune); err != nil {
		logger.Printf("index backend: record run: %v", err)
	}
	w.SetEventLogger(world.EventLoggers{eventLog, idx, hub})

	sources := metrics.Sources{World: w, Observer: hub}
	if idx != nil {
		sources.Index = idx
	}
	if mirror.enabled {
		sources.Mirror = mirror.mirror
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(runID, sources),
	)

	logger.Printf("run=%s seed=%d lattice=%dx%d update_size=%s tasks=%d dir=%s",
		runID, *seed, tune.LatticeDimension, tune.LatticeDimension,
		humanize.Comma(int64(tune.UpdateSize())), len(w.Tasks().Defs), runDir)

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()

	if *statusSec > 0 {
		go statusLoop(ctx, w, eventLog, time.Duration(*statusSec)*time.Second, logger)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(w, hub, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		cancel()
	}

	// Drain in dependency order: the world stops writing, the log closes its
	// last segment (which may enqueue an upload), then the sinks drain.
	<-worldDone
	if err := eventLog.Close(); err != nil {
		logger.Printf("close event log: %v", err)
	}
	if err := idx.Close(); err != nil {
		logger.Printf("close index: %v", err)
	}
	mirror.Close()
	m := w.Metrics()
	logger.Printf("stopped at timeslice=%s divisions=%s", humanize.Comma(int64(m.Timeslice)), humanize.Comma(int64(m.DivisionsTotal)))
}

func newMux(w *world.World, hub *observer.Hub, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			RunID     string             `json:"run_id"`
			Dimension int                `json:"lattice_dimension"`
			Observers int                `json:"observers"`
			Metrics   world.WorldMetrics `json:"metrics"`
		}{
			RunID:     w.ID(),
			Dimension: w.Dimension(),
			Observers: hub.Clients(),
			Metrics:   w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/v1/observe", hub.Handler())
	return mux
}

func statusLoop(ctx context.Context, w *world.World, eventLog *persistlog.EventLogger, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := eventLog.Flush(); err != nil {
			logger.Printf("flush event log: %v", err)
		}
		m := w.Metrics()
		logger.Printf("timeslice=%s organisms=%s dormant=%s genotypes=%s dominant=%s(%d) executed=%s divisions=%s max_merit=%d step_ms=%.2f",
			humanize.Comma(int64(m.Timeslice)),
			humanize.Comma(int64(m.Organisms)),
			humanize.Comma(int64(m.Dormant)),
			humanize.Comma(int64(m.Genotypes)),
			m.Dominant, m.DominantCount,
			humanize.Comma(int64(m.ExecutedTotal)),
			humanize.Comma(int64(m.DivisionsTotal)),
			m.MaxMerit, m.StepMS)
	}
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
