package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "evita/internal/persistence/log"
	"evita/internal/protocol"
	"evita/internal/sim/tuning"
	"evita/internal/sim/world"
)

func main() {
	var (
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "world seed (default: taken from the RUN event)")
		toSlice    = flag.Uint64("to_timeslice", 0, "stop after this timeslice (inclusive, optional)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	opts := verifyOptions{To: *toSlice}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.Seed = seed
		}
	})

	res, err := verify(*eventsDir, tune, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: run=%s seed=%d checked=%d timeslices files=%d\n", res.RunID, res.Seed, res.Checked, res.Files)
}

type verifyOptions struct {
	// Seed overrides the seed recorded in the RUN event.
	Seed *int64
	// To stops verification after this timeslice; 0 checks everything.
	To uint64
}

type verifyResult struct {
	RunID   string
	Seed    int64
	Files   int
	Checked uint64
}

var errStop = errors.New("stop")

// verify rebuilds the world from tune and the recorded seed and steps it
// once per recorded TIMESLICE, comparing state digests.
func verify(eventsDir string, tune tuning.Tuning, opts verifyOptions) (verifyResult, error) {
	var res verifyResult

	files, err := persistlog.ListSegments(eventsDir, "events")
	if err != nil {
		return res, fmt.Errorf("list events: %w", err)
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no events files found in %s", eventsDir)
	}
	res.Files = len(files)

	var w *world.World
	newWorld := func(runID string, seed int64) error {
		var err error
		w, err = world.New(world.WorldConfig{ID: runID, Seed: seed, Tuning: tune})
		res.RunID, res.Seed = runID, seed
		return err
	}

	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			ev, ok, err := protocol.Decode(line)
			if err != nil {
				return fmt.Errorf("%s: decode: %w", filepath.Base(path), err)
			}
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case *protocol.RunMsg:
				if w != nil {
					return fmt.Errorf("%s: second RUN event", filepath.Base(path))
				}
				if e.TuningDigest != "" && e.TuningDigest != tune.Digest() {
					return fmt.Errorf("tuning digest mismatch: log=%s local=%s", e.TuningDigest, tune.Digest())
				}
				seed := e.Seed
				if opts.Seed != nil {
					seed = *opts.Seed
				}
				return newWorld(e.RunID, seed)
			case *protocol.TimesliceMsg:
				if w == nil {
					if opts.Seed == nil {
						return fmt.Errorf("%s: TIMESLICE before RUN and no -seed given", filepath.Base(path))
					}
					if err := newWorld("replay", *opts.Seed); err != nil {
						return err
					}
				}
				if opts.To != 0 && e.Timeslice > opts.To {
					return errStop
				}
				if e.Timeslice != w.Timeslice() {
					return fmt.Errorf("timeslice mismatch: want=%d got=%d (file=%s)", w.Timeslice(), e.Timeslice, filepath.Base(path))
				}
				ts, digest := w.StepTimeslice()
				if digest != e.Digest {
					return fmt.Errorf("digest mismatch at timeslice %d: got=%s want=%s", ts, digest, e.Digest)
				}
				res.Checked++
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return res, err
		}
	}
	if res.Checked == 0 {
		return res, fmt.Errorf("no TIMESLICE events in %s", eventsDir)
	}
	return res, nil
}
