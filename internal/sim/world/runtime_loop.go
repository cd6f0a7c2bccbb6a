package world

import (
	"context"
	"time"
)

// Run steps timeslices until ctx is cancelled or Stop is called. With a
// positive timeslice_interval_ms timeslices are paced by a ticker, otherwise
// they run back to back.
func (w *World) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if ms := w.cfg.Tuning.TimesliceIntervalMs; ms > 0 {
		ticker := time.NewTicker(time.Duration(ms) * time.Millisecond)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.stop:
				return nil
			default:
			}
			w.StepTimeslice()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-tick:
			w.StepTimeslice()
		}
	}
}

// Stop ends Run after the current timeslice. It is safe to call more than once.
func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }
