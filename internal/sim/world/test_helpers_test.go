package world

import (
	"testing"

	"evita/internal/protocol"
	"evita/internal/sim/tuning"
)

type recorder struct {
	events []protocol.Event
}

func (r *recorder) WriteEvent(ev protocol.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) reset() { r.events = r.events[:0] }

func testTuning(dim int) tuning.Tuning {
	t := tuning.Defaults()
	t.LatticeDimension = dim
	t.PointMutationRate = 0
	t.FrameshiftRate = 0
	return t
}

func newTestWorld(t *testing.T, tun tuning.Tuning, seed int64) (*World, *recorder) {
	t.Helper()
	w, err := New(WorldConfig{ID: "test", Seed: seed, Tuning: tun})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &recorder{}
	w.SetEventLogger(rec)
	return w, rec
}
