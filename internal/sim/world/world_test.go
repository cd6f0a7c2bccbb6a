package world

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"evita/internal/protocol"
	"evita/internal/sim/encoding"
	"evita/internal/sim/isa"
	"evita/internal/sim/tasks"
	"evita/internal/sim/tuning"
)

func TestNew_RejectsNonPositiveDimension(t *testing.T) {
	for _, dim := range []int{0, -1} {
		if _, err := New(WorldConfig{Tuning: testTuning(dim)}); err == nil {
			t.Fatalf("dimension %d: expected error", dim)
		}
	}
}

func TestNew_SeedsEveryCell(t *testing.T) {
	w, _ := newTestWorld(t, testTuning(3), 1)
	seen := map[uint64]bool{}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			o := w.At(x, y)
			if o == nil {
				t.Fatalf("cell (%d,%d) empty", x, y)
			}
			if ox, oy := o.Pos(); ox != x || oy != y {
				t.Fatalf("cell (%d,%d) holds organism at (%d,%d)", x, y, ox, oy)
			}
			if o.Len() != 50 || o.Merit() != 1 || o.Budget() != 0 {
				t.Fatalf("unexpected seed organism: len=%d merit=%d budget=%d", o.Len(), o.Merit(), o.Budget())
			}
			seen[o.ID()] = true
		}
	}
	if len(seen) != 9 {
		t.Fatalf("ids not unique: %d", len(seen))
	}
	if w.At(-1, 3) != w.At(2, 0) {
		t.Fatalf("At does not wrap")
	}
	m := w.Metrics()
	if m.Organisms != 9 || m.Genotypes != 1 || m.DominantCount != 9 {
		t.Fatalf("metrics=%+v", m)
	}
}

// firstDivision steps w until a DIVISION event is emitted.
func firstDivision(t *testing.T, w *World, rec *recorder, limit int) (*protocol.DivisionMsg, uint64) {
	t.Helper()
	for i := 0; i < limit; i++ {
		rec.reset()
		ts, _ := w.StepTimeslice()
		for _, ev := range rec.events {
			if d, ok := ev.(*protocol.DivisionMsg); ok {
				return d, ts
			}
		}
	}
	t.Fatalf("no division after %d timeslices", limit)
	return nil, 0
}

func TestSelfReplicator_OneCellLattice(t *testing.T) {
	tun := testTuning(1)
	w, rec := newTestWorld(t, tun, 7)
	parentID := w.At(0, 0).ID()

	div, ts := firstDivision(t, w, rec, 200)
	if div.Parent != parentID {
		t.Fatalf("parent=%d want %d", div.Parent, parentID)
	}
	if div.Target != (protocol.Cell{0, 0}) || !div.SelfReplaced || div.Replaced != parentID {
		t.Fatalf("division=%+v", div)
	}

	want, _ := isa.ParseAll(tuning.SelfReplicator)
	got, err := encoding.DecodeOps(div.Genome)
	if err != nil {
		t.Fatalf("DecodeOps: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("offspring len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offspring[%d]=%v want %v", i, got[i], want[i])
		}
	}

	child := w.At(0, 0)
	if child.ID() != div.Offspring || child.Budget() != 0 || child.Merit() != 1 {
		t.Fatalf("cell holds id=%d budget=%d merit=%d", child.ID(), child.Budget(), child.Merit())
	}

	// Same seed, same step count.
	w2, rec2 := newTestWorld(t, tun, 7)
	div2, ts2 := firstDivision(t, w2, rec2, 200)
	if ts2 != ts || div2.Offspring != div.Offspring || div2.Genome != div.Genome {
		t.Fatalf("division not deterministic: ts %d vs %d", ts, ts2)
	}
}

func TestScheduler_NeverExecutesWithoutBudget(t *testing.T) {
	tun := tuning.Defaults()
	tun.LatticeDimension = 3
	tun.AvgInstructionsPerUpdate = 200
	tun.TraceSteps = true
	w, rec := newTestWorld(t, tun, 5)

	for slice := 0; slice < 40; slice++ {
		granted := map[uint64]int64{}
		for _, o := range w.cells {
			granted[o.ID()] = o.Budget() + int64(o.BirthLen())*o.Merit()
		}

		rec.reset()
		w.StepTimeslice()

		steps := map[uint64]int64{}
		for _, ev := range rec.events {
			if s, ok := ev.(*protocol.StepMsg); ok {
				steps[s.Organism]++
			}
		}
		for id, n := range steps {
			budget, ok := granted[id]
			if !ok {
				t.Fatalf("slice %d: organism %d born this slice executed %d steps", slice, id, n)
			}
			if n > budget {
				t.Fatalf("slice %d: organism %d executed %d steps with budget %d", slice, id, n, budget)
			}
		}
	}
}

func TestScheduler_EndsEarlyWhenNothingRunnable(t *testing.T) {
	tun := testTuning(1)
	tun.AvgInstructionsPerUpdate = 1000
	w, rec := newTestWorld(t, tun, 3)

	w.StepTimeslice()
	var msg *protocol.TimesliceMsg
	for _, ev := range rec.events {
		if m, ok := ev.(*protocol.TimesliceMsg); ok {
			msg = m
		}
	}
	if msg == nil {
		t.Fatalf("no TIMESLICE event")
	}
	if msg.Attempts >= 1000 {
		t.Fatalf("attempts=%d, expected the slice to end once the budget ran out", msg.Attempts)
	}
	if msg.Executed > 50 {
		t.Fatalf("executed=%d exceeds the granted budget of 50", msg.Executed)
	}
}

func checkRank(t *testing.T, w *World, when string) {
	t.Helper()
	for p, c := range w.rank {
		if w.rankPos[c] != p {
			t.Fatalf("%s: rankPos[%d]=%d want %d", when, c, w.rankPos[c], p)
		}
		if w.rankKey(c) == 0 {
			t.Fatalf("%s: cell %d ranked at %d with key 0", when, c, p)
		}
		if p > 0 && w.rankKey(w.rank[p-1]) < w.rankKey(c) {
			t.Fatalf("%s: rank not descending at %d", when, p)
		}
	}
	for c, p := range w.rankPos {
		if p >= 0 && (p >= len(w.rank) || w.rank[p] != c) {
			t.Fatalf("%s: stale rankPos[%d]=%d", when, c, p)
		}
	}
}

func TestResift_ZeroKeysLeaveRankTogether(t *testing.T) {
	w, _ := newTestWorld(t, testTuning(4), 11)
	for i, o := range w.cells {
		for k := 0; k <= i%3; k++ {
			o.Grant()
		}
	}
	w.buildRank()
	if len(w.rank) < 3 {
		t.Fatalf("rank too short: %d", len(w.rank))
	}

	// The acting cell and the next ranked cell both drop to key 0 in one
	// step, as when a parent spends its last budget dividing into its
	// neighbour in rank.
	acting, target := w.rank[0], w.rank[1]
	w.cells[acting], w.cells[target] = nil, nil
	w.resift(acting)
	w.resift(target)

	checkRank(t, w, "after resift")
	if w.rankPos[acting] != -1 || w.rankPos[target] != -1 {
		t.Fatalf("exhausted cells still ranked: %d %d", w.rankPos[acting], w.rankPos[target])
	}
	if w.maxBudget() <= 0 {
		t.Fatalf("maxBudget=%d", w.maxBudget())
	}
}

func TestScheduler_RankStaysOrderedUnderMutation(t *testing.T) {
	cases := []struct {
		name  string
		dim   int
		point float64
		shift float64
		avg   int
		seed  int64
		n     int
	}{
		{name: "heavy mutation", dim: 6, point: 0.05, shift: 0.5, avg: 50, seed: 1, n: 250},
		{name: "defaults", dim: 8, point: tuning.Defaults().PointMutationRate, shift: tuning.Defaults().FrameshiftRate, avg: 30, seed: 3, n: 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tun := tuning.Defaults()
			tun.LatticeDimension = tc.dim
			tun.PointMutationRate = tc.point
			tun.FrameshiftRate = tc.shift
			tun.AvgInstructionsPerUpdate = tc.avg
			w, _ := newTestWorld(t, tun, tc.seed)

			for i := 0; i < tc.n; i++ {
				ts, _ := w.StepTimeslice()
				checkRank(t, w, fmt.Sprintf("timeslice %d", ts))
			}
			if w.Metrics().DivisionsTotal == 0 {
				t.Fatalf("no divisions in %d timeslices", tc.n)
			}
		})
	}
}

func TestBuildRank_DescendingBudget(t *testing.T) {
	w, _ := newTestWorld(t, testTuning(4), 11)
	for i, o := range w.cells {
		for k := 0; k < i%5; k++ {
			o.Grant()
		}
	}
	w.buildRank()
	if len(w.rank) == 0 {
		t.Fatalf("empty rank")
	}
	for p := 1; p < len(w.rank); p++ {
		if w.rankKey(w.rank[p-1]) < w.rankKey(w.rank[p]) {
			t.Fatalf("rank not descending at %d", p)
		}
	}
	for p, c := range w.rank {
		if w.rankPos[c] != p {
			t.Fatalf("rankPos[%d]=%d want %d", c, w.rankPos[c], p)
		}
	}
	if w.maxBudget() != w.rankKey(w.rank[0]) {
		t.Fatalf("maxBudget mismatch")
	}
	for i := range w.cells {
		if i%5 == 0 && w.rankPos[i] != -1 {
			t.Fatalf("cell %d without budget is ranked", i)
		}
	}
}

func TestDivide_PlacesInNeighbourhood(t *testing.T) {
	w, rec := newTestWorld(t, testTuning(5), 2)
	parent := w.At(0, 0)
	allowed := map[int]bool{4: true, 0: true, 1: true}
	for i := 0; i < 200; i++ {
		rec.reset()
		w.Divide(parent, isa.FromOps([]isa.Op{isa.Inc, isa.Dec}))
		d := rec.events[0].(*protocol.DivisionMsg)
		if !allowed[d.Target[0]] || !allowed[d.Target[1]] {
			t.Fatalf("target %v outside the neighbourhood of (0,0)", d.Target)
		}
		if got := w.At(d.Target[0], d.Target[1]); got.ID() != d.Offspring || got.Len() != 2 {
			t.Fatalf("offspring not written to target")
		}
	}
	if got := w.census.Count(); got != 25 {
		t.Fatalf("census count=%d want 25", got)
	}
}

func TestDivide_NilOffspringSpawnsNothing(t *testing.T) {
	w, rec := newTestWorld(t, testTuning(2), 2)
	before := w.nextID
	w.Divide(w.At(1, 1), nil)
	if len(rec.events) != 0 || w.nextID != before {
		t.Fatalf("nil offspring produced an organism")
	}
}

func TestTaskCredited_EmitsEvent(t *testing.T) {
	w, rec := newTestWorld(t, testTuning(1), 2)
	o := w.At(0, 0)
	w.TaskCredited(o, tasks.Match{Task: "NOT", Merit: 2})
	ev, ok := rec.events[0].(*protocol.TaskMsg)
	if !ok || ev.Task != "NOT" || ev.MeritDelta != 2 || ev.Organism != o.ID() {
		t.Fatalf("event=%+v", rec.events[0])
	}
	w.StepTimeslice()
	if got := w.Metrics().TaskCreditsTotal["NOT"]; got != 1 {
		t.Fatalf("task credits total=%d want 1", got)
	}
}

func TestDeterminism_SameSeedSameDigest(t *testing.T) {
	tun := tuning.Defaults()
	tun.LatticeDimension = 4
	w1, _ := newTestWorld(t, tun, 42)
	w2, _ := newTestWorld(t, tun, 42)
	w3, _ := newTestWorld(t, tun, 43)

	var diverged bool
	for i := 0; i < 25; i++ {
		ts1, d1 := w1.StepTimeslice()
		ts2, d2 := w2.StepTimeslice()
		_, d3 := w3.StepTimeslice()
		if ts1 != ts2 || d1 != d2 {
			t.Fatalf("slice %d: digest mismatch %s vs %s", i, d1, d2)
		}
		if d1 != d3 {
			diverged = true
		}
	}
	if !diverged {
		t.Fatalf("different seeds produced identical digests")
	}
}

func TestRun_StopAndCancel(t *testing.T) {
	tun := testTuning(2)
	tun.TimesliceIntervalMs = 1
	w, _ := newTestWorld(t, tun, 1)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}

	w2, _ := newTestWorld(t, testTuning(2), 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- w2.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if w2.Metrics().Timeslice == 0 {
		t.Fatalf("free-running world made no progress")
	}
}

type failingLogger struct{}

func (failingLogger) WriteEvent(protocol.Event) error { return errors.New("boom") }

func TestEventLoggers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	ls := EventLoggers{a, nil, failingLogger{}, b}
	err := ls.WriteEvent(&protocol.StepMsg{Type: protocol.TypeStep})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("fan-out delivered %d/%d", len(a.events), len(b.events))
	}
}
