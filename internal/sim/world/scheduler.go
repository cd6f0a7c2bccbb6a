package world

import (
	"sort"
	"time"

	"evita/internal/protocol"
)

// StepTimeslice runs one full timeslice: every organism is granted budget,
// then organisms are picked by stochastic acceptance until the attempt quota
// is used up or nothing is left to run. It returns the number of the
// timeslice that just completed and the lattice digest after it.
func (w *World) StepTimeslice() (timeslice uint64, digest string) {
	start := time.Now()
	w.slice = sliceStats{}

	for _, o := range w.cells {
		o.Grant()
	}
	w.buildRank()

	quota := w.cfg.Tuning.UpdateSize()
	for w.slice.attempts < quota && len(w.rank) > 0 {
		w.slice.attempts++
		cell := w.rank[w.rng.Intn(len(w.rank))]
		o := w.cells[cell]
		if w.rng.Int63n(w.maxBudget()) >= o.Budget() {
			continue
		}

		w.touched = append(w.touched[:0], cell)
		op, ok := o.Step(w)
		if ok {
			w.slice.executed++
			if w.cfg.Tuning.TraceSteps {
				x, y := o.Pos()
				w.emit(&protocol.StepMsg{
					Type:            protocol.TypeStep,
					ProtocolVersion: protocol.Version,
					Timeslice:       w.timeslice,
					Organism:        o.ID(),
					Cell:            protocol.Cell{x, y},
					Op:              op.String(),
				})
			}
		}
		for _, c := range w.touched {
			w.resift(c)
		}
	}

	w.total.executed += uint64(w.slice.executed)
	w.total.divisions += uint64(w.slice.divisions)

	timeslice = w.timeslice
	digest = w.stateDigest(timeslice)
	w.emit(w.timesliceMsg(timeslice, digest))
	w.timeslice++
	w.publishMetrics(time.Since(start))
	return timeslice, digest
}

// rankKey is the budget of a runnable organism and 0 otherwise, so that
// exhausted, dormant and newborn organisms sort to the tail.
func (w *World) rankKey(cell int) int64 {
	o := w.cells[cell]
	if o == nil || !o.Runnable() {
		return 0
	}
	return o.Budget()
}

func (w *World) buildRank() {
	w.rank = w.rank[:0]
	for i := range w.cells {
		w.rankPos[i] = -1
		if w.rankKey(i) > 0 {
			w.rank = append(w.rank, i)
		}
	}
	sort.SliceStable(w.rank, func(a, b int) bool {
		return w.rankKey(w.rank[a]) > w.rankKey(w.rank[b])
	})
	for p, c := range w.rank {
		w.rankPos[c] = p
	}
}

func (w *World) maxBudget() int64 {
	return w.rankKey(w.rank[0])
}

// resift restores the descending rank order after a cell's budget dropped.
// A cell whose key fell to 0 leaves the rank outright, so it can never sit
// in front of runnable cells. Others move toward the tail while a later
// neighbour has a larger key. Keys never grow inside a timeslice, so cells
// only move backward.
func (w *World) resift(cell int) {
	p := w.rankPos[cell]
	if p < 0 {
		return
	}
	k := w.rankKey(cell)
	if k == 0 {
		w.unrank(p)
		return
	}
	for p+1 < len(w.rank) && w.rankKey(w.rank[p+1]) > k {
		next := w.rank[p+1]
		w.rank[p], w.rank[p+1] = next, cell
		w.rankPos[next] = p
		p++
	}
	w.rankPos[cell] = p
}

func (w *World) unrank(p int) {
	cell := w.rank[p]
	copy(w.rank[p:], w.rank[p+1:])
	w.rank = w.rank[:len(w.rank)-1]
	for i := p; i < len(w.rank); i++ {
		w.rankPos[w.rank[i]] = i
	}
	w.rankPos[cell] = -1
}
