package world

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"evita/internal/protocol"
	"evita/internal/sim/census"
	"evita/internal/sim/isa"
	"evita/internal/sim/organism"
	"evita/internal/sim/tasks"
	"evita/internal/sim/tuning"
)

type WorldConfig struct {
	ID     string
	Seed   int64
	Tuning tuning.Tuning
}

// World is a single-threaded simulation of a toroidal lattice of organisms.
// All state must be accessed only from the goroutine driving Run or
// StepTimeslice; Metrics is the exception.
type World struct {
	cfg    WorldConfig
	dim    int
	params organism.Params
	rng    *rand.Rand

	// cells is the lattice in row-major order (y*dim + x). Organisms are only
	// ever referenced by cell index.
	cells     []*organism.Organism
	genotypes []census.Genotype
	census    *census.Census
	nextID    uint64

	timeslice uint64

	// Scheduler rank: runnable cells ordered by descending budget, and the
	// position of each cell in it (-1 when absent).
	rank    []int
	rankPos []int
	touched []int

	slice sliceStats
	total totals

	eventLogger EventLogger

	metrics  atomic.Value // WorldMetrics
	stop     chan struct{}
	stopOnce sync.Once
}

type sliceStats struct {
	executed    int
	attempts    int
	divisions   int
	taskCredits int
}

type totals struct {
	executed    uint64
	divisions   uint64
	taskCredits map[string]uint64
}

// New validates the tuning and seeds every lattice cell with the initial
// genome.
func New(cfg WorldConfig) (*World, error) {
	t := cfg.Tuning
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	ops, err := t.Instructions()
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	cat, err := t.Catalog()
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	ancestor, err := t.Genome()
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}

	n := t.LatticeDimension * t.LatticeDimension
	w := &World{
		cfg: cfg,
		dim: t.LatticeDimension,
		params: organism.Params{
			PointMutationRate: t.PointMutationRate,
			FrameshiftRate:    t.FrameshiftRate,
			AllocBatch:        t.AllocBatch,
			MaxGenomeLen:      t.MaxGenomeLength,
			MaxGrowth:         t.OffspringMaxGrowth,
			StackDepth:        t.StackDepth,
			CopyHistory:       t.CopyHistory,
			InstructionSet:    ops,
			Tasks:             cat,
		},
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		cells:     make([]*organism.Organism, n),
		genotypes: make([]census.Genotype, n),
		census:    census.New(),
		rankPos:   make([]int, n),
		total:     totals{taskCredits: map[string]uint64{}},
		stop:      make(chan struct{}),
	}
	for i := range w.cells {
		o := w.spawn(ancestor, i%w.dim, i/w.dim)
		w.place(i, o)
	}
	w.publishMetrics(0)
	return w, nil
}

func (w *World) spawn(g isa.Genome, x, y int) *organism.Organism {
	w.nextID++
	return organism.New(w.nextID, g, x, y, &w.params, w.rng)
}

// place writes o into cell i, retiring the previous occupant from the census.
// It returns the id of the organism that was overwritten, 0 if the cell was
// empty.
func (w *World) place(i int, o *organism.Organism) uint64 {
	var replaced uint64
	if old := w.cells[i]; old != nil {
		replaced = old.ID()
		w.census.Remove(w.timeslice, w.genotypes[i])
	}
	w.cells[i] = o
	w.genotypes[i] = census.Of(o.Genome())
	w.census.Add(w.timeslice, w.genotypes[i], o.Len())
	return replaced
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Dimension() int { return w.dim }

// Timeslice returns the number of completed timeslices.
func (w *World) Timeslice() uint64 { return w.timeslice }

// Tasks returns the task catalog the world was built with.
func (w *World) Tasks() *tasks.Catalog { return w.params.Tasks }

// At returns the organism occupying lattice cell (x, y), wrapping both
// coordinates.
func (w *World) At(x, y int) *organism.Organism {
	return w.cells[w.index(x, y)]
}

func (w *World) index(x, y int) int {
	return wrap(y, w.dim)*w.dim + wrap(x, w.dim)
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// EventLogger receives every event the world emits. Implementations must not
// block the world loop for long; WriteEvent errors are ignored.
type EventLogger interface {
	WriteEvent(ev protocol.Event) error
}

func (w *World) SetEventLogger(l EventLogger) { w.eventLogger = l }

func (w *World) emit(ev protocol.Event) {
	if w.eventLogger == nil {
		return
	}
	_ = w.eventLogger.WriteEvent(ev)
}
