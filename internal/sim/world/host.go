package world

import (
	"fmt"

	"evita/internal/protocol"
	"evita/internal/sim/census"
	"evita/internal/sim/encoding"
	"evita/internal/sim/isa"
	"evita/internal/sim/organism"
	"evita/internal/sim/tasks"
)

// World is the organism.Host for every organism it owns.
var _ organism.Host = (*World)(nil)

func (w *World) Rand() organism.Rand { return w.rng }

// Divide re-genotypes the truncated parent and, when there is an offspring,
// writes it into a uniformly chosen cell of the parent's 3x3 neighbourhood.
// Whatever lived there is overwritten, the parent included.
func (w *World) Divide(parent *organism.Organism, offspring isa.Genome) {
	px, py := parent.Pos()
	pi := w.index(px, py)
	if w.cells[pi] == parent {
		w.census.Remove(w.timeslice, w.genotypes[pi])
		w.genotypes[pi] = census.Of(parent.Genome())
		w.census.Add(w.timeslice, w.genotypes[pi], parent.Len())
	}
	if offspring == nil {
		return
	}

	tx := px + w.rng.Intn(3) - 1
	ty := py + w.rng.Intn(3) - 1
	ti := w.index(tx, ty)
	tx, ty = ti%w.dim, ti/w.dim

	child := w.spawn(offspring, tx, ty)
	replaced := w.place(ti, child)
	w.touched = append(w.touched, ti)
	w.slice.divisions++

	w.emit(&protocol.DivisionMsg{
		Type:            protocol.TypeDivision,
		ProtocolVersion: protocol.Version,
		Timeslice:       w.timeslice,
		Parent:          parent.ID(),
		ParentLen:       parent.Len(),
		Offspring:       child.ID(),
		OffspringLen:    child.Len(),
		Genotype:        genotypeHex(w.genotypes[ti]),
		Genome:          encoding.EncodeGenome(offspring),
		Target:          protocol.Cell{tx, ty},
		Replaced:        replaced,
		SelfReplaced:    replaced == parent.ID(),
	})
}

func (w *World) TaskCredited(o *organism.Organism, m tasks.Match) {
	w.slice.taskCredits++
	w.total.taskCredits[m.Task]++
	w.emit(&protocol.TaskMsg{
		Type:            protocol.TypeTask,
		ProtocolVersion: protocol.Version,
		Timeslice:       w.timeslice,
		Organism:        o.ID(),
		Task:            m.Task,
		MeritDelta:      m.Merit,
		Merit:           o.Merit(),
	})
}

func genotypeHex(g census.Genotype) string {
	return fmt.Sprintf("%016x", uint64(g))
}
