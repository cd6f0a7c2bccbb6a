// Package organism implements the virtual CPU that runs a digital organism:
// a genome, four heads, three registers, two bounded stacks and the
// replication instructions that copy and split the genome.
package organism

import (
	"evita/internal/sim/isa"
	"evita/internal/sim/tasks"
)

// Rand is the injectable random source. *math/rand.Rand satisfies it.
type Rand interface {
	Uint32() uint32
	Float64() float64
	Intn(n int) int
}

// Host is the world an organism lives in. All effects that reach beyond the
// organism itself go through it.
type Host interface {
	Rand() Rand
	// Divide is called by h_divide after the parent genome has been
	// truncated. offspring is nil when no new organism should be created.
	Divide(parent *Organism, offspring isa.Genome)
	// TaskCredited is called once per task matched by an IO output.
	TaskCredited(o *Organism, m tasks.Match)
}

// Params are the world-wide constants shared by all organisms.
type Params struct {
	PointMutationRate float64
	FrameshiftRate    float64
	AllocBatch        int
	MaxGenomeLen      int // 0 means unbounded
	// MaxGrowth bounds the cells allocated since birth to MaxGrowth times
	// the birth length. 0 means unbounded.
	MaxGrowth int
	StackDepth        int
	CopyHistory       int
	// InstructionSet is the pool random opcodes are drawn from on mutation.
	InstructionSet []isa.Op
	Tasks          *tasks.Catalog
}

func (p *Params) randomOp(r Rand) isa.Op {
	if len(p.InstructionSet) == 0 {
		return isa.Op(r.Intn(isa.NumOps))
	}
	return p.InstructionSet[r.Intn(len(p.InstructionSet))]
}

type Head int

const (
	IP Head = iota
	RH
	WH
	FH
)

func (h Head) String() string {
	switch h {
	case IP:
		return "ip"
	case RH:
		return "rh"
	case WH:
		return "wh"
	case FH:
		return "fh"
	}
	return "?"
}

type Reg int

const (
	AX Reg = iota
	BX
	CX
)

type Organism struct {
	id     uint64
	x, y   int
	params *Params

	genome isa.Genome
	heads  [4]int
	regs   [3]uint32

	stacks [2][]uint32
	active int

	// qreg is the cell following ip, captured before each dispatch.
	qreg isa.Cell

	history []isa.Cell

	merit    int64
	budget   int64
	birthLen int

	inputs   [3]uint32
	inputIdx int
	table    *tasks.Table
}

// New builds an organism at lattice cell (x, y). Its three task inputs and
// initial register values are drawn from r, in that order.
func New(id uint64, genome isa.Genome, x, y int, p *Params, r Rand) *Organism {
	o := &Organism{
		id:      id,
		x:       x,
		y:       y,
		params:  p,
		genome:  genome.Compact(),
		merit:   1,
		history: make([]isa.Cell, 0, p.CopyHistory),
	}
	o.birthLen = len(o.genome)
	for i := range o.inputs {
		o.inputs[i] = r.Uint32()
	}
	for i := range o.regs {
		o.regs[i] = r.Uint32()
	}
	o.table = tasks.Build(p.Tasks, o.inputs)
	return o
}

func (o *Organism) ID() uint64            { return o.id }
func (o *Organism) Pos() (x, y int)       { return o.x, o.y }
func (o *Organism) Merit() int64          { return o.merit }
func (o *Organism) Budget() int64         { return o.budget }
func (o *Organism) BirthLen() int         { return o.birthLen }
func (o *Organism) Len() int              { return len(o.genome) }
func (o *Organism) Inputs() [3]uint32     { return o.inputs }
func (o *Organism) Head(h Head) int       { return o.heads[h] }
func (o *Organism) Register(r Reg) uint32 { return o.regs[r] }
func (o *Organism) HistoryLen() int       { return len(o.history) }
func (o *Organism) StackLen(i int) int    { return len(o.stacks[i&1]) }

// Genome returns a copy of the current genome, placeholders included.
func (o *Organism) Genome() isa.Genome { return o.genome.Clone() }

// Dormant reports whether the organism can never execute again.
func (o *Organism) Dormant() bool { return len(o.genome) == 0 }

// Runnable reports whether a Step would execute an instruction.
func (o *Organism) Runnable() bool { return o.budget > 0 && len(o.genome) > 0 }

// Grant adds budget proportional to birth length and merit. Dormant
// organisms accrue nothing.
func (o *Organism) Grant() int64 {
	n := int64(o.birthLen) * o.merit
	o.budget += n
	return n
}
