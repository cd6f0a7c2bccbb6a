package isa

// Cell is one genome slot. The zero value is an unallocated placeholder:
// h_alloc grows the genome with zero cells and h_divide filters them out.
// Placeholders are never dispatched.
type Cell struct {
	Op        Op
	Allocated bool
}

func Inst(op Op) Cell { return Cell{Op: op, Allocated: true} }

// Is reports whether the cell holds the given opcode.
func (c Cell) Is(op Op) bool { return c.Allocated && c.Op == op }

// IsNop reports whether the cell holds a qualifier opcode.
func (c Cell) IsNop() bool { return c.Allocated && c.Op.IsNop() }

func (c Cell) String() string {
	if !c.Allocated {
		return "-"
	}
	return c.Op.String()
}

// Genome is an organism's program and copy workspace.
type Genome []Cell

// FromOps builds a fully allocated genome.
func FromOps(ops []Op) Genome {
	g := make(Genome, len(ops))
	for i, op := range ops {
		g[i] = Inst(op)
	}
	return g
}

// Ops returns the allocated instructions in order, skipping placeholders.
func (g Genome) Ops() []Op {
	out := make([]Op, 0, len(g))
	for _, c := range g {
		if c.Allocated {
			out = append(out, c.Op)
		}
	}
	return out
}

// Compact returns a copy of g with placeholders removed.
func (g Genome) Compact() Genome {
	out := make(Genome, 0, len(g))
	for _, c := range g {
		if c.Allocated {
			out = append(out, c)
		}
	}
	return out
}

// Grow appends n placeholder cells.
func (g Genome) Grow(n int) Genome {
	if n <= 0 {
		return g
	}
	return append(g, make(Genome, n)...)
}

func (g Genome) Clone() Genome {
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

// Bytes encodes allocated instructions one byte per opcode (hashing/digests).
func (g Genome) Bytes() []byte {
	out := make([]byte, 0, len(g))
	for _, c := range g {
		if c.Allocated {
			out = append(out, byte(c.Op))
		}
	}
	return out
}
