package organism

import "evita/internal/sim/isa"

// opHAlloc grows the genome by a batch of placeholder cells. The new cells
// are writable by h_copy but never executed. The batch is shortened to the
// growth headroom left since birth and the whole call is a no-op when it
// would pass the genome length cap.
func opHAlloc(o *Organism, h Host) {
	p := o.params
	n := p.AllocBatch
	if p.MaxGrowth > 0 {
		room := p.MaxGrowth*o.birthLen - (len(o.genome) - o.birthLen)
		if room < n {
			n = room
		}
	}
	if n <= 0 {
		return
	}
	if p.MaxGenomeLen > 0 && len(o.genome)+n > p.MaxGenomeLen {
		return
	}
	o.genome = o.genome.Grow(n)
}

// opHCopy copies the cell under the read head to the write head, possibly
// substituting a random opcode, and records the source cell in the copy
// history.
func opHCopy(o *Organism, h Host) {
	n := len(o.genome)
	r, w := mod(o.heads[RH], n), mod(o.heads[WH], n)
	src := o.genome[r]

	dst := src
	if p := o.params.PointMutationRate; p > 0 {
		rnd := h.Rand()
		if rnd.Float64() < p {
			dst = isa.Inst(o.params.randomOp(rnd))
		}
	}
	o.genome[w] = dst
	o.remember(src)

	o.heads[RH] = (r + 1) % n
	o.heads[WH] = (w + 1) % n
}

func (o *Organism) remember(c isa.Cell) {
	limit := o.params.CopyHistory
	if limit <= 0 {
		return
	}
	if len(o.history) >= limit {
		copy(o.history, o.history[len(o.history)-limit+1:])
		o.history = o.history[:limit-1]
	}
	o.history = append(o.history, c)
}

// opHSearch looks for the complement of the label following ip elsewhere in
// the genome. On success bx holds the distance, cx the label length and fh
// points just past the match. An absent label or a failed search leaves
// bx = cx = 0 and fh just after ip.
func opHSearch(o *Organism, h Host) {
	n := len(o.genome)
	tmpl := o.template()
	if len(tmpl) == 0 {
		o.searchMiss()
		return
	}

	ip := o.heads[IP] + len(tmpl)
	o.heads[IP] = ip
	for j := 1; j < n-len(tmpl)-1; j++ {
		if o.matchAt(ip+j, tmpl) {
			o.regs[BX] = uint32(j)
			o.regs[CX] = uint32(len(tmpl))
			o.heads[FH] = (ip + j + len(tmpl)) % n
			return
		}
	}
	o.searchMiss()
}

func (o *Organism) searchMiss() {
	o.regs[BX], o.regs[CX] = 0, 0
	o.heads[FH] = (o.heads[IP] + 1) % len(o.genome)
}

func (o *Organism) matchAt(start int, tmpl []isa.Op) bool {
	n := len(o.genome)
	for k, op := range tmpl {
		if !o.genome[(start+k)%n].Is(op) {
			return false
		}
	}
	return true
}

// opHDivide splits the genome. The region between the read and write heads
// (in either order) becomes the offspring, the prefix before the read head
// stays with the parent; placeholders are dropped from both. The parent's
// heads are reset so execution restarts at 0.
func opHDivide(o *Organism, h Host) {
	n := len(o.genome)
	r, w := mod(o.heads[RH], n), mod(o.heads[WH], n)
	lo, hi := r, w
	if r > w {
		lo, hi = w, r
	}

	child := o.genome[lo:hi].Compact()
	o.genome = o.genome[:r].Compact()
	o.birthLen = len(o.genome)
	o.heads = [4]int{IP: -1}

	if len(child) > 0 {
		child = o.frameshift(child, h.Rand())
	}
	if len(child) == 0 {
		child = nil
	}
	h.Divide(o, child)
}

// frameshift inserts or deletes a single instruction with probability
// FrameshiftRate.
func (o *Organism) frameshift(g isa.Genome, r Rand) isa.Genome {
	if o.params.FrameshiftRate <= 0 || r.Float64() >= o.params.FrameshiftRate {
		return g
	}
	if r.Intn(2) == 0 {
		i := r.Intn(len(g))
		return append(g[:i], g[i+1:]...)
	}
	i := r.Intn(len(g) + 1)
	op := isa.Inst(o.params.randomOp(r))
	g = append(g, isa.Cell{})
	copy(g[i+1:], g[i:])
	g[i] = op
	return g
}
