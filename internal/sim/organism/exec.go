package organism

import "evita/internal/sim/isa"

type handler func(o *Organism, h Host)

var handlers = [isa.NumOps]handler{
	isa.NopA:    opNop,
	isa.NopB:    opNop,
	isa.NopC:    opNop,
	isa.IfNEqu:  opIfNEqu,
	isa.IfLess:  opIfLess,
	isa.Pop:     opPop,
	isa.Push:    opPush,
	isa.SwapStk: opSwapStk,
	isa.Swap:    opSwap,
	isa.ShiftR:  opShiftR,
	isa.ShiftL:  opShiftL,
	isa.Inc:     opInc,
	isa.Dec:     opDec,
	isa.Add:     opAdd,
	isa.Sub:     opSub,
	isa.Nand:    opNand,
	isa.IO:      opIO,
	isa.HAlloc:  opHAlloc,
	isa.HDivide: opHDivide,
	isa.HCopy:   opHCopy,
	isa.HSearch: opHSearch,
	isa.MovHead: opMovHead,
	isa.JmpHead: opJmpHead,
	isa.GetHead: opGetHead,
	isa.IfLabel: opIfLabel,
	isa.SetFlow: opSetFlow,
}

// Step executes one instruction and reports which opcode ran. It is a no-op
// for an organism without budget or without a genome.
//
// A placeholder under ip sends ip back to 0. If cell 0 is a placeholder as
// well, the step burns one unit of budget without dispatching anything.
func (o *Organism) Step(h Host) (isa.Op, bool) {
	if !o.Runnable() {
		return 0, false
	}
	n := len(o.genome)
	ip := mod(o.heads[IP], n)
	cell := o.genome[ip]
	if !cell.Allocated {
		ip = 0
		cell = o.genome[0]
	}
	o.heads[IP] = ip
	if !cell.Allocated {
		o.budget--
		return 0, false
	}

	o.qreg = o.genome[(ip+1)%n]
	handlers[cell.Op](o, h)

	if n := len(o.genome); n > 0 {
		o.heads[IP] = mod(o.heads[IP]+1, n)
	}
	o.budget--
	return cell.Op, true
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func (o *Organism) reg() Reg {
	switch {
	case o.qreg.Is(isa.NopA):
		return AX
	case o.qreg.Is(isa.NopC):
		return CX
	}
	return BX
}

func (o *Organism) complement() Reg {
	switch {
	case o.qreg.Is(isa.NopA):
		return BX
	case o.qreg.Is(isa.NopC):
		return AX
	}
	return CX
}

func (o *Organism) head() Head {
	switch {
	case o.qreg.Is(isa.NopB):
		return RH
	case o.qreg.Is(isa.NopC):
		return WH
	}
	return IP
}

// skip advances ip one extra cell so the step epilogue passes over the next
// instruction.
func (o *Organism) skip() {
	o.heads[IP] = mod(o.heads[IP]+1, len(o.genome))
}

func opNop(o *Organism, h Host) {}

func opIfNEqu(o *Organism, h Host) {
	if o.regs[o.reg()] == o.regs[o.complement()] {
		o.skip()
	}
}

func opIfLess(o *Organism, h Host) {
	if o.regs[o.reg()] >= o.regs[o.complement()] {
		o.skip()
	}
}

func opPop(o *Organism, h Host) {
	o.regs[o.reg()] = o.pop(h.Rand())
}

func opPush(o *Organism, h Host) {
	o.push(o.regs[o.reg()])
}

func opSwapStk(o *Organism, h Host) { o.active ^= 1 }

func opSwap(o *Organism, h Host) {
	a, b := o.reg(), o.complement()
	o.regs[a], o.regs[b] = o.regs[b], o.regs[a]
}

func opShiftR(o *Organism, h Host) { o.regs[o.reg()] >>= 1 }
func opShiftL(o *Organism, h Host) { o.regs[o.reg()] <<= 1 }
func opInc(o *Organism, h Host)    { o.regs[o.reg()]++ }
func opDec(o *Organism, h Host)    { o.regs[o.reg()]-- }

func opAdd(o *Organism, h Host) { o.regs[o.reg()] = o.regs[BX] + o.regs[CX] }

// uint32 subtraction wraps, which is the non-negative modulo 2^32 result.
func opSub(o *Organism, h Host) { o.regs[o.reg()] = o.regs[CX] - o.regs[BX] }

func opNand(o *Organism, h Host) { o.regs[o.reg()] = ^(o.regs[BX] & o.regs[CX]) }

// opIO reports the current register value to the task table, then replaces it
// with the next input in the organism's fixed three-value cycle.
func opIO(o *Organism, h Host) {
	r := o.reg()
	for _, m := range o.table.Lookup(o.regs[r]) {
		o.merit += m.Merit
		h.TaskCredited(o, m)
	}
	o.regs[r] = o.inputs[o.inputIdx]
	o.inputIdx = (o.inputIdx + 1) % len(o.inputs)
}

func opMovHead(o *Organism, h Host) {
	hd := o.head()
	o.heads[hd] = o.heads[FH]
	if hd == IP {
		o.heads[IP]--
	}
}

func opJmpHead(o *Organism, h Host) {
	hd := o.head()
	n := uint64(len(o.genome))
	o.heads[hd] = int((uint64(mod(o.heads[hd], len(o.genome))) + uint64(o.regs[CX])) % n)
	if hd == IP {
		o.heads[IP]--
	}
}

func opGetHead(o *Organism, h Host) {
	o.regs[CX] = uint32(mod(o.heads[o.head()], len(o.genome)))
}

func opSetFlow(o *Organism, h Host) {
	o.heads[FH] = int(uint64(o.regs[CX]) % uint64(len(o.genome)))
}

// opIfLabel executes the next instruction only if the complement of the label
// following it matches the most recently copied instructions. The label
// itself is always passed over.
func opIfLabel(o *Organism, h Host) {
	tmpl := o.template()
	o.heads[IP] += len(tmpl)
	if !o.historyEndsWith(tmpl) {
		o.skip()
	}
}

// template reads the run of qualifiers after ip (stopping at the end of the
// genome) and returns their complements.
func (o *Organism) template() []isa.Op {
	var out []isa.Op
	for k := o.heads[IP] + 1; k < len(o.genome) && o.genome[k].IsNop(); k++ {
		out = append(out, o.genome[k].Op.Complement())
	}
	return out
}

func (o *Organism) historyEndsWith(tmpl []isa.Op) bool {
	if len(tmpl) == 0 || len(tmpl) > len(o.history) {
		return false
	}
	for i := 1; i <= len(tmpl); i++ {
		if !o.history[len(o.history)-i].Is(tmpl[len(tmpl)-i]) {
			return false
		}
	}
	return true
}

func (o *Organism) pop(r Rand) uint32 {
	s := o.stacks[o.active]
	if len(s) == 0 {
		return r.Uint32()
	}
	v := s[len(s)-1]
	o.stacks[o.active] = s[:len(s)-1]
	return v
}

func (o *Organism) push(v uint32) {
	s := append(o.stacks[o.active], v)
	if d := o.params.StackDepth; d > 0 && len(s) > d {
		s = append(s[:0], s[len(s)-d:]...)
	}
	o.stacks[o.active] = s
}
