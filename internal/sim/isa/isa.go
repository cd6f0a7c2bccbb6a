// Package isa defines the organism instruction set: a closed enumeration of
// opcodes and the genome cells that hold them.
package isa

import (
	"fmt"
	"strings"
)

type Op uint8

const (
	NopA Op = iota
	NopB
	NopC
	IfNEqu
	IfLess
	Pop
	Push
	SwapStk
	Swap
	ShiftR
	ShiftL
	Inc
	Dec
	Add
	Sub
	Nand
	IO
	HAlloc
	HDivide
	HCopy
	HSearch
	MovHead
	JmpHead
	GetHead
	IfLabel
	SetFlow

	NumOps int = iota
)

var names = [NumOps]string{
	NopA:    "nop_A",
	NopB:    "nop_B",
	NopC:    "nop_C",
	IfNEqu:  "if_n_equ",
	IfLess:  "if_less",
	Pop:     "pop",
	Push:    "push",
	SwapStk: "swap_stk",
	Swap:    "swap",
	ShiftR:  "shift_r",
	ShiftL:  "shift_l",
	Inc:     "inc",
	Dec:     "dec",
	Add:     "add",
	Sub:     "sub",
	Nand:    "nand",
	IO:      "IO",
	HAlloc:  "h_alloc",
	HDivide: "h_divide",
	HCopy:   "h_copy",
	HSearch: "h_search",
	MovHead: "mov_head",
	JmpHead: "jmp_head",
	GetHead: "get_head",
	IfLabel: "if_label",
	SetFlow: "set_flow",
}

var byName = func() map[string]Op {
	m := make(map[string]Op, NumOps)
	for i, n := range names {
		m[n] = Op(i)
	}
	return m
}()

func (o Op) String() string {
	if int(o) < NumOps {
		return names[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

func (o Op) Valid() bool { return int(o) < NumOps }

// IsNop reports whether o is one of the three qualifier opcodes.
func (o Op) IsNop() bool { return o == NopA || o == NopB || o == NopC }

// Complement maps a qualifier to its cyclic complement (A->B, B->C, C->A).
// Non-qualifiers are returned unchanged.
func (o Op) Complement() Op {
	switch o {
	case NopA:
		return NopB
	case NopB:
		return NopC
	case NopC:
		return NopA
	}
	return o
}

// Parse resolves an opcode by its catalog name (e.g. "h_copy").
func Parse(name string) (Op, error) {
	op, ok := byName[strings.TrimSpace(name)]
	if !ok {
		return 0, fmt.Errorf("unknown opcode %q", name)
	}
	return op, nil
}

// ParseAll resolves a list of opcode names, failing on the first unknown name.
func ParseAll(list []string) ([]Op, error) {
	out := make([]Op, 0, len(list))
	for i, n := range list {
		op, err := Parse(n)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, op)
	}
	return out, nil
}

// All returns every opcode in catalog order.
func All() []Op {
	out := make([]Op, NumOps)
	for i := range out {
		out[i] = Op(i)
	}
	return out
}

func Names(ops []Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}
