package organism

import "encoding/binary"

// AppendState appends a deterministic binary encoding of the organism's
// mutable state to b. It is used for world digests.
func (o *Organism) AppendState(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, o.id)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(o.genome)))
	for _, c := range o.genome {
		if c.Allocated {
			b = append(b, byte(c.Op))
		} else {
			b = append(b, 0xff)
		}
	}
	for _, hd := range o.heads {
		b = binary.LittleEndian.AppendUint64(b, uint64(int64(hd)))
	}
	for _, r := range o.regs {
		b = binary.LittleEndian.AppendUint32(b, r)
	}
	for _, s := range o.stacks {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
		for _, v := range s {
			b = binary.LittleEndian.AppendUint32(b, v)
		}
	}
	b = append(b, byte(o.active), byte(o.inputIdx))
	b = binary.LittleEndian.AppendUint64(b, uint64(o.merit))
	b = binary.LittleEndian.AppendUint64(b, uint64(o.budget))
	return b
}
