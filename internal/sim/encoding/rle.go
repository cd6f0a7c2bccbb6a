// Package encoding holds the compact text forms used when genomes leave the
// simulation, for example in division events.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"evita/internal/sim/isa"
)

// EncodeGenome encodes the allocated instructions of g into base64(varint
// pairs). The pairs are (opcode, run_len) repeated. Placeholders are skipped.
func EncodeGenome(g isa.Genome) string {
	return EncodeOps(g.Ops())
}

// EncodeOps run-length encodes a sequence of opcodes.
func EncodeOps(ops []isa.Op) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ops) {
		op := ops[i]
		run := 1
		for j := i + 1; j < len(ops) && ops[j] == op && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(op))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeOps reverses EncodeOps. Unknown opcodes and zero-length runs are
// rejected.
func DecodeOps(b64 string) ([]isa.Op, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []isa.Op
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v >= uint64(isa.NumOps) {
			return nil, fmt.Errorf("opcode out of range: %d", v)
		}
		if run == 0 {
			return nil, fmt.Errorf("empty run at %d", i)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, isa.Op(v))
		}
	}
	return out, nil
}

// DecodeGenome decodes into a fully allocated genome.
func DecodeGenome(b64 string) (isa.Genome, error) {
	ops, err := DecodeOps(b64)
	if err != nil {
		return nil, err
	}
	return isa.FromOps(ops), nil
}
