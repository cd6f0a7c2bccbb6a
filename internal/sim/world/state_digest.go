package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// stateDigest hashes the full lattice. Two worlds built from the same tuning
// and seed produce the same digest after every timeslice.
func (w *World) stateDigest(timeslice uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, timeslice)
	digestWriteU64(h, &tmp, uint64(w.dim))
	digestWriteU64(h, &tmp, w.nextID)

	buf := make([]byte, 0, 256)
	for _, o := range w.cells {
		if o == nil {
			h.Write([]byte{0})
			continue
		}
		buf = o.AppendState(append(buf[:0], 1))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
