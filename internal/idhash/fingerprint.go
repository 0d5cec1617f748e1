package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// FrameFingerprint hashes every input column of a frame that can change a run:
// times, OHLC, signals, has_leading_nan and indicator columns (sorted by name).
// Float columns are hashed by their IEEE-754 bits, so the result is bit-exact.
// Returns hex-encoded hash (64 characters).
func FrameFingerprint(f *domain.Frame) string {
	h := sha256.New()
	var buf [8]byte

	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeFloats := func(col []float64) {
		writeInt(int64(len(col)))
		for _, v := range col {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}

	writeInt(int64(len(f.TimeMs)))
	for _, ts := range f.TimeMs {
		writeInt(ts)
	}
	writeFloats(f.Open)
	writeFloats(f.High)
	writeFloats(f.Low)
	writeFloats(f.Close)

	writeBools(h, f.EntryLong)
	writeBools(h, f.EntryShort)
	writeBools(h, f.ExitLong)
	writeBools(h, f.ExitShort)
	writeBools(h, f.HasLeadingNaN)

	names := make([]string, 0, len(f.Indicators))
	for name := range f.Indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		writeFloats(f.Indicators[name])
	}

	return hex.EncodeToString(h.Sum(nil))
}

// writeBools packs a column with a presence marker so nil and empty differ.
func writeBools(h hash.Hash, col []bool) {
	if col == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(col)))
	h.Write(buf[:])
	packed := make([]byte, (len(col)+7)/8)
	for i, v := range col {
		if v {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	h.Write(packed)
}
